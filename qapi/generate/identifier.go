package generate

import (
	"strings"

	"github.com/canonical/qapi/qapi/schema"
)

// goKeywords are Go's reserved words; an identifier colliding with one is
// suffixed with "_", mirroring identifier()'s reserved-word escape in
// _examples/original_source/codegen/src/lib.rs (which escapes a fixed
// list of its own target language's keywords the same way).
var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
}

// identifier rewrites a kebab-case (or already snake_case) QAPI name into
// a lowerCamelCase Go identifier suitable for a local variable or
// unexported helper, escaping a leading digit and a reserved-word
// collision. Grounded on codegen::identifier.
func identifier(id string) string {
	parts := splitWords(id)
	if len(parts) == 0 {
		return "_"
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(parts[0]))
	for _, p := range parts[1:] {
		b.WriteString(titleCase(p))
	}

	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}

	if goKeywords[out] {
		out += "_"
	}

	return out
}

// typeIdentifier rewrites a QAPI declaration id into an exported Go
// identifier, used for type names, enum variant names, union variant
// names, and exported struct field names. QAPI type ids already arrive
// PascalCase (e.g. "BlockdevOptions"); field/command/event/enum-variant
// ids arrive kebab-case (e.g. "query-status", "guest-file-read").
// typeIdentifier normalizes both: codegen::type_identifier is defined as
// exactly codegen::identifier with a "kebab-case to PascalCase?" comment
// admitting the original never actually re-cases it (QAPI type names
// need no case change, and Rust struct/enum members were already
// snake_case by convention). Go requires every JSON-tagged struct field
// and every generated type name to be exported, so this function does
// the PascalCasing codegen::type_identifier's comment wished for but
// never implemented.
func typeIdentifier(id string) string {
	parts := splitWords(id)
	if len(parts) == 0 {
		return "_"
	}

	var b strings.Builder
	for _, p := range parts {
		b.WriteString(titleCase(p))
	}

	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}

	return out
}

// splitWords breaks a QAPI identifier on '-' and '_' into its component
// words, preserving existing internal case runs (so "IPv4" / "CPU"
// stay intact rather than getting mangled).
func splitWords(id string) []string {
	raw := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' })
	return raw
}

// titleCase upper-cases the first rune of s and leaves the rest alone,
// so already-capitalized acronyms (e.g. "CPU" in "CPU-model") survive
// rather than being forced to "Cpu".
func titleCase(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}

// primitiveGoType maps a QAPI primitive type name to its host Go type,
// per the fixed table codegen::typename_s defines. Names absent from
// this table are QAPI-declared types (structs/enums/alternates/unions)
// and pass through typeIdentifier unchanged.
var primitiveGoType = map[string]string{
	"str":    "string",
	"any":    "wire.Any",
	"null":   "struct{}",
	"number": "float64",
	"int8":   "int8",
	"uint8":  "uint8",
	"int16":  "int16",
	"uint16": "uint16",
	"int32":  "int32",
	"uint32": "uint32",
	"int64":  "int64",
	"uint64": "uint64",
	// size/int have no fixed width in the QAPI spec; the host's natural
	// machine-word integer stands in, matching codegen::typename_s's
	// usize/isize choices for the Rust original.
	"size": "uint",
	"int":  "int",
}

// typenameS resolves one primitive or declared-type name to a Go type
// expression, without the array wrapper typeName adds on top.
func typenameS(name string) string {
	if gt, ok := primitiveGoType[name]; ok {
		return gt
	}

	return typeIdentifier(name)
}

// typeName resolves a full QAPI type reference (primitive-or-declared,
// possibly an array) to a Go type expression. Grounded on
// codegen::typename.
func typeName(ty schema.TypeRef) string {
	if ty.IsArray {
		return "[]" + typenameS(ty.Name)
	}

	return typenameS(ty.Name)
}
