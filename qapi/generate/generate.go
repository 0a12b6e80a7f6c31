// Package generate is the QAPI code generator: it walks the declaration
// model qapi/parser produces and emits Go source defining a typed
// command/event/struct/enum/alternate/union surface, plus the
// wire.Command/wire.EventPayload glue each generated type needs.
//
// Grounded on codegen::Context and its process/process_unions/process_events
// methods in _examples/original_source/codegen/src/lib.rs, translated
// from Rust derive macros and an io.Write-streaming emitter into Go
// source text assembled in a strings.Builder and run through go/format
// before being returned, the way lxd/config/generate/lxddoc.go and
// lxd/db/generate emit generated Go source in this teacher's own tree.
package generate

import (
	"fmt"
	"go/format"
	"strings"

	"github.com/canonical/qapi/qapi/schema"
)

// Generate walks decls (the output of qapi/parser.Compile, in file
// encounter order) and returns formatted Go source for package pkgName
// implementing every command, event, struct, enum, alternate, and union
// the declarations describe.
func Generate(decls []schema.Decl, pkgName string, opts ...Option) ([]byte, error) {
	ctx := newContext(pkgName)
	for _, opt := range opts {
		opt(&ctx.options)
	}

	for _, decl := range decls {
		if err := ctx.process(decl); err != nil {
			return nil, err
		}
	}

	if err := ctx.processUnions(); err != nil {
		return nil, err
	}

	if err := ctx.processStructs(); err != nil {
		return nil, err
	}

	ctx.processEvents()

	return format.Source([]byte(ctx.header() + ctx.buf.String()))
}

// Option configures an optional, off-by-default Generate behavior.
type Option func(*options)

type options struct {
	stampID string
}

// WithStampID adds a "Generated-From: <id>" comment to the output, right
// after the package clause,
// the single generator-side use of github.com/google/uuid: a caller
// (cmd/qapi-gen's --stamp flag) mints a per-invocation id and passes it
// through here so two outputs from the same schema can be told apart
// in a build log, without the generator itself depending on a clock or
// random source (Generate must stay deterministic given the same id).
func WithStampID(id string) Option {
	return func(o *options) { o.stampID = id }
}

// context accumulates emitted source plus the cross-declaration state
// the generator needs: combined unions and structs are not emitted as
// they're encountered (spec.md §4.2's "deterministic order" defers both
// until every file is parsed), and events are aggregated into one sum
// type only after every event has been seen. Grounded on
// codegen::Context's fields (includes/included/events/unions/types),
// minus includes/included which qapi/parser already resolves before
// Generate ever sees a declaration.
type context struct {
	buf     strings.Builder
	pkgName string
	options options

	events  []*schema.Event
	unions  []*schema.CombinedUnion
	structs []*schema.Struct

	// discriminators maps a struct id to the discriminator field name a
	// combined union claimed from it, populated by processUnions and
	// consulted by processStructs (spec.md §4.2 item 2 under "Combined-union
	// emission").
	discriminators map[string]string

	// usesMapstructure is set once an open-dictionary (gen=false) command
	// is emitted, so header() only imports mapstructure when the
	// generated Parse<Command> helper that needs it actually exists.
	usesMapstructure bool
}

func newContext(pkgName string) *context {
	return &context{pkgName: pkgName, discriminators: make(map[string]string)}
}

// header assembles the package clause and import block. Built
// separately from the declaration body (rather than written up front,
// the way the original single-pass emitter would) because whether
// mapstructure is imported depends on declarations processed later in
// the stream — an unconditional import would fail to compile against a
// schema with no gen=false command.
func (c *context) header() string {
	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n\n", c.pkgName)

	if c.options.stampID != "" {
		fmt.Fprintf(&b, "// Generated-From: %s\n\n", c.options.stampID)
	}

	b.WriteString("import (\n\t\"encoding/json\"\n\t\"fmt\"\n\n")
	if c.usesMapstructure {
		b.WriteString("\t\"github.com/mitchellh/mapstructure\"\n\n")
	}
	b.WriteString("\t\"github.com/canonical/qapi/wire\"\n)\n")

	return b.String()
}

// process dispatches one declaration, matching codegen::Context::process's
// switch over parser::spec::Spec. Commands, enums, alternates, simple
// unions, and events are emitted immediately, in the order they were
// declared (the ordering guarantee spec.md §4.2 documents); structs and
// combined unions are queued for the deferred passes below.
func (c *context) process(decl schema.Decl) error {
	switch v := decl.(type) {
	case *schema.Include:
		// Already resolved by qapi/parser; nothing to emit.
		return nil

	case *schema.Command:
		return c.emitCommand(v)

	case *schema.Struct:
		c.structs = append(c.structs, v)
		return nil

	case *schema.Alternate:
		return c.emitAlternate(v)

	case *schema.Enum:
		c.emitEnum(v)
		return nil

	case *schema.Event:
		c.emitEventPayload(v)
		c.events = append(c.events, v)
		return nil

	case *schema.Union:
		c.emitSimpleUnion(v)
		return nil

	case *schema.CombinedUnion:
		c.unions = append(c.unions, v)
		return nil

	case *schema.PragmaWhitelist, *schema.PragmaDocRequired, *schema.PragmaUnknown:
		return nil

	default:
		return fmt.Errorf("qapi/generate: unrecognized declaration %T", decl)
	}
}

// emitCommand emits a command's argument type (a struct for inline
// data, or a newtype wrapper when the command's args are a named-type
// reference) and the wire.Command interface glue: Name, AllowOOB,
// MarshalJSON.
//
// Grounded on codegen::Context::process's Spec::Command arm; this
// implementation collapses the original's "skip the struct declaration
// entirely when the referenced type's identifier already matches the
// command's" special case into a single always-newtype path, since Go's
// `type Foo Bar` costs nothing extra the way a second duplicate struct
// declaration would have in the original's direct-emit model — see
// DESIGN.md.
func (c *context) emitCommand(cmd *schema.Command) error {
	goName := typeIdentifier(cmd.ID) + "Command"

	switch {
	case cmd.Data.Data != nil:
		if err := c.emitCommandStruct(goName, cmd); err != nil {
			return err
		}

	case cmd.Data.Type != nil:
		fmt.Fprintf(&c.buf, "\n// %s wraps %s as the argument payload for %q.\ntype %s %s\n",
			goName, typeName(*cmd.Data.Type), cmd.ID, goName, typeName(*cmd.Data.Type))
		c.emitAliasMarshal(goName)

	default:
		return fmt.Errorf("qapi/generate: command %q has neither inline data nor a type reference", cmd.ID)
	}

	returns := "wire.Empty"
	if cmd.Returns != nil {
		returns = typeName(*cmd.Returns)
	}

	fmt.Fprintf(&c.buf, `
func (%s) Name() string   { return %q }
func (%s) AllowOOB() bool { return %t }
`, goName, cmd.ID, goName, cmd.AllowOOB)

	fmt.Fprintf(&c.buf, "\n// %sReturn is the declared return type of %q.\ntype %sReturn = %s\n",
		goName, cmd.ID, goName, returns)

	return nil
}

// emitAliasMarshal emits the common "marshal via an identical alias
// type" MarshalJSON body used whenever a command's argument type needs
// no special encode-time behavior beyond its own field tags (every
// command except the gen=false case, which emits its own merging
// MarshalJSON in emitOpenDictCodec instead). Grounded on the same
// type-alias idiom qmp/command.go's qmpCapabilities.MarshalJSON uses to
// avoid infinite Marshal recursion.
func (c *context) emitAliasMarshal(goName string) {
	fmt.Fprintf(&c.buf, `
func (v %s) MarshalJSON() ([]byte, error) {
	type alias %s
	return json.Marshal(alias(v))
}
`, goName, goName)
}

// emitCommandStruct emits the inline-data case of a command's argument
// struct, including the flattened open dictionary spec.md §4.2 calls
// for when the command's schema entry sets gen=false (Open Question
// decision recorded in DESIGN.md: an embedded wire.Dictionary field
// named Extra, merged out via a custom MarshalJSON and back in via a
// mapstructure-backed Parse<Name> constructor).
func (c *context) emitCommandStruct(goName string, cmd *schema.Command) error {
	fmt.Fprintf(&c.buf, "\n// %s is the argument payload for %q.\ntype %s struct {\n", goName, cmd.ID, goName)

	for _, f := range cmd.Data.Data.Fields {
		line, err := fieldDecl(f, cmd.ID)
		if err != nil {
			return err
		}

		fmt.Fprintf(&c.buf, "\t%s\n", line)
	}

	if !cmd.Gen {
		fmt.Fprintf(&c.buf, "\n\t// Extra carries arguments this command's schema entry does not\n\t// enumerate (gen=false): QEMU accepts an open-ended dictionary here.\n\tExtra wire.Dictionary `json:\"-\"`\n")
	}

	c.buf.WriteString("}\n")

	if !cmd.Gen {
		c.emitOpenDictCodec(goName, cmd.Data.Data.Fields)
	} else {
		c.emitAliasMarshal(goName)
	}

	return nil
}

// emitOpenDictCodec generates encodeFields/MarshalJSON (merging a
// gen=false command's declared fields with its Extra dictionary so
// unknown keys round-trip instead of being rejected) and a
// Parse<Name> constructor for building the same struct back out of a
// loosely-typed map[string]any, the shape a caller assembling command
// arguments dynamically (a REPL, a config file, a test fixture) is
// most likely to have on hand.
func (c *context) emitOpenDictCodec(goName string, fields []schema.Value) {
	c.usesMapstructure = true

	fmt.Fprintf(&c.buf, `
func (v %s) encodeFields() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(v.Extra)+%d)
	for k, val := range v.Extra {
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
`, goName, len(fields))

	for _, f := range fields {
		name := exportedFieldName(f.Name)
		fmt.Fprintf(&c.buf, `	if raw, err := json.Marshal(v.%s); err == nil {
		out[%q] = raw
	} else {
		return nil, err
	}
`, name, f.Name)
	}

	fmt.Fprintf(&c.buf, `	return out, nil
}

func (v %s) MarshalJSON() ([]byte, error) {
	fields, err := v.encodeFields()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// Parse%s decodes a loosely-typed argument map into %s, using
// mapstructure against the json field tags so callers don't have to
// hand-assert each value's type; every key mapstructure leaves unused
// lands in Extra instead of being silently dropped.
func Parse%s(args map[string]any) (%s, error) {
	var v %s

	var meta mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:  "json",
		Metadata: &meta,
		Result:   &v,
	})
	if err != nil {
		return %s{}, fmt.Errorf("%s: %%w", err)
	}

	if err := dec.Decode(args); err != nil {
		return %s{}, fmt.Errorf("%s: %%w", err)
	}

	if len(meta.Unused) > 0 {
		v.Extra = make(wire.Dictionary, len(meta.Unused))
		for _, key := range meta.Unused {
			v.Extra[key] = args[key]
		}
	}

	return v, nil
}
`, goName, goName, goName, goName, goName, goName, goName, goName, goName, goName)
}

// emitEnum emits a closed Go string type plus the dense discriminant
// map spec.md §4.2 requires ("an array of variants, an array of wire
// names, and a total count — sufficient for from_name/name
// round-tripping"). Grounded on codegen::Context::process's Spec::Enum
// arm, adapted from a Rust fieldless enum (no natural wire-name
// round-trip without serde) to a named string type, whose wire name
// *is* its value — simpler than the original and still exact.
func (c *context) emitEnum(e *schema.Enum) {
	goName := typeIdentifier(e.ID)

	fmt.Fprintf(&c.buf, "\n// %s is the %q enum.\ntype %s string\n\nconst (\n", goName, e.ID, goName)

	for _, variant := range e.Variants {
		fmt.Fprintf(&c.buf, "\t%s%s %s = %q\n", goName, typeIdentifier(variant), goName, variant)
	}

	c.buf.WriteString(")\n")

	fmt.Fprintf(&c.buf, "\n// %sVariants is the declared order of every %s variant.\nvar %sVariants = []%s{\n", goName, goName, goName, goName)
	for _, variant := range e.Variants {
		fmt.Fprintf(&c.buf, "\t%s%s,\n", goName, typeIdentifier(variant))
	}
	c.buf.WriteString("}\n")

	fmt.Fprintf(&c.buf, "\n// %sCount is len(%sVariants).\nconst %sCount = %d\n", goName, goName, goName, len(e.Variants))
}

// emitAlternate emits an untagged sum type as a flat struct with one
// pointer field per variant (at most one populated at a time) and a
// custom UnmarshalJSON that tries each variant's type in turn, keeping
// the first that decodes without error — the same flat-struct-over-
// per-variant-enum-arm simplification emitCombinedUnion/emitSimpleUnion
// use, since Go has no closed sum type to give each variant its own
// arm. Replaces Rust's #[serde(untagged)] derive. Every variant is a
// pointer rather than a bare value so "is this variant populated"
// reduces to a nil check regardless of the variant's type — an
// enum-typed variant's zero value is not a valid composite literal to
// compare against, and a struct variant holding a slice/map field isn't
// comparable with != at all — and, as a side effect, a variant whose
// type is the alternate's own enclosing type (BlockdevOptions's
// "definition" variant) no longer needs a separate recursion-break
// case: every field is already boxed. Grounded on
// codegen::Context::process's Spec::Alternate arm.
func (c *context) emitAlternate(a *schema.Alternate) error {
	goName := typeIdentifier(a.ID)

	fmt.Fprintf(&c.buf, "\n// %s is the %q alternate: exactly one of its variants is populated.\ntype %s struct {\n", goName, a.ID, goName)

	for _, v := range a.Data.Fields {
		if v.Optional {
			return fmt.Errorf("qapi/generate: alternate %q variant %q must not be optional", a.ID, v.Name)
		}

		fmt.Fprintf(&c.buf, "\t%s %s\n", typeIdentifier(v.Name), fieldGoType(v))
	}

	c.buf.WriteString("}\n")

	c.emitAlternateCodec(goName, a)

	return nil
}

// emitAlternateCodec emits the custom UnmarshalJSON/MarshalJSON pair
// for an alternate: decode tries each variant type in source-declared
// order, keeping the first that decodes without error (the same
// first-match-wins rule the original's untagged-enum derive applies);
// encode marshals whichever single field is populated.
func (c *context) emitAlternateCodec(goName string, a *schema.Alternate) {
	fmt.Fprintf(&c.buf, "\nfunc (v *%s) UnmarshalJSON(data []byte) error {\n", goName)

	for _, f := range a.Data.Fields {
		field := typeIdentifier(f.Name)
		fmt.Fprintf(&c.buf, "\t{\n\t\tvar val %s\n\t\tif err := json.Unmarshal(data, &val); err == nil {\n\t\t\tv.%s = val\n\t\t\treturn nil\n\t\t}\n\t}\n", fieldGoType(f), field)
	}

	fmt.Fprintf(&c.buf, "\treturn fmt.Errorf(\"%s: value matches none of its alternate variants\")\n}\n", goName)

	fmt.Fprintf(&c.buf, "\nfunc (v %s) MarshalJSON() ([]byte, error) {\n\tswitch {\n", goName)
	for _, f := range a.Data.Fields {
		field := typeIdentifier(f.Name)
		fmt.Fprintf(&c.buf, "\tcase v.%s != nil:\n\t\treturn json.Marshal(v.%s)\n", field, field)
	}
	fmt.Fprintf(&c.buf, "\t}\n\treturn nil, fmt.Errorf(\"%s: no variant populated\")\n}\n", goName)
}

// fieldGoType resolves the Go type for one alternate variant: every
// variant is a pointer, so the "is this variant populated" checks in
// emitAlternateCodec's MarshalJSON are a uniform != nil regardless of
// whether the variant's underlying type is comparable.
func fieldGoType(f schema.Value) string {
	return "*" + typeName(f.Type)
}

// emitSimpleUnion emits the struct: a Go-named discriminator field
// tagged with the wire discriminator key, plus one pointer field per
// variant tagged json:"-" (its own custom codec below reads/writes the
// variant payload under the nested "data" key, never via the default
// per-field reflection encoding/json would otherwise apply).
func (c *context) emitSimpleUnion(u *schema.Union) {
	goName := typeIdentifier(u.ID)
	discField := exportedFieldName(u.Discriminator)

	fmt.Fprintf(&c.buf, "\n// %s is the %q tagged union (tag field %q).\ntype %s struct {\n\t%s string `json:\"%s\"`\n",
		goName, u.ID, u.Discriminator, goName, discField, u.Discriminator)

	for _, v := range u.Data.Fields {
		fmt.Fprintf(&c.buf, "\t%s *%s `json:\"-\"`\n", typeIdentifier(v.Name), typeName(v.Type))
	}

	c.buf.WriteString("}\n")

	fmt.Fprintf(&c.buf, "\nfunc (v %s) Kind() string { return v.%s }\n", goName, discField)

	c.emitSimpleUnionCodec(goName, discField, u)
}

// emitSimpleUnionCodec emits the {tag, data} envelope codec: MarshalJSON
// picks whichever variant field is non-nil and wraps it under "data"
// next to the discriminator tag; UnmarshalJSON reads the discriminator
// first and decodes "data" into the one matching variant field.
func (c *context) emitSimpleUnionCodec(goName, discField string, u *schema.Union) {
	fmt.Fprintf(&c.buf, "\nfunc (v %s) MarshalJSON() ([]byte, error) {\n\tenv := map[string]json.RawMessage{}\n\n\tswitch {\n", goName)

	for _, variant := range u.Data.Fields {
		field := typeIdentifier(variant.Name)
		fmt.Fprintf(&c.buf, `	case v.%s != nil:
		raw, err := json.Marshal(v.%s)
		if err != nil {
			return nil, err
		}
		tag, err := json.Marshal(%q)
		if err != nil {
			return nil, err
		}
		env[%q] = tag
		env["data"] = raw
`, field, field, variant.Name, u.Discriminator)
	}

	fmt.Fprintf(&c.buf, "\t}\n\n\treturn json.Marshal(env)\n}\n")

	fmt.Fprintf(&c.buf, "\nfunc (v *%s) UnmarshalJSON(data []byte) error {\n\tvar env struct {\n\t\tTag  string          `json:\"%s\"`\n\t\tData json.RawMessage `json:\"data\"`\n\t}\n\tif err := json.Unmarshal(data, &env); err != nil {\n\t\treturn err\n\t}\n\n\tv.%s = env.Tag\n\n\tswitch env.Tag {\n",
		goName, u.Discriminator, discField)

	for _, variant := range u.Data.Fields {
		field := typeIdentifier(variant.Name)
		goType := typeName(variant.Type)
		fmt.Fprintf(&c.buf, "\tcase %q:\n\t\tvar val %s\n\t\tif err := json.Unmarshal(env.Data, &val); err != nil {\n\t\t\treturn err\n\t\t}\n\t\tv.%s = &val\n", variant.Name, goType, field)
	}

	fmt.Fprintf(&c.buf, "\tdefault:\n\t\treturn fmt.Errorf(\"%s: unknown tag %%q\", env.Tag)\n\t}\n\n\treturn nil\n}\n", goName)
}

// processUnions emits every combined union collected during process,
// and populates the struct-discriminator map processStructs consults
// below. Grounded on codegen::Context::process_unions.
func (c *context) processUnions() error {
	for _, u := range c.unions {
		if err := c.emitCombinedUnion(u); err != nil {
			return err
		}
	}

	return nil
}

// emitCombinedUnion emits one combined union: a struct carrying the
// discriminator field, the union's own base fields (minus the
// discriminator, tagged the normal way via fieldDecl), and one
// json:"-" pointer field per variant — plus a Kind() accessor and a
// discriminator-keyed MarshalJSON/UnmarshalJSON pair that flattens the
// base fields and whichever variant is active into one inline JSON
// object, per spec.md §4.2's combined-union wire format (unlike a
// simple union, there is no nested "data" envelope: the variant's own
// fields merge directly into the base object's keys). For a
// named-struct base, registers the discriminator field name in
// discriminators so processStructs drops it from that struct's own
// emitted fields. Grounded on codegen::Context::process_unions.
func (c *context) emitCombinedUnion(u *schema.CombinedUnion) error {
	goName := typeIdentifier(u.ID)

	baseFields, discrimType, err := c.resolveUnionBase(u)
	if err != nil {
		return err
	}

	discField := exportedFieldName(u.Discriminator)
	discGoType := typeName(*discrimType)

	fmt.Fprintf(&c.buf, "\n// %s is the %q combined union (tag field %q).\ntype %s struct {\n\t%s %s `json:\"%s\"`\n",
		goName, u.ID, u.Discriminator, goName, discField, discGoType, u.Discriminator)

	for _, base := range baseFields {
		if base.Name == u.Discriminator {
			continue
		}

		line, err := fieldDecl(base, u.ID)
		if err != nil {
			return err
		}

		fmt.Fprintf(&c.buf, "\t%s\n", line)
	}

	for _, variant := range u.Data.Fields {
		if variant.Optional || variant.Type.IsArray {
			return fmt.Errorf("qapi/generate: union %q variant %q must be a non-array, non-optional named type", u.ID, variant.Name)
		}

		goType := typeIdentifier(variant.Type.Name)
		fmt.Fprintf(&c.buf, "\t%s *%s `json:\"-\"`\n", typeIdentifier(variant.Name), goType)
	}

	c.buf.WriteString("}\n")

	fmt.Fprintf(&c.buf, "\nfunc (v %s) Kind() %s { return v.%s }\n", goName, discGoType, discField)

	c.emitCombinedUnionCodec(goName, discField, discGoType, u)

	return nil
}

// emitCombinedUnionCodec emits the flattening codec: MarshalJSON
// encodes the discriminator plus base fields via an alias type (so the
// json:"-" variant fields are skipped), decodes that back into a
// string-keyed map, then merges in whichever variant struct is active
// by marshaling it separately and copying its keys into the same map —
// the flattening step spec.md §9 calls out as this generator's trickiest
// piece. UnmarshalJSON runs the same alias decode to recover the
// discriminator and base fields, then decodes the same input bytes a
// second time into the one variant type the discriminator selects
// (every struct's extra keys are ignored by encoding/json by default,
// so decoding the full flat object straight into the narrower variant
// type needs no sub-object to ever exist on the wire).
func (c *context) emitCombinedUnionCodec(goName, discField, discGoType string, u *schema.CombinedUnion) {
	fmt.Fprintf(&c.buf, `
func (v %s) MarshalJSON() ([]byte, error) {
	type alias %s

	base, err := json.Marshal(alias(v))
	if err != nil {
		return nil, err
	}

	env := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &env); err != nil {
		return nil, err
	}

	switch {
`, goName, goName)

	for _, variant := range u.Data.Fields {
		field := typeIdentifier(variant.Name)
		fmt.Fprintf(&c.buf, `	case v.%s != nil:
		raw, err := json.Marshal(v.%s)
		if err != nil {
			return nil, err
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}

		for k, val := range fields {
			env[k] = val
		}
`, field, field)
	}

	c.buf.WriteString("\t}\n\n\treturn json.Marshal(env)\n}\n")

	fmt.Fprintf(&c.buf, `
func (v *%s) UnmarshalJSON(data []byte) error {
	type alias %s

	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	*v = %s(a)

	switch v.%s {
`, goName, goName, goName, discField)

	for _, variant := range u.Data.Fields {
		field := typeIdentifier(variant.Name)
		goType := typeIdentifier(variant.Type.Name)
		fmt.Fprintf(&c.buf, "\tcase %s(%q):\n\t\tvar val %s\n\t\tif err := json.Unmarshal(data, &val); err != nil {\n\t\t\treturn err\n\t\t}\n\t\tv.%s = &val\n",
			discGoType, variant.Name, goType, field)
	}

	fmt.Fprintf(&c.buf, "\tdefault:\n\t\treturn fmt.Errorf(\"%s: unknown discriminator %%v\", v.%s)\n\t}\n\n\treturn nil\n}\n", goName, discField)
}

// resolveUnionBase returns the base's field list (from either an inline
// Data or a named Struct already queued in c.structs) and the
// discriminator field's declared type, registering the discriminator
// against the named struct's id in c.discriminators when the base is
// named. Grounded on codegen::Context::process_unions's match over
// spec::DataOrType for u.base.
func (c *context) resolveUnionBase(u *schema.CombinedUnion) ([]schema.Value, *schema.TypeRef, error) {
	var fields []schema.Value

	switch {
	case u.Base.Data != nil:
		fields = u.Base.Data.Fields

	case u.Base.Type != nil:
		st := c.findStruct(u.Base.Type.Name)
		if st == nil {
			return nil, nil, fmt.Errorf("qapi/generate: union %q base type %q not found", u.ID, u.Base.Type.Name)
		}

		fields = st.Data.Fields
		c.discriminators[st.ID] = u.Discriminator

	default:
		return nil, nil, fmt.Errorf("qapi/generate: union %q has no base", u.ID)
	}

	for _, f := range fields {
		if f.Name == u.Discriminator {
			ty := f.Type
			return fields, &ty, nil
		}
	}

	return nil, nil, fmt.Errorf("qapi/generate: union %q: discriminator %q not found in its base", u.ID, u.Discriminator)
}

func (c *context) findStruct(id string) *schema.Struct {
	for _, st := range c.structs {
		if st.ID == id {
			return st
		}
	}

	return nil
}

// processStructs emits every struct queued during process, after
// combined unions have had a chance to claim a discriminator field from
// it. Grounded on spec.md §4.2's "Struct emission" step and
// codegen::Context::process's Spec::Struct arm (which this module
// defers rather than emitting eagerly — see the doc comment on
// Generate/newContext above and DESIGN.md for why).
func (c *context) processStructs() error {
	for _, st := range c.structs {
		if err := c.emitStruct(st); err != nil {
			return err
		}
	}

	return nil
}

func (c *context) emitStruct(st *schema.Struct) error {
	goName := typeIdentifier(st.ID)
	claimed := c.discriminators[st.ID]

	fmt.Fprintf(&c.buf, "\n// %s is the %q struct.\ntype %s struct {\n", goName, st.ID, goName)

	if st.Base != nil {
		baseFields, err := c.baseFields(st.Base)
		if err != nil {
			return fmt.Errorf("qapi/generate: struct %q: %w", st.ID, err)
		}

		for _, f := range baseFields {
			if f.Name == claimed {
				continue
			}

			line, err := fieldDecl(f, st.ID)
			if err != nil {
				return err
			}

			fmt.Fprintf(&c.buf, "\t%s\n", line)
		}
	}

	for _, f := range st.Data.Fields {
		if f.Name == claimed {
			continue
		}

		line, err := fieldDecl(f, st.ID)
		if err != nil {
			return err
		}

		fmt.Fprintf(&c.buf, "\t%s\n", line)
	}

	c.buf.WriteString("}\n")

	return nil
}

// baseFields resolves a struct's base (inline or named) to its field
// list, used the same way resolveUnionBase resolves a union's base.
func (c *context) baseFields(base *schema.DataOrType) ([]schema.Value, error) {
	if base.Data != nil {
		return base.Data.Fields, nil
	}

	st := c.findStruct(base.Type.Name)
	if st == nil {
		return nil, fmt.Errorf("base type %q not found", base.Type.Name)
	}

	return st.Data.Fields, nil
}

// emitEventPayload emits one event's payload struct and its
// wire.EventPayload Name() method, immediately upon encountering the
// declaration (events, unlike structs and combined unions, need no
// deferred cross-reference — only processEvents's aggregate sum type
// waits for all of them).
func (c *context) emitEventPayload(e *schema.Event) {
	goName := typeIdentifier(e.ID)

	fmt.Fprintf(&c.buf, "\n// %s is the payload of the %q event.\ntype %s struct {\n", goName, e.ID, goName)

	for _, f := range e.Data.Fields {
		line, _ := fieldDecl(f, e.ID)
		fmt.Fprintf(&c.buf, "\t%s\n", line)
	}

	c.buf.WriteString("}\n")

	fmt.Fprintf(&c.buf, "\nfunc (%s) Name() string { return %q }\n", goName, e.ID)
}

// processEvents emits the aggregate Event sum type tagged by the wire
// field "event", once every event declaration has been seen — spec.md
// §4.2's "single untagged-by-tag-field sum type over all events ...
// whose data contains the payload and a timestamp". Grounded on
// codegen::Context::process_events.
func (c *context) processEvents() {
	c.buf.WriteString("\n// Event is the union of every generated event payload, tagged by the\n// wire field \"event\" and carrying the server's timestamp.\ntype Event struct {\n\tName      string\n\tTimestamp wire.Timestamp\n")

	for _, e := range c.events {
		goName := typeIdentifier(e.ID)
		fmt.Fprintf(&c.buf, "\t%s *%s\n", goName, goName)
	}

	c.buf.WriteString("}\n")

	fmt.Fprintf(&c.buf, `
// DecodeEvent classifies a wire.Event by its Name into the matching
// payload field of Event.
func DecodeEvent(in *wire.Event) (*Event, error) {
	out := &Event{Name: in.Name, Timestamp: in.Timestamp}

	switch in.Name {
`)

	for _, e := range c.events {
		goName := typeIdentifier(e.ID)
		fmt.Fprintf(&c.buf, "\tcase %q:\n\t\tvar payload %s\n\t\tif len(in.Data) > 0 {\n\t\t\tif err := json.Unmarshal(in.Data, &payload); err != nil {\n\t\t\t\treturn nil, err\n\t\t\t}\n\t\t}\n\t\tout.%s = &payload\n", e.ID, goName, goName)
	}

	c.buf.WriteString("\tdefault:\n\t\treturn nil, fmt.Errorf(\"qapi: unrecognized event %q\", in.Name)\n\t}\n\n\treturn out, nil\n}\n")
}
