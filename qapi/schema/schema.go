// Package schema is the declaration model produced by qapi/parser and
// consumed by qapi/generate: type references, values, data records, and
// the closed set of top-level declarations (commands, structs, enums,
// alternates, unions, events, includes, pragmas).
//
// Grounded on parser::spec in the original implementation (the `Spec`
// enum and its variant structs), translated from an untagged serde enum
// into a closed Go interface (schema.Decl) discriminated by key presence
// — the same shape qapi/parser's decoder performs explicitly, since Go
// has no derive-based untagged-enum decoding.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Condition is a propositional expression over preprocessor-style
// symbols, attached to a TypeRef or an enum variant via the QAPI "if"
// key. The schema does not evaluate conditions — it records them
// verbatim for a generator to act on (or ignore, as this one does: see
// DESIGN.md).
type Condition struct {
	Raw json.RawMessage
}

// TypeRef is a reference to a named type, optionally an array of it,
// with an optional compile-time condition and a set of features
// (deprecated, unstable, ...). Grounded on parser::spec::Type, extended
// with If/Features per spec.md §3 (the single retrieved codegen
// snapshot's Type has no If/Features fields, but spec.md's data model
// names them explicitly as part of Type reference).
type TypeRef struct {
	Name     string
	IsArray  bool
	If       *Condition
	Features []string
}

// UnmarshalJSON accepts a QAPI type expression in any of its three
// shapes: a bare string, a single-element array, or an object with a
// "type" field plus optional "if"/"features". Mirrors the Visitor impl
// on parser::spec::Type, generalized to the object form spec.md adds.
func (t *TypeRef) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		t.Name, t.IsArray = asString, false
		return nil
	}

	var asArray []string
	if err := json.Unmarshal(data, &asArray); err == nil {
		if len(asArray) != 1 {
			return fmt.Errorf("schema: array type expression must have exactly one element, got %d", len(asArray))
		}

		t.Name, t.IsArray = asArray[0], true
		return nil
	}

	var asObject struct {
		Type     json.RawMessage `json:"type"`
		If       json.RawMessage `json:"if"`
		Features []string        `json:"features"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return fmt.Errorf("schema: type expression is neither string, array, nor object: %w", err)
	}

	var inner TypeRef
	if err := json.Unmarshal(asObject.Type, &inner); err != nil {
		return fmt.Errorf("schema: type expression object's \"type\": %w", err)
	}

	*t = inner
	t.Features = asObject.Features
	if len(asObject.If) > 0 {
		t.If = &Condition{Raw: asObject.If}
	}

	return nil
}

func (t TypeRef) String() string {
	if t.IsArray {
		return "[" + t.Name + "]"
	}

	return t.Name
}

// Value is a named field of a struct/command/event/union variant: a
// name, a type reference, and whether it is optional (signaled in the
// source by a leading "*" on the field name, stripped here). Grounded on
// parser::spec::Value::new.
type Value struct {
	Name     string
	Type     TypeRef
	Optional bool
}

// NewValue builds a Value from a raw (possibly "*"-prefixed) field name.
func NewValue(name string, t TypeRef) Value {
	if strings.HasPrefix(name, "*") {
		return Value{Name: name[1:], Type: t, Optional: true}
	}

	return Value{Name: name, Type: t, Optional: false}
}

// Data is an ordered mapping from field name to Value. Semantics are
// keyed lookup, but emission order is stable — spec.md §3 requires this
// for reproducible generator output, so Data is a slice, not a map, with
// Field doing a linear scan for lookups. Grounded on parser::spec::Data.
type Data struct {
	Fields []Value
}

// IsEmpty reports whether every field is optional (or there are none),
// matching parser::spec::Data::is_empty.
func (d Data) IsEmpty() bool {
	for _, f := range d.Fields {
		if !f.Optional {
			return false
		}
	}

	return true
}

// Field looks up a field by its stored (post-"*"-stripping) name.
func (d Data) Field(name string) (Value, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}

	return Value{}, false
}

// UnmarshalJSON decodes a QAPI "data" object (field-name -> type
// expression) into an ordered Data, ordering fields by their encounter
// order in the source object. encoding/json does not preserve object key
// order through map[string]T, so this decodes via json.Decoder token
// streaming instead, matching the deterministic-emission-order
// requirement in spec.md §4.2 ("Within a block ... must be documented").
func (d *Data) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("schema: data: %w", err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("schema: data: expected JSON object")
	}

	var fields []Value
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("schema: data: %w", err)
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("schema: data: expected string key")
		}

		var ty TypeRef
		if err := dec.Decode(&ty); err != nil {
			return fmt.Errorf("schema: data: field %q: %w", key, err)
		}

		fields = append(fields, NewValue(key, ty))
	}

	d.Fields = fields

	return nil
}
