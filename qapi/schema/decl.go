package schema

import "encoding/json"

// Decl is the closed set of top-level QAPI declarations, matching
// parser::spec::Spec's variants. Go has no tagged-union language
// feature, so the closure is enforced by an unexported marker method;
// every concrete type below is a *pointer* receiver implementation so
// callers can type-switch on Decl values directly.
type Decl interface {
	isDecl()
}

// Include is a relative include directive, resolved by qapi/parser
// against the including file's directory.
type Include struct {
	Path string
}

func (*Include) isDecl() {}

// DataOrType is a command or union base that is either an inline Data
// record or a reference to a named type, matching
// parser::spec::DataOrType. Exactly one of Data/Type is populated.
type DataOrType struct {
	Data *Data
	Type *TypeRef
}

// IsData reports whether this is an inline Data record (as opposed to a
// named-type reference).
func (d DataOrType) IsData() bool { return d.Data != nil }

// UnmarshalJSON decides between the two shapes by trying Data (a JSON
// object) first, then TypeRef (string/array/object-with-"type").
// Mirrors the untagged enum in the original (Data variant tried first).
func (d *DataOrType) UnmarshalJSON(raw []byte) error {
	var asData Data
	if err := json.Unmarshal(raw, &asData); err == nil {
		d.Data = &asData
		return nil
	}

	var asType TypeRef
	if err := json.Unmarshal(raw, &asType); err != nil {
		return err
	}

	d.Type = &asType

	return nil
}

// Command is a QAPI command declaration. Grounded on parser::spec::Command,
// extended with AllowOOB/Features/Gen per spec.md §3 (present in the
// QAPI schema as "allow-oob"/"features"/"gen" keys, absent from the
// single retrieved codegen snapshot's Command struct but required by the
// expanded spec — see SPEC_FULL.md §4.2).
type Command struct {
	ID       string
	Data     DataOrType
	Returns  *TypeRef
	AllowOOB bool
	Features []string
	// Gen is true unless the schema sets "gen": false, meaning the
	// command's arguments are an open dictionary rather than a closed
	// struct (spec.md §3, §9's Open Question on gen=false).
	Gen bool
}

func (*Command) isDecl() {}

// UnmarshalJSON decodes the QAPI wire shape
// {"command": id, "data": ..., "returns": ..., "allow-oob": ..., "gen": ...}.
func (c *Command) UnmarshalJSON(raw []byte) error {
	var wire struct {
		ID       string      `json:"command"`
		Data     *DataOrType `json:"data"`
		Returns  *TypeRef    `json:"returns"`
		AllowOOB bool        `json:"allow-oob"`
		Features []string    `json:"features"`
		Gen      *bool       `json:"gen"`
	}

	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	c.ID = wire.ID
	if wire.Data != nil {
		c.Data = *wire.Data
	} else {
		c.Data = DataOrType{Data: &Data{}}
	}

	c.Returns = wire.Returns
	c.AllowOOB = wire.AllowOOB
	c.Features = wire.Features
	c.Gen = wire.Gen == nil || *wire.Gen

	return nil
}

// Struct is a QAPI struct declaration: an identifier, inline fields, and
// an optional base (flattened by the generator). Grounded on
// parser::spec::Struct, extended with Base per spec.md §3 ("either an
// inline base Data or a base Type reference").
type Struct struct {
	ID   string
	Data Data
	Base *DataOrType
}

func (*Struct) isDecl() {}

func (s *Struct) UnmarshalJSON(raw []byte) error {
	var wire struct {
		ID   string      `json:"struct"`
		Data Data        `json:"data"`
		Base *DataOrType `json:"base"`
	}

	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	s.ID, s.Data, s.Base = wire.ID, wire.Data, wire.Base

	return nil
}

// Alternate is an untagged union: the first alternative whose shape
// matches wins on decode. Grounded on parser::spec::Alternate.
type Alternate struct {
	ID   string
	Data Data
}

func (*Alternate) isDecl() {}

func (a *Alternate) UnmarshalJSON(raw []byte) error {
	var wire struct {
		ID   string `json:"alternate"`
		Data Data   `json:"data"`
	}

	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	a.ID, a.Data = wire.ID, wire.Data

	return nil
}

// Enum is a closed set of variant names. Grounded on parser::spec::Enum.
// Variants are decoded from a JSON array of plain strings only: no
// per-variant condition is recorded, and a variant written in object
// form (with its own "if") is rejected as a decode error.
type Enum struct {
	ID       string
	Variants []string
}

func (*Enum) isDecl() {}

func (e *Enum) UnmarshalJSON(raw []byte) error {
	var wire struct {
		ID   string   `json:"enum"`
		Data []string `json:"data"`
	}

	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	e.ID, e.Variants = wire.ID, wire.Data

	return nil
}

// Union is a simple tagged union: {tag: discriminator, variant: {data: T}}.
// Grounded on parser::spec::Union.
type Union struct {
	ID            string
	Discriminator string
	Data          Data
}

func (*Union) isDecl() {}

func (u *Union) UnmarshalJSON(raw []byte) error {
	var wire struct {
		ID            string  `json:"union"`
		Discriminator *string `json:"discriminator"`
		Data          Data    `json:"data"`
	}

	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	u.ID = wire.ID
	u.Data = wire.Data
	u.Discriminator = "type"
	if wire.Discriminator != nil {
		u.Discriminator = *wire.Discriminator
	}

	return nil
}

// CombinedUnion is a tagged union with a base (inline or named-type) in
// addition to its discriminated variant data — the hard case spec.md
// §4.2 describes at length. Grounded on parser::spec::CombinedUnion.
type CombinedUnion struct {
	ID            string
	Base          DataOrType
	Discriminator string
	Data          Data
}

func (*CombinedUnion) isDecl() {}

func (u *CombinedUnion) UnmarshalJSON(raw []byte) error {
	var wire struct {
		ID            string     `json:"union"`
		Base          DataOrType `json:"base"`
		Discriminator *string    `json:"discriminator"`
		Data          Data       `json:"data"`
	}

	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	u.ID = wire.ID
	u.Base = wire.Base
	u.Data = wire.Data
	u.Discriminator = "type"
	if wire.Discriminator != nil {
		u.Discriminator = *wire.Discriminator
	}

	return nil
}

// Event is a QAPI event declaration: an identifier and a Data of payload
// fields. Grounded on parser::spec::Event.
type Event struct {
	ID   string
	Data Data
}

func (*Event) isDecl() {}

func (e *Event) UnmarshalJSON(raw []byte) error {
	var wire struct {
		ID   string `json:"event"`
		Data Data   `json:"data"`
	}

	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	e.ID, e.Data = wire.ID, wire.Data

	return nil
}

// PragmaWhitelist and PragmaDocRequired are the recognized pragma
// bodies (any other body becomes a PragmaUnknown, not a parse error);
// all three are ignored by the generator, per spec.md §3/§4.1 and "Supplemented features" #5 in
// SPEC_FULL.md.
type PragmaWhitelist struct {
	ReturnsWhitelist  []string
	NameCaseWhitelist []string
}

func (*PragmaWhitelist) isDecl() {}

type PragmaDocRequired struct {
	DocRequired bool
}

func (*PragmaDocRequired) isDecl() {}

// PragmaUnknown is any pragma body that isn't PragmaWhitelist or
// PragmaDocRequired. Per spec.md §4.1 ("Pragmas with unknown bodies are
// accepted"), the parser must not fail on these; the generator simply
// never acts on them.
type PragmaUnknown struct {
	Raw json.RawMessage
}

func (*PragmaUnknown) isDecl() {}
