// Package parser implements the QAPI schema lexer/decoder: comment and
// quote preprocessing, streaming decode of a file that is a bare
// concatenation of JSON objects (no separators), and include resolution
// relative to the including file's directory.
//
// Grounded on parser::{strip_comments, Parser, QemuRepo, QemuFileRepo} in
// _examples/original_source/parser/src/lib.rs.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/canonical/qapi/qapi/schema"
)

// Preprocess strips comment/blank lines and rewrites single quotes to
// double quotes, mirroring Parser::strip_comments line-by-line. QAPI
// schema files are not valid JSON on their own; this is always the first
// step before decoding.
func Preprocess(src string) string {
	lines := strings.Split(src, "\n")

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		line = strings.ReplaceAll(line, "'", `"`)
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		out = append(out, line)
	}

	return strings.Join(out, "\n")
}

// ParseError wraps a decode failure with the byte offset that produced
// it, so callers can report a useful location even though this package
// does not track line/column the way the Rust original's
// serde_json::Error did.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("qapi: parse error at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser decodes a position-bounded sequence of bare-concatenated JSON
// objects into schema declarations. Each call to Next decodes exactly
// one top-level object.
//
// Grounded on parser::Parser's Iterator impl: encoding/json.Decoder
// already does most of this job for free (json.NewDecoder(r).Decode
// reads one JSON value and leaves the cursor positioned after it,
// tolerating subsequent unrelated bytes) — unlike the Rust original,
// which had to re-derive value boundaries from a SyntaxError's
// line/column because serde_json::Deserializer::from_str has no
// incremental decode mode. This package keeps the *algorithm* (decode
// one value, advance past it, repeat until EOF) but needs none of the
// re-parse-on-error machinery the Rust side required — see DESIGN.md.
type Parser struct {
	dec *json.Decoder
	src string
}

// New wraps already-preprocessed QAPI schema text.
func New(preprocessed string) *Parser {
	r := strings.NewReader(preprocessed)
	return &Parser{dec: json.NewDecoder(r), src: preprocessed}
}

// More reports whether another declaration is available.
func (p *Parser) More() bool { return p.dec.More() }

// Next decodes the next top-level declaration and classifies it by its
// discriminating key, mirroring the dispatch parser::Context::process
// performs on parser::spec::Spec. Returns io.EOF-wrapping behavior via
// More() — callers should check More() before calling Next(), as in:
//
//	for p.More() {
//	    decl, err := p.Next()
//	    ...
//	}
func (p *Parser) Next() (schema.Decl, error) {
	var raw json.RawMessage
	if err := p.dec.Decode(&raw); err != nil {
		return nil, &ParseError{Offset: p.dec.InputOffset(), Err: err}
	}

	decl, err := decodeDecl(raw)
	if err != nil {
		return nil, &ParseError{Offset: p.dec.InputOffset(), Err: err}
	}

	return decl, nil
}

// keyProbe is decoded once per declaration purely to discover which
// discriminating key is present; the concrete type's own UnmarshalJSON
// is then used for the real decode, exactly as
// parser::spec::Spec's untagged enum tries each variant shape in turn
// (here driven by key name instead of trial-and-error, since Go doesn't
// have serde's untagged-enum machinery).
type keyProbe struct {
	Include json.RawMessage `json:"include"`
	Command json.RawMessage `json:"command"`
	Struct  json.RawMessage `json:"struct"`
	Alt     json.RawMessage `json:"alternate"`
	Enum    json.RawMessage `json:"enum"`
	Event   json.RawMessage `json:"event"`
	Union   json.RawMessage `json:"union"`
	Base    json.RawMessage `json:"base"`
	Pragma  json.RawMessage `json:"pragma"`
}

func decodeDecl(raw json.RawMessage) (schema.Decl, error) {
	var probe keyProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("malformed declaration: %w", err)
	}

	switch {
	case len(probe.Include) > 0:
		var inc struct {
			Include string `json:"include"`
		}
		if err := json.Unmarshal(raw, &inc); err != nil {
			return nil, err
		}

		return &schema.Include{Path: inc.Include}, nil

	case len(probe.Command) > 0:
		var v schema.Command
		return &v, json.Unmarshal(raw, &v)

	case len(probe.Struct) > 0:
		var v schema.Struct
		return &v, json.Unmarshal(raw, &v)

	case len(probe.Alt) > 0:
		var v schema.Alternate
		return &v, json.Unmarshal(raw, &v)

	case len(probe.Enum) > 0:
		var v schema.Enum
		return &v, json.Unmarshal(raw, &v)

	case len(probe.Event) > 0:
		var v schema.Event
		return &v, json.Unmarshal(raw, &v)

	case len(probe.Union) > 0 && len(probe.Base) > 0:
		var v schema.CombinedUnion
		return &v, json.Unmarshal(raw, &v)

	case len(probe.Union) > 0:
		var v schema.Union
		return &v, json.Unmarshal(raw, &v)

	case len(probe.Pragma) > 0:
		return decodePragma(probe.Pragma)

	default:
		return nil, fmt.Errorf("unknown top-level declaration, recognized keys are include/command/struct/alternate/enum/event/union/pragma")
	}
}

func decodePragma(body json.RawMessage) (schema.Decl, error) {
	var whitelist struct {
		ReturnsWhitelist  *[]string `json:"returns-whitelist"`
		NameCaseWhitelist []string  `json:"name-case-whitelist"`
	}
	if err := json.Unmarshal(body, &whitelist); err == nil && whitelist.ReturnsWhitelist != nil {
		return &schema.PragmaWhitelist{
			ReturnsWhitelist:  *whitelist.ReturnsWhitelist,
			NameCaseWhitelist: whitelist.NameCaseWhitelist,
		}, nil
	}

	var docRequired struct {
		DocRequired *bool `json:"doc-required"`
	}
	if err := json.Unmarshal(body, &docRequired); err == nil && docRequired.DocRequired != nil {
		return &schema.PragmaDocRequired{DocRequired: *docRequired.DocRequired}, nil
	}

	return &schema.PragmaUnknown{Raw: body}, nil
}
