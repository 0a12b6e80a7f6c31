package generate

import "github.com/canonical/qapi/qapi/schema"

// exportedFieldName is typeIdentifier under another name, used at call
// sites that are specifically producing a Go struct field rather than a
// type/variant name — the two happen to share a casing rule (Go field
// tags carry the original wire name, so the Go-side name only needs to
// be a valid exported identifier, not a faithful case-preserving
// rewrite).
func exportedFieldName(name string) string { return typeIdentifier(name) }

// fieldDecl renders one schema.Value as a Go struct field declaration —
// name, type (with every override in overrides.go applied), and its
// json tag — for owner (the enclosing struct/command/event/union id,
// the key every override table is keyed against).
func fieldDecl(v schema.Value, owner string) (string, error) {
	key := fieldKey{owner: owner, field: v.Name}

	goType := typeName(v.Type)
	switch {
	case base64Fields[key] && v.Type.Name == "str" && !v.Type.IsArray:
		goType = "[]byte"

	case dictionaryFields[key] && v.Type.Name == "any":
		goType = "wire.Dictionary"

	case isGuestShutdownModeOverride(owner, v.Name):
		goType = "GuestShutdownMode"
	}

	boxed := false
	if target, ok := recursionBreaks[key]; ok && target == v.Type.Name && !v.Type.IsArray {
		boxed = true
		goType = "*" + goType
	}

	sliceLike := v.Type.IsArray || goType == "[]byte" || goType == "wire.Dictionary"

	tag := v.Name
	if v.Optional {
		tag += ",omitempty"

		// A nil slice/map already serializes as absent with omitempty;
		// only scalar (and already-boxed) fields need the extra pointer
		// indirection to distinguish "absent" from the zero value.
		if !sliceLike && !boxed {
			goType = "*" + goType
		}
	}

	return exportedFieldName(v.Name) + " " + goType + " `json:\"" + tag + "\"`", nil
}
