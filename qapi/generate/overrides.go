package generate

// fieldKey identifies one (enclosing declaration id, field name) pair in
// the schema, the granularity every fixed override table below keys on.
// All three tables are transcribed from codegen::valuety's hardcoded
// chains of if/else comparisons — spec.md §4.2 calls them out by name as
// "a small, fixed list" each, so they start out as fixed lists here too;
// the Add* functions at the bottom of this file can append entries at
// runtime.
type fieldKey struct {
	owner string
	field string
}

// recursionBreaks is the three self-referential struct-field edges the
// QEMU schema contains that would otherwise make the generated Go type
// infinitely sized; each maps to the field's expected declared type and
// is emitted as a pointer field instead of a value field.
// codegen::valuety's "boxed" override, the struct-field half — spec.md
// §4.2 names these as "(parent struct, field name, target type)"
// triples, so the owner is part of the key here even though the
// original's literal check only compares field name + field type. The
// fourth recursive edge the original special-cases, an alternate
// variant whose type is its own enclosing alternate (BlockdevOptions's
// "definition" variant), needs no entry here: every alternate variant
// field is already a pointer (see fieldGoType), so that edge is boxed
// the same way every other variant is.
var recursionBreaks = map[fieldKey]string{
	{owner: "ImageInfo", field: "backing-image"}: "ImageInfo",
	{owner: "BlockStats", field: "backing"}:      "BlockStats",
	{owner: "BlockStats", field: "parent"}:       "BlockStats",
}

// base64Fields is the fixed list of str-typed fields that are actually
// base64-encoded byte blobs on the wire. Represented in Go as []byte,
// whose encoding/json default encoding already is base64 — no "with"
// attribute machinery is needed the way the Rust original required
// serde_with helpers (qapi::base64 / qapi::base64_opt), since Go's
// standard encoder performs this exact transform natively for byte
// slices. See DESIGN.md.
var base64Fields = map[fieldKey]bool{
	{owner: "GuestFileRead", field: "buf-b64"}:             true,
	{owner: "guest-file-write", field: "buf-b64"}:          true,
	{owner: "guest-set-user-password", field: "password"}:  true,
	{owner: "GuestExecStatus", field: "out-data"}:          true,
	{owner: "GuestExecStatus", field: "err-data"}:          true,
	{owner: "guest-exec", field: "input-data"}:             true,
	{owner: "QCryptoSecretFormat", field: "base64"}:        true,
}

// dictionaryFields is the fixed list of any-typed fields that are
// actually opaque string-keyed dictionaries rather than arbitrary JSON.
var dictionaryFields = map[fieldKey]bool{
	{owner: "object-add", field: "props"}:   true,
	{owner: "CpuModelInfo", field: "props"}: true,
}

// guestShutdownModeOverride is the one field whose declared schema type
// (str) is widened by convention to a closed enum GuestShutdownMode that
// the schema itself does not declare as such; codegen::valuety special-cases
// it by the same (owner, field) pair.
func isGuestShutdownModeOverride(owner, field string) bool {
	return owner == "guest-shutdown" && field == "mode"
}

// AddRecursionBreak, AddBase64Field and AddDictionaryField extend the
// fixed override tables above at runtime, so a caller who hits a QEMU
// schema revision with a new self-referential field, base64 blob, or
// opaque-dict field doesn't need a rebuild to teach the generator about
// it — cmd/qapi-gen's --overrides flag reads a YAML file and calls
// these before invoking Generate.
func AddRecursionBreak(owner, field, target string) {
	recursionBreaks[fieldKey{owner: owner, field: field}] = target
}

func AddBase64Field(owner, field string) {
	base64Fields[fieldKey{owner: owner, field: field}] = true
}

func AddDictionaryField(owner, field string) {
	dictionaryFields[fieldKey{owner: owner, field: field}] = true
}
