package parser_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/qapi/qapi/parser"
	"github.com/canonical/qapi/qapi/schema"
)

// writeSchema lays out a small multi-file schema under a temp dir,
// including a diamond-shaped include graph (both root.json and
// sub/sub.json include common.json) to exercise the S6 dedup
// property from spec.md §8: common.json must be parsed exactly once.
func writeSchema(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()

	files := map[string]string{
		"root.json": `
{ 'include': 'common.json' }
{ 'include': 'sub/sub.json' }
{ 'command': 'query-status', 'returns': 'StatusInfo' }
`,
		"common.json": `
{ 'struct': 'StatusInfo', 'data': { 'running': 'bool' } }
`,
		"sub/sub.json": `
{ 'include': '../common.json' }
{ 'enum': 'RunState', 'data': ['running', 'paused'] }
`,
	}

	for name, contents := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}

	return dir
}

func TestCompileResolvesIncludesAndDedupsCommonFile(t *testing.T) {
	dir := writeSchema(t)

	result, err := parser.Compile(dir, "root.json")
	require.NoError(t, err)

	require.Len(t, result.Included, 3)

	var sawStruct, sawEnum, sawCommand int
	for _, decl := range result.Decls {
		switch decl.(type) {
		case *schema.Struct:
			sawStruct++
		case *schema.Enum:
			sawEnum++
		case *schema.Command:
			sawCommand++
		}
	}

	require.Equal(t, 1, sawStruct, "common.json's StatusInfo must be emitted exactly once despite two include paths")
	require.Equal(t, 1, sawEnum)
	require.Equal(t, 1, sawCommand)
}

func TestCompileMissingIncludeFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root.json"), []byte(`{ 'include': 'missing.json' }`), 0o644))

	_, err := parser.Compile(dir, "root.json")
	require.Error(t, err)
}
