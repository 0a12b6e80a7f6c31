package parser_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/qapi/qapi/parser"
	"github.com/canonical/qapi/qapi/schema"
)

func TestPreprocessStripsCommentsAndQuotes(t *testing.T) {
	src := "# leading comment\n" +
		"{ 'command': 'query-status' } # trailing comment\n" +
		"\n" +
		"{ 'struct': 'Empty', 'data': {} }\n"

	got := parser.Preprocess(src)
	require.NotContains(t, got, "#")
	require.NotContains(t, got, "'")
	require.Contains(t, got, `"command": "query-status"`)
}

func TestParserDecodesBareConcatenatedObjects(t *testing.T) {
	src := parser.Preprocess(`
{ 'command': 'query-status', 'returns': 'StatusInfo' }
{ 'struct': 'StatusInfo', 'data': { 'running': 'bool', '*singlestep': 'bool' } }
`)

	p := parser.New(src)

	var decls []schema.Decl
	for p.More() {
		decl, err := p.Next()
		require.NoError(t, err)
		decls = append(decls, decl)
	}

	require.Len(t, decls, 2)

	cmd, ok := decls[0].(*schema.Command)
	require.True(t, ok)
	require.Equal(t, "query-status", cmd.ID)
	require.Equal(t, "StatusInfo", cmd.Returns.Name)

	st, ok := decls[1].(*schema.Struct)
	require.True(t, ok)
	require.Equal(t, "StatusInfo", st.ID)
	require.Len(t, st.Data.Fields, 2)

	running, ok := st.Data.Field("running")
	require.True(t, ok)
	require.False(t, running.Optional)

	singlestep, ok := st.Data.Field("singlestep")
	require.True(t, ok)
	require.True(t, singlestep.Optional)
}

func TestParserDecodesEnumAlternateEventUnion(t *testing.T) {
	src := parser.Preprocess(`
{ 'enum': 'GuestShutdownMode', 'data': ['powerdown', 'reboot', 'halt'] }
{ 'alternate': 'BlockdevRef', 'data': { 'definition': 'BlockdevOptions', 'reference': 'str' } }
{ 'event': 'SHUTDOWN', 'data': { 'guest': 'bool', 'reason': 'ShutdownCause' } }
{ 'union': 'BlockdevOptions', 'base': { 'driver': 'BlockdevDriver' }, 'discriminator': 'driver', 'data': { 'file': 'BlockdevOptionsFile' } }
`)

	p := parser.New(src)

	var decls []schema.Decl
	for p.More() {
		decl, err := p.Next()
		require.NoError(t, err)
		decls = append(decls, decl)
	}

	require.Len(t, decls, 4)
	require.IsType(t, &schema.Enum{}, decls[0])
	require.IsType(t, &schema.Alternate{}, decls[1])
	require.IsType(t, &schema.Event{}, decls[2])

	union, ok := decls[3].(*schema.CombinedUnion)
	require.True(t, ok)
	require.Equal(t, "driver", union.Discriminator)
	require.True(t, union.Base.IsData())
}

func TestParserAcceptsUnknownPragmaBody(t *testing.T) {
	src := parser.Preprocess(`{ 'pragma': { 'some-future-key': true } }`)

	p := parser.New(src)
	require.True(t, p.More())

	decl, err := p.Next()
	require.NoError(t, err)
	require.IsType(t, &schema.PragmaUnknown{}, decl)
}

func TestParserRejectsUnknownDiscriminator(t *testing.T) {
	src := parser.Preprocess(`{ 'bogus': 'nope' }`)

	p := parser.New(src)
	require.True(t, p.More())

	_, err := p.Next()
	require.Error(t, err)
}

func TestParserRejectsNestedArrayType(t *testing.T) {
	src := parser.Preprocess(`{ 'struct': 'Bad', 'data': { 'field': [['Foo']] } }`)

	p := parser.New(src)
	require.True(t, p.More())

	_, err := p.Next()
	require.Error(t, err)
}
