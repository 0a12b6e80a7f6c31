package framing_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/qapi/framing"
)

type buf struct {
	bytes.Buffer
}

func (b *buf) Close() error { return nil }

func TestRoundTrip(t *testing.T) {
	var b buf
	c := framing.New(&b)

	require.NoError(t, c.Encode(map[string]any{"a": 1}))

	var got map[string]any
	require.NoError(t, c.Decode(&got))
	require.Equal(t, float64(1), got["a"])
}

func TestMultipleValuesConcatenated(t *testing.T) {
	var b buf
	c := framing.New(&b)

	require.NoError(t, c.Encode("first"))
	require.NoError(t, c.Encode("second"))
	require.NoError(t, c.Encode("third"))

	for _, want := range []string{"first", "second", "third"} {
		var got string
		require.NoError(t, c.Decode(&got))
		require.Equal(t, want, got)
	}

	var ignored string
	require.ErrorIs(t, c.Decode(&ignored), io.EOF)
}

func TestDecodeTrailingLineWithoutNewline(t *testing.T) {
	r := bytes.NewBufferString(`{"return":{}}`)
	c := framing.New(struct {
		io.Reader
		io.Writer
	}{r, io.Discard})

	var got map[string]any
	require.NoError(t, c.Decode(&got))
	require.Contains(t, got, "return")

	require.ErrorIs(t, c.Decode(&got), io.EOF)
}

func TestDecodeBlankLinesIgnored(t *testing.T) {
	r := bytes.NewBufferString("\n\n{\"x\":1}\n")
	c := framing.New(struct {
		io.Reader
		io.Writer
	}{r, io.Discard})

	var got map[string]any
	require.NoError(t, c.Decode(&got))
	require.Equal(t, float64(1), got["x"])
}
