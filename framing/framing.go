// Package framing implements the newline-delimited JSON codec shared by
// QMP and QGA: every message is exactly one JSON value terminated by
// '\n' (spec.md §4.3, §6).
package framing

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// json is a byte-compatible drop-in for encoding/json, used on this
// hot path (every response and event passes through it) because the
// framing codec never needs encoding/json's documented error-offset
// behavior the way qapi/parser does — see DESIGN.md.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrClosed is returned by Decode/Encode once the underlying stream has
// been closed by Close.
var ErrClosed = errors.New("framing: codec closed")

// Codec frames JSON values over a byte stream: Decode reads one '\n'
// terminated line and unmarshals it, Encode marshals a value and writes
// it followed by a single '\n'.
//
// A Codec is safe for one concurrent reader and any number of concurrent
// writers: each Encode writes its whole frame under an internal lock, so
// frames never interleave on the wire. The order in which commands are
// sent is not decided here (the protocol engine's write lock, spec.md
// §4.5.5, is responsible for that).
type Codec struct {
	r *bufio.Reader
	w io.Writer

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
	closer  io.Closer
}

// New wraps rw as a framing Codec. rw is not itself closed until Close
// is called.
func New(rw io.ReadWriter) *Codec {
	c := &Codec{r: bufio.NewReader(rw), w: rw}
	if closer, ok := rw.(io.Closer); ok {
		c.closer = closer
	}

	return c
}

// NewReadWriteCloser wraps rw, additionally closing it on Close.
func NewReadWriteCloser(rw io.ReadWriteCloser) *Codec {
	return &Codec{r: bufio.NewReader(rw), w: rw, closer: rw}
}

// Decode reads the next newline-terminated JSON value and unmarshals it
// into v. On a clean EOF with no trailing bytes, it returns io.EOF; on
// EOF with a non-empty trailing line (no final '\n' written), that line
// is decoded as one last value before io.EOF is returned on the next
// call.
func (c *Codec) Decode(v any) error {
	line, err := c.r.ReadBytes('\n')
	if len(line) == 0 {
		if err != nil {
			return err
		}

		return io.EOF
	}

	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("framing: read: %w", err)
	}

	if len(line) == 0 || isBlank(line) {
		return c.Decode(v)
	}

	if decodeErr := json.Unmarshal(line, v); decodeErr != nil {
		return fmt.Errorf("framing: decode %q: %w", line, decodeErr)
	}

	return nil
}

func isBlank(line []byte) bool {
	for _, b := range line {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return false
		}
	}

	return true
}

// Encode marshals v and writes it followed by a single '\n'. The write
// happens under the Codec's own write lock, so concurrent Encode calls
// each emit a complete frame; which of them goes first is up to the
// callers (the protocol engine orders them, spec.md §4.5.5).
func (c *Codec) Encode(v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("framing: encode: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	buf = append(buf, '\n')
	if _, err := c.w.Write(buf); err != nil {
		return fmt.Errorf("framing: write: %w", err)
	}

	return nil
}

// RunCancelable runs fn to completion, but closes c (interrupting any
// blocked Decode/Encode) if ctx is cancelled first. Both the sync
// clients (qmp.Client, qga.Client) and the async Driver use this to give
// an otherwise blocking read loop context-cancellation semantics without
// threading a deadline through bufio.
func (c *Codec) RunCancelable(ctx context.Context, fn func() error) error {
	if ctx == nil || ctx.Done() == nil {
		return fn()
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()

	err := fn()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	return err
}

// Close closes the underlying stream, if it implements io.Closer.
func (c *Codec) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	if c.closer != nil {
		return c.closer.Close()
	}

	return nil
}
