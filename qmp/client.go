// Package qmp implements QEMU's QMP control protocol: the synchronous
// Client (blocking handshake/execute/events) and the asynchronous
// Service/Driver pair built on internal/engine.
package qmp

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/canonical/qapi/framing"
	"github.com/canonical/qapi/wire"
)

// Client is a blocking QMP session: one goroutine writes a command and
// reads frames until it sees that command's response, queuing any events
// seen along the way for a later call to Events. Grounded directly on
// qapi_impl::Qmp<S> in the original implementation (read_capabilities,
// execute, handshake, nop).
type Client struct {
	codec  *framing.Codec
	events []*wire.Event

	handshakeTimeout time.Duration
}

// Option configures a Client at construction time. Grounded on the
// functional-options shape _examples/MacroPower-x/magicschema's
// Generator uses (an unexported options struct, a closure-returning
// With... constructor per knob), adapted to this package's connection
// setup rather than schema generation.
type Option func(*Client)

// WithHandshakeTimeout bounds Handshake's duration when the context
// passed to it carries no deadline of its own; the zero value (the
// default) leaves Handshake waiting on ctx alone.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshakeTimeout = d }
}

// NewClient wraps rw as a QMP session. Handshake must be called before
// any other method.
func NewClient(rw io.ReadWriter, opts ...Option) *Client {
	c := &Client{codec: framing.New(rw)}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Close releases the underlying transport, if it implements io.Closer.
func (c *Client) Close() error { return c.codec.Close() }

// Codec returns the framing.Codec backing this Client. Handshake uses it
// to hand the same buffered reader off to an async Driver afterwards —
// building a second Codec over the same io.ReadWriter would silently
// drop any bytes already buffered by this one.
func (c *Client) Codec() *framing.Codec { return c.codec }

// Handshake reads the server's greeting, negotiates the given
// capabilities with qmp_capabilities, and returns the greeting.
// Matches Qmp::handshake, which is always given an empty enable list in
// the original; this Client additionally lets a caller opt in to "oob".
func (c *Client) Handshake(ctx context.Context, caps ...wire.Capability) (*wire.Greeting, error) {
	if c.handshakeTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
			defer cancel()
		}
	}

	var greeting *wire.Greeting

	err := c.codec.RunCancelable(ctx, func() error {
		var g wire.Greeting
		if err := c.codec.Decode(&g); err != nil {
			return fmt.Errorf("qmp: read greeting: %w", err)
		}

		if _, err := c.execute(qmpCapabilities{Enable: caps}); err != nil {
			return fmt.Errorf("qmp: qmp_capabilities: %w", err)
		}

		greeting = &g

		return nil
	})
	if err != nil {
		return nil, err
	}

	return greeting, nil
}

// Execute sends cmd and returns its decoded "return" value, queuing any
// events observed while waiting for the response.
func (c *Client) Execute(ctx context.Context, cmd wire.Command) (wire.Any, error) {
	var result wire.Any

	err := c.codec.RunCancelable(ctx, func() error {
		res, err := c.execute(cmd)
		result = res

		return err
	})

	return result, err
}

func (c *Client) execute(cmd wire.Command) (wire.Any, error) {
	env, err := wire.NewEnvelope(cmd, nil, false)
	if err != nil {
		return nil, err
	}

	if err := c.codec.Encode(env); err != nil {
		return nil, fmt.Errorf("qmp: send %s: %w", cmd.Name(), err)
	}

	for {
		var raw wire.Any
		if err := c.codec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("qmp: read response to %s: %w", cmd.Name(), err)
		}

		resp, event, err := wire.DecodeMessage(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", wire.ErrProtocol, err)
		}

		if event != nil {
			c.events = append(c.events, event)
			continue
		}

		return resp.Result()
	}
}

// Events drains and returns every event queued since the last call,
// matching Qmp::events' drain semantics.
func (c *Client) Events() []*wire.Event {
	events := c.events
	c.events = nil

	return events
}

// Nop performs a round trip (query-version) purely to poll the
// connection for pending events, mirroring Qmp::nop's documented use.
func (c *Client) Nop(ctx context.Context) error {
	_, err := c.Execute(ctx, queryVersion{})
	return err
}
