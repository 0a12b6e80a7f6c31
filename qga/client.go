// Package qga implements QEMU's Guest Agent protocol: a synchronous
// Client (GuestSync/Execute) and an async Service/Driver pair built on
// internal/engine. Unlike QMP, QGA never sends unsolicited events — every
// inbound frame is a command response (spec.md §4.5.4).
package qga

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/canonical/qapi/framing"
	"github.com/canonical/qapi/wire"
)

// Client is a blocking QGA session. Grounded directly on Qga<S> in the
// original implementation (guest_sync, execute).
type Client struct {
	codec *framing.Codec

	syncTimeout time.Duration
}

// Option configures a Client at construction time, the same
// functional-options shape qmp.Client uses (grounded on
// _examples/MacroPower-x/magicschema's Generator options).
type Option func(*Client)

// WithSyncTimeout bounds GuestSync's duration when the context passed
// to it carries no deadline of its own.
func WithSyncTimeout(d time.Duration) Option {
	return func(c *Client) { c.syncTimeout = d }
}

// NewClient wraps rw as a QGA session.
func NewClient(rw io.ReadWriter, opts ...Option) *Client {
	c := &Client{codec: framing.New(rw)}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Close releases the underlying transport, if it implements io.Closer.
func (c *Client) Close() error { return c.codec.Close() }

// Codec returns the framing.Codec backing this Client, so an async
// handshake can hand the same buffered connection to a Driver afterwards.
func (c *Client) Codec() *framing.Codec { return c.codec }

// GuestSync sends a guest-sync command carrying syncValue and confirms
// the agent echoed it back — the standard QGA connection-liveness
// handshake. It reads exactly one response; any other value (including
// a stale reply to an earlier command) fails the handshake. Matches
// Qga::guest_sync.
func (c *Client) GuestSync(ctx context.Context, syncValue int64) error {
	if c.syncTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.syncTimeout)
			defer cancel()
		}
	}

	return c.codec.RunCancelable(ctx, func() error {
		res, err := c.execute(guestSync{ID: syncValue})
		if err != nil {
			return err
		}

		var got int64
		if err := json.Unmarshal(res, &got); err != nil {
			return fmt.Errorf("qga: guest-sync: decode response: %w", err)
		}

		if got != syncValue {
			return fmt.Errorf("qga: guest-sync: handshake failed, got %d want %d", got, syncValue)
		}

		return nil
	})
}

// Execute sends cmd and returns its decoded "return" value.
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
		return nil, fmt.Errorf("qga: send %s: %w", cmd.Name(), err)
	}

	var raw wire.Any
	if err := c.codec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("qga: read response to %s: %w", cmd.Name(), err)
	}

	resp, event, err := wire.DecodeMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrProtocol, err)
	}

	if event != nil {
		return nil, fmt.Errorf("%w: unexpected event on a QGA connection", wire.ErrProtocol)
	}

	return resp.Result()
}
