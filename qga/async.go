package qga

import (
	"context"
	"fmt"
	"io"

	"github.com/canonical/qapi/internal/engine"
	"github.com/canonical/qapi/wire"
)

// Service is the concurrent-safe handle for executing QGA commands
// against a Driver reading the same connection.
type Service struct {
	inner *engine.Service
}

// Execute sends cmd and waits for its response. QGA has no out-of-band
// mode, so this always behaves as the non-OOB, FIFO-ordered case.
func (s *Service) Execute(ctx context.Context, cmd wire.Command) (wire.Any, error) {
	return s.inner.Execute(ctx, cmd, false)
}

// Close marks this Service handle done; the Driver keeps running until
// its connection ends.
func (s *Service) Close() { s.inner.Close() }

// Driver reads the QGA connection, demultiplexing responses to pending
// Service.Execute calls. QGA never sends unsolicited events, so no event
// channel is exposed.
type Driver struct {
	inner *engine.Driver
}

// Run reads frames until the stream ends or ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error { return d.inner.Run(ctx) }

// Handshake performs the synchronous guest-sync handshake over rw, then
// returns a Service/Driver pair sharing the resulting connection. The
// Driver must be run for the Service to make progress.
func Handshake(ctx context.Context, rw io.ReadWriter, syncValue int64) (*Service, *Driver, error) {
	handshakeClient := NewClient(rw)

	if err := handshakeClient.GuestSync(ctx, syncValue); err != nil {
		return nil, nil, err
	}

	codec := handshakeClient.Codec()
	shared := engine.NewShared(false)

	svc := &Service{inner: engine.NewService(codec, shared)}
	drv := &Driver{inner: engine.NewDriver(codec, shared, demux, nil)}

	return svc, drv, nil
}

func demux(raw []byte) (*wire.Response, *wire.Event, error) {
	resp, event, err := wire.DecodeMessage(raw)
	if err != nil {
		return nil, nil, err
	}

	if event != nil {
		return nil, nil, fmt.Errorf("%w: unexpected event on a QGA connection", wire.ErrProtocol)
	}

	return resp, nil, nil
}
