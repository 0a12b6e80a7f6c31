package qmp

import (
	"context"
	"io"

	"github.com/canonical/qapi/internal/engine"
	"github.com/canonical/qapi/wire"
)

// Service is the concurrent-safe handle for executing QMP commands
// against a Driver reading the same connection. Grounded on
// QapiService in the original's futures module, realized over
// internal/engine.Service.
type Service struct {
	inner *engine.Service
}

// Execute sends cmd in-band ("execute") and waits for its response.
func (s *Service) Execute(ctx context.Context, cmd wire.Command) (wire.Any, error) {
	return s.inner.Execute(ctx, cmd, false)
}

// ExecuteOOB is Execute with out-of-band delivery requested; it is
// silently downgraded to in-band if OOB was not negotiated during the
// handshake or cmd does not allow it (internal/engine enforces this).
func (s *Service) ExecuteOOB(ctx context.Context, cmd wire.Command) (wire.Any, error) {
	return s.inner.Execute(ctx, cmd, true)
}

// Close marks this Service handle done; the Driver keeps running until
// its connection ends.
func (s *Service) Close() { s.inner.Close() }

// Driver reads the QMP connection, demultiplexing responses to pending
// Service.Execute calls and events to the channel returned by Handshake.
type Driver struct {
	inner *engine.Driver
}

// Run reads frames until the stream ends or ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error { return d.inner.Run(ctx) }

// Handshake performs the synchronous QMP greeting/qmp_capabilities
// exchange over rw, then returns a Service/Driver pair sharing the
// resulting connection plus a channel of subsequent events. The Driver
// must be run (typically via `go driver.Run(ctx)`) for the Service to
// make progress.
func Handshake(ctx context.Context, rw io.ReadWriter, caps ...wire.Capability) (*wire.Greeting, *Service, *Driver, <-chan *wire.Event, error) {
	handshakeClient := NewClient(rw)

	greeting, err := handshakeClient.Handshake(ctx, caps...)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	codec := handshakeClient.Codec()
	shared := engine.NewShared(greeting.HasCapability(wire.OOB))
	events := make(chan *wire.Event, 16)

	svc := &Service{inner: engine.NewService(codec, shared)}
	drv := &Driver{inner: engine.NewDriver(codec, shared, demux, events)}

	return greeting, svc, drv, events, nil
}

func demux(raw []byte) (*wire.Response, *wire.Event, error) {
	return wire.DecodeMessage(raw)
}
