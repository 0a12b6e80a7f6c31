package engine_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/canonical/qapi/framing"
	"github.com/canonical/qapi/internal/engine"
	"github.com/canonical/qapi/wire"
)

// pipe glues one end of two in-memory io.Pipes into a single
// io.ReadWriteCloser, so a Service/Driver pair can talk to itself
// in-process with real blocking read semantics (unlike bytes.Buffer,
// whose Read returns io.EOF rather than blocking when empty).
type pipe struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipe) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipe) Close() error {
	_ = p.r.Close()
	return p.w.Close()
}

func newLoopback() (client *framing.Codec, server *framing.Codec) {
	serverToClientR, serverToClientW := io.Pipe()
	clientToServerR, clientToServerW := io.Pipe()

	client = framing.NewReadWriteCloser(&pipe{r: serverToClientR, w: clientToServerW})
	server = framing.NewReadWriteCloser(&pipe{r: clientToServerR, w: serverToClientW})

	return client, server
}

type stubCommand struct {
	name string
	args any
}

func (c *stubCommand) Name() string     { return c.name }
func (c *stubCommand) AllowOOB() bool   { return true }
func (c *stubCommand) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.args)
}

func qmpDemux(raw []byte) (*wire.Response, *wire.Event, error) {
	return wire.DecodeMessage(raw)
}

func TestExecuteNonOOBRoundTrip(t *testing.T) {
	client, server := newLoopback()
	shared := engine.NewShared(false)
	svc := engine.NewService(client, shared)
	drv := engine.NewDriver(client, shared, qmpDemux, nil)

	go func() {
		require.NoError(t, respondAsync(server))
	}()

	go func() { _ = drv.Run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := svc.Execute(ctx, &stubCommand{name: "query-status"}, false)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(res))
}

func respondAsync(server *framing.Codec) error {
	var env wire.Envelope
	if err := server.Decode(&env); err != nil {
		return err
	}

	return server.Encode(wire.Response{Return: json.RawMessage(`{"ok":true}`), ID: env.ID})
}

func TestExecuteOOBAssignsID(t *testing.T) {
	client, server := newLoopback()
	shared := engine.NewShared(true)
	svc := engine.NewService(client, shared)
	drv := engine.NewDriver(client, shared, qmpDemux, nil)

	go func() { _ = drv.Run(context.Background()) }()
	go func() {
		var env wire.Envelope
		require.NoError(t, server.Decode(&env))
		require.NotNil(t, env.ID)

		require.NoError(t, server.Encode(wire.Response{Return: json.RawMessage(`1`), ID: env.ID}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := svc.Execute(ctx, &stubCommand{name: "query-version"}, true)
	require.NoError(t, err)
	require.JSONEq(t, `1`, string(res))
}

func TestExecuteErrorResponse(t *testing.T) {
	client, server := newLoopback()
	shared := engine.NewShared(false)
	svc := engine.NewService(client, shared)
	drv := engine.NewDriver(client, shared, qmpDemux, nil)

	go func() { _ = drv.Run(context.Background()) }()
	go func() {
		var env wire.Envelope
		require.NoError(t, server.Decode(&env))
		require.NoError(t, server.Encode(wire.Response{
			Error: &wire.Error{Class: wire.ErrorClassCommandNotFound, Desc: "no such command"},
			ID:    env.ID,
		}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := svc.Execute(ctx, &stubCommand{name: "bogus"}, false)
	require.Error(t, err)

	var wireErr *wire.Error
	require.ErrorAs(t, err, &wireErr)
	require.Equal(t, wire.ErrorClassCommandNotFound, wireErr.Class)
}

func TestDriverDeliversEventsAndUnblocksOnEOF(t *testing.T) {
	client, server := newLoopback()
	shared := engine.NewShared(false)
	events := make(chan *wire.Event, 1)
	drv := engine.NewDriver(client, shared, qmpDemux, events)

	done := make(chan error, 1)
	go func() { done <- drv.Run(context.Background()) }()

	go func() {
		require.NoError(t, server.Encode(wire.Event{Name: "SHUTDOWN"}))
		require.NoError(t, server.Close())
	}()

	select {
	case ev := <-events:
		require.Equal(t, "SHUTDOWN", ev.Name)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("driver did not return after stream EOF")
	}

	_, stillOpen := <-events
	require.False(t, stillOpen, "events channel must be closed once the driver exits")
}

func TestExecuteFailsAfterDriverStops(t *testing.T) {
	client, server := newLoopback()
	require.NoError(t, server.Close())

	shared := engine.NewShared(false)
	svc := engine.NewService(client, shared)
	drv := engine.NewDriver(client, shared, qmpDemux, nil)

	go func() { _ = drv.Run(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := svc.Execute(ctx, &stubCommand{name: "query-status"}, false)
	require.Error(t, err)
}
