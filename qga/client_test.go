package qga_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/canonical/qapi/qga"
	"github.com/canonical/qapi/wire"
)

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

func newLoopback() (client io.ReadWriteCloser, server io.ReadWriteCloser) {
	serverToClientR, serverToClientW := io.Pipe()
	clientToServerR, clientToServerW := io.Pipe()

	client = &pipe{r: serverToClientR, w: clientToServerW}
	server = &pipe{r: clientToServerR, w: serverToClientW}

	return client, server
}

func TestGuestSyncHandshake(t *testing.T) {
	client, server := newLoopback()

	go func() {
		buf := make([]byte, 4096)
		n, err := server.Read(buf)
		require.NoError(t, err)

		var env wire.Envelope
		require.NoError(t, json.Unmarshal(buf[:n], &env))
		require.Equal(t, "guest-sync", env.Execute)

		var args struct {
			ID int64 `json:"id"`
		}
		require.NoError(t, json.Unmarshal(env.Arguments, &args))

		_, err = server.Write([]byte(`{"return":` + itoa(args.ID) + "}\n"))
		require.NoError(t, err)
	}()

	c := qga.NewClient(client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, c.GuestSync(ctx, 12345))
}

func TestGuestSyncMismatchFails(t *testing.T) {
	client, server := newLoopback()

	go func() {
		buf := make([]byte, 4096)
		_, err := server.Read(buf)
		require.NoError(t, err)

		_, err = server.Write([]byte(`{"return":0}` + "\n"))
		require.NoError(t, err)
	}()

	c := qga.NewClient(client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.Error(t, c.GuestSync(ctx, 999))
}

func TestExecuteReturnsServerError(t *testing.T) {
	client, server := newLoopback()

	go func() {
		buf := make([]byte, 4096)
		_, err := server.Read(buf)
		require.NoError(t, err)

		_, err = server.Write([]byte(`{"error":{"class":"GenericError","desc":"boom"}}` + "\n"))
		require.NoError(t, err)
	}()

	c := qga.NewClient(client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Execute(ctx, wire.NewRawCommand("guest-ping", nil))
	require.Error(t, err)

	var wireErr *wire.Error
	require.ErrorAs(t, err, &wireErr)
	require.Equal(t, wire.ErrorClassGeneric, wireErr.Class)
}

func TestGuestSyncTimesOutWithoutCallerDeadline(t *testing.T) {
	client, server := newLoopback()
	defer func() { _ = server.Close() }()

	// The server never echoes back the sync value, so GuestSync must
	// rely on the Client's own configured timeout rather than blocking
	// forever.
	c := qga.NewClient(client, qga.WithSyncTimeout(10*time.Millisecond))

	err := c.GuestSync(context.Background(), 42)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
