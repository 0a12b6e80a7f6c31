package qmp_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/canonical/qapi/qmp"
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

func serveHandshake(t *testing.T, server io.ReadWriteCloser) {
	t.Helper()

	if _, err := server.Write([]byte(`{"QMP":{"version":{"qemu":{"major":8,"minor":1,"micro":0},"package":""},"capabilities":["oob"]}}` + "\n")); err != nil {
		t.Errorf("write greeting: %v", err)
		return
	}

	buf := make([]byte, 4096)
	n, err := server.Read(buf)
	if err != nil {
		t.Errorf("read qmp_capabilities: %v", err)
		return
	}

	var env wire.Envelope
	require.NoError(t, json.Unmarshal(buf[:n], &env))
	require.Equal(t, "qmp_capabilities", env.Execute)

	if _, err := server.Write([]byte(`{"return":{}}` + "\n")); err != nil {
		t.Errorf("write qmp_capabilities response: %v", err)
	}
}

func TestClientHandshake(t *testing.T) {
	client, server := newLoopback()

	go serveHandshake(t, server)

	c := qmp.NewClient(client)
	greeting, err := c.Handshake(context.Background())
	require.NoError(t, err)
	require.Equal(t, 8, greeting.QMP.Version.QEMU.Major)
	require.True(t, greeting.HasCapability(wire.OOB))
}

func TestClientExecuteQueuesEvents(t *testing.T) {
	client, server := newLoopback()

	go func() {
		buf := make([]byte, 4096)
		n, err := server.Read(buf)
		require.NoError(t, err)

		var env wire.Envelope
		require.NoError(t, json.Unmarshal(buf[:n], &env))
		require.Equal(t, "query-status", env.Execute)

		_, err = server.Write([]byte(`{"event":"STOP","data":{},"timestamp":{"seconds":1,"microseconds":0}}` + "\n"))
		require.NoError(t, err)

		_, err = server.Write([]byte(`{"return":{"status":"paused"}}` + "\n"))
		require.NoError(t, err)
	}()

	c := qmp.NewClient(client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := c.Execute(ctx, wire.NewRawCommand("query-status", nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"paused"}`, string(res))

	events := c.Events()
	require.Len(t, events, 1)
	require.Equal(t, "STOP", events[0].Name)
}

func TestClientExecuteReturnsServerError(t *testing.T) {
	client, server := newLoopback()

	go func() {
		buf := make([]byte, 4096)
		_, err := server.Read(buf)
		require.NoError(t, err)

		_, err = server.Write([]byte(`{"error":{"class":"CommandNotFound","desc":"nope"}}` + "\n"))
		require.NoError(t, err)
	}()

	c := qmp.NewClient(client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Execute(ctx, wire.NewRawCommand("bogus", nil))
	require.Error(t, err)

	var wireErr *wire.Error
	require.ErrorAs(t, err, &wireErr)
	require.Equal(t, wire.ErrorClassCommandNotFound, wireErr.Class)
}

func TestClientHandshakeTimesOutWithoutCallerDeadline(t *testing.T) {
	client, server := newLoopback()
	defer func() { _ = server.Close() }()

	// The server never writes a greeting, so Handshake must rely on the
	// Client's own configured timeout rather than blocking forever.
	c := qmp.NewClient(client, qmp.WithHandshakeTimeout(10*time.Millisecond))

	_, err := c.Handshake(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
