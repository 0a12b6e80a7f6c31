package qmp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/canonical/qapi/qmp"
	"github.com/canonical/qapi/wire"
)

func TestAsyncHandshakeAndExecute(t *testing.T) {
	client, server := newLoopback()

	go serveHandshake(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	greeting, svc, drv, events, err := qmp.Handshake(ctx, client, wire.OOB)
	require.NoError(t, err)
	require.True(t, greeting.HasCapability(wire.OOB))

	driverDone := make(chan error, 1)
	go func() { driverDone <- drv.Run(context.Background()) }()

	go func() {
		buf := make([]byte, 4096)
		n, err := server.Read(buf)
		require.NoError(t, err)

		var env wire.Envelope
		require.NoError(t, json.Unmarshal(buf[:n], &env))
		require.Equal(t, "query-status", env.Execute)

		_, err = server.Write([]byte(`{"event":"RESUME","data":{},"timestamp":{"seconds":1,"microseconds":0}}` + "\n"))
		require.NoError(t, err)

		_, err = server.Write([]byte(`{"return":{"status":"running"}, "id":` + string(env.ID) + `}` + "\n"))
		require.NoError(t, err)
	}()

	res, err := svc.ExecuteOOB(ctx, wire.NewRawCommand("query-status", nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"running"}`, string(res))

	select {
	case ev := <-events:
		require.Equal(t, "RESUME", ev.Name)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	svc.Close()
	require.NoError(t, server.Close())

	select {
	case <-driverDone:
	case <-time.After(time.Second):
		t.Fatal("driver did not stop after connection closed")
	}
}
