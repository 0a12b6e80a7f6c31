package wire_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/qapi/wire"
)

type stubCommand struct {
	Foo string `json:"foo"`
}

func (c stubCommand) Name() string     { return "stub-command" }
func (c stubCommand) AllowOOB() bool   { return false }
func (c stubCommand) MarshalJSON() ([]byte, error) {
	type alias stubCommand
	return json.Marshal(alias(c))
}

func TestNewEnvelopeExecute(t *testing.T) {
	id := uint32(7)
	env, err := wire.NewEnvelope(stubCommand{Foo: "bar"}, &id, false)
	require.NoError(t, err)
	require.Equal(t, "stub-command", env.Execute)
	require.Empty(t, env.ExecOOB)
	require.JSONEq(t, `{"foo":"bar"}`, string(env.Arguments))
	require.JSONEq(t, `7`, string(env.ID))
}

func TestNewEnvelopeOOBRequiresAllow(t *testing.T) {
	env, err := wire.NewEnvelope(stubCommand{Foo: "bar"}, nil, true)
	require.NoError(t, err)
	require.Equal(t, "stub-command", env.Execute)
	require.Empty(t, env.ExecOOB)
	require.Empty(t, env.ID)
}

func TestResponseIDRules(t *testing.T) {
	res := &wire.Response{}
	id, err := wire.ResponseID(res, false)
	require.NoError(t, err)
	require.Zero(t, id)

	_, err = wire.ResponseID(res, true)
	require.ErrorIs(t, err, wire.ErrProtocol)

	res.ID = json.RawMessage(`3`)
	_, err = wire.ResponseID(res, false)
	require.ErrorIs(t, err, wire.ErrProtocol)

	id, err = wire.ResponseID(res, true)
	require.NoError(t, err)
	require.Equal(t, uint32(3), id)
}

func TestErrorIs(t *testing.T) {
	err := &wire.Error{Class: wire.ErrorClassDeviceNotFound, Desc: "no such device"}

	var target *wire.Error
	require.True(t, errors.As(err, &target))
	require.True(t, err.Is(&wire.Error{Class: wire.ErrorClassDeviceNotFound}))
	require.False(t, err.Is(&wire.Error{Class: wire.ErrorClassGeneric}))
}

func TestNewEnvelopeOmitsNullArguments(t *testing.T) {
	env, err := wire.NewEnvelope(wire.NewRawCommand("query-version", nil), nil, false)
	require.NoError(t, err)
	require.Equal(t, "query-version", env.Execute)
	require.Empty(t, env.Arguments)
}

func TestGreetingHasCapability(t *testing.T) {
	g := &wire.Greeting{}
	g.QMP.Capabilities = []wire.Capability{wire.OOB}
	require.True(t, g.HasCapability(wire.OOB))
	require.False(t, g.HasCapability("other"))
}
