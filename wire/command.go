package wire

import "encoding/json"

// RawCommand is a generic wire.Command for callers that don't have a
// generated command type at hand: it marshals args verbatim as the
// command's arguments. qmp.Client.Execute and qga.Client.Execute accept
// any wire.Command; the handshake commands this module needs
// (qmp_capabilities, query-version, guest-sync) have their own
// hand-written types in qmp and qga instead.
type RawCommand struct {
	CommandName string
	Args        any
	OOBAllowed  bool
}

// NewRawCommand builds a RawCommand with OOB disabled.
func NewRawCommand(name string, args any) RawCommand {
	return RawCommand{CommandName: name, Args: args}
}

func (c RawCommand) Name() string   { return c.CommandName }
func (c RawCommand) AllowOOB() bool { return c.OOBAllowed }

func (c RawCommand) MarshalJSON() ([]byte, error) {
	if c.Args == nil {
		return []byte("null"), nil
	}

	return json.Marshal(c.Args)
}
