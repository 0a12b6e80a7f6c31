package qmp

import (
	"encoding/json"

	"github.com/canonical/qapi/wire"
)

// qmpCapabilities is the handshake command that completes capability
// negotiation (QAPI's qmp_capabilities), grounded on
// qapi_qmp::qmp_capabilities in the original implementation. The full
// generated command surface is out of scope for this module (spec.md
// §9), but the two commands the handshake itself needs are hand-written
// here, the same way spec.md §4.4 calls out Client.Nop as a named
// exception.
type qmpCapabilities struct {
	Enable []wire.Capability `json:"enable,omitempty"`
}

func (qmpCapabilities) Name() string     { return "qmp_capabilities" }
func (qmpCapabilities) AllowOOB() bool   { return false }
func (c qmpCapabilities) MarshalJSON() ([]byte, error) {
	if len(c.Enable) == 0 {
		return []byte("null"), nil
	}

	type alias qmpCapabilities
	return json.Marshal(alias(c))
}

// queryVersion is used by Client.Nop purely to elicit a round trip and
// confirm the connection is alive, per the original's doc comment on
// Qmp::nop ("can be used to poll the socket for pending events").
type queryVersion struct{}

func (queryVersion) Name() string                   { return "query-version" }
func (queryVersion) AllowOOB() bool                 { return false }
func (queryVersion) MarshalJSON() ([]byte, error)   { return []byte("null"), nil }
