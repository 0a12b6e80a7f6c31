// Package wire defines the request/response envelopes, error
// representation, and greeting/capability records shared by the QMP and
// QGA protocols. Nothing here is protocol-specific; qmp and qga build on
// top of these types.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Any is an arbitrary, not-yet-decoded JSON value, matching QAPI's "any"
// primitive.
type Any = json.RawMessage

// Dictionary is an opaque string-keyed map, matching QAPI's ad hoc
// "any"-typed dictionary fields (object-add.props, CpuModelInfo.props).
type Dictionary map[string]any

// Empty is the wire shape of a command with no declared return value.
type Empty struct{}

// ErrorClass is the closed set of error classes QEMU reports.
type ErrorClass string

// The error classes defined by the QAPI/QMP wire protocol.
const (
	ErrorClassGeneric        ErrorClass = "GenericError"
	ErrorClassCommandNotFound ErrorClass = "CommandNotFound"
	ErrorClassDeviceNotActive ErrorClass = "DeviceNotActive"
	ErrorClassDeviceNotFound  ErrorClass = "DeviceNotFound"
	ErrorClassKVMMissingCap   ErrorClass = "KVMMissingCap"
)

// Error is a server-signaled command error: {"class": ..., "desc": ...}.
type Error struct {
	Class ErrorClass `json:"class"`
	Desc  string     `json:"desc"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Desc)
}

// Is reports whether target is an *Error with the same class, so callers
// can use errors.Is(err, &wire.Error{Class: wire.ErrorClassDeviceNotFound}).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}

	return other.Class == "" || other.Class == e.Class
}

// Timestamp is the seconds/microseconds pair QEMU stamps on every event.
type Timestamp struct {
	Seconds      uint64 `json:"seconds"`
	Microseconds uint64 `json:"microseconds"`
}

// Response is the inbound shape of a command reply: either a "return" or
// an "error", each optionally correlated by "id".
type Response struct {
	Return Any    `json:"return,omitempty"`
	Error  *Error `json:"error,omitempty"`
	ID     Any    `json:"id,omitempty"`
}

// Event is the inbound shape of an asynchronous server notification.
type Event struct {
	Name      string    `json:"event"`
	Data      Any       `json:"data,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
}

// Envelope is the outbound shape of a command execution.
type Envelope struct {
	Execute   string `json:"execute,omitempty"`
	ExecOOB   string `json:"exec-oob,omitempty"`
	Arguments Any    `json:"arguments,omitempty"`
	ID        Any    `json:"id,omitempty"`
}

// Capability is the name of a negotiable QMP capability, e.g. "oob".
type Capability string

// OOB is the capability name that enables out-of-band command execution.
const OOB Capability = "oob"

// VersionTriple is QEMU's major.minor.micro version number.
type VersionTriple struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Micro int `json:"micro"`
}

// VersionInfo is the "version" field of the QMP greeting.
type VersionInfo struct {
	QEMU    VersionTriple `json:"qemu"`
	Package string        `json:"package"`
}

// Greeting is the inbound QMP greeting, sent exactly once before any
// other traffic.
type Greeting struct {
	QMP struct {
		Version      VersionInfo  `json:"version"`
		Capabilities []Capability `json:"capabilities"`
	} `json:"QMP"`
}

// HasCapability reports whether the greeting advertises cap.
func (g *Greeting) HasCapability(cap Capability) bool {
	for _, c := range g.QMP.Capabilities {
		if c == cap {
			return true
		}
	}

	return false
}

// Command is the contract every generated (or hand-written) QMP/QGA
// command type obeys: it knows its own wire name, whether it may be
// executed out-of-band, and it is its own JSON arguments payload.
type Command interface {
	json.Marshaler
	// Name returns the command's wire identifier, e.g. "query-version".
	Name() string
	// AllowOOB reports whether the command may be sent with "exec-oob".
	AllowOOB() bool
}

// EventPayload is the contract every generated event payload type obeys.
type EventPayload interface {
	// Name returns the event's wire identifier, e.g. "SHUTDOWN".
	Name() string
}

// NewEnvelope builds the outbound envelope for cmd, choosing "execute" or
// "exec-oob" depending on whether oob is both requested and allowed by
// the command, and attaching id (nil when the caller wants no
// correlation, e.g. non-OOB QMP or the first QGA handshake is already an
// ordinary command).
func NewEnvelope(cmd Command, id *uint32, oob bool) (Envelope, error) {
	args, err := json.Marshal(cmd)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal arguments for %s: %w", cmd.Name(), err)
	}

	env := Envelope{}
	if string(args) != "null" {
		env.Arguments = args
	}
	if oob && cmd.AllowOOB() {
		env.ExecOOB = cmd.Name()
	} else {
		env.Execute = cmd.Name()
	}

	if id != nil {
		idBytes, err := json.Marshal(*id)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal id: %w", err)
		}

		env.ID = idBytes
	}

	return env, nil
}
