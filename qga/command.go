package qga

import "encoding/json"

// guestSync is the handshake command used to flush any stale buffered
// response before a QGA session is considered ready, grounded on
// qapi_qga::guest_sync in the original implementation.
type guestSync struct {
	ID int64 `json:"id"`
}

func (guestSync) Name() string   { return "guest-sync" }
func (guestSync) AllowOOB() bool { return false }

func (c guestSync) MarshalJSON() ([]byte, error) {
	type alias guestSync
	return json.Marshal(alias(c))
}
