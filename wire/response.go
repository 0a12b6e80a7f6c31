package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrProtocol is the sentinel wrapped by every protocol-violation error
// surfaced by this module (unexpected message shape, id mismatch,
// duplicate id, unknown id). Fatal for the stream, per spec.
var ErrProtocol = errors.New("qapi: protocol violation")

// ResponseID extracts and validates the correlation id carried by res,
// enforcing the rule from spec.md §6: an unsigned integer id is required
// when OOB is negotiated, and no id at all is permitted otherwise.
func ResponseID(res *Response, oob bool) (uint32, error) {
	if len(res.ID) == 0 {
		if oob {
			return 0, fmt.Errorf("%w: expected response with numeric id, got none", ErrProtocol)
		}

		return 0, nil
	}

	if !oob {
		return 0, fmt.Errorf("%w: expected response without id, got %s", ErrProtocol, res.ID)
	}

	var id uint32
	if err := json.Unmarshal(res.ID, &id); err != nil {
		return 0, fmt.Errorf("%w: response id %s is not a non-negative integer: %v", ErrProtocol, res.ID, err)
	}

	return id, nil
}

// Result returns the command's decoded return value, or the server error
// if one was reported.
func (r *Response) Result() (Any, error) {
	if r.Error != nil {
		return nil, r.Error
	}

	return r.Return, nil
}
