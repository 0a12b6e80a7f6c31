package wire

import "encoding/json"

// inboundShape is decoded once per frame to classify it as either a
// response or an event before any protocol-specific handling runs
// (spec.md §4.5.4). Fields are json.RawMessage so presence, not
// zero-value, is what signals "this key was on the wire".
type inboundShape struct {
	Event     json.RawMessage `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp json.RawMessage `json:"timestamp"`
	Return    json.RawMessage `json:"return"`
	Error     json.RawMessage `json:"error"`
	ID        json.RawMessage `json:"id"`
}

// DecodeMessage classifies raw as either a Response or an Event. QGA
// never sends events, so its driver only ever receives a non-nil
// Response; QMP can see both interleaved (spec.md §4.5.4, §6).
func DecodeMessage(raw []byte) (*Response, *Event, error) {
	var shape inboundShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, nil, err
	}

	switch {
	case len(shape.Event) > 0:
		var name string
		if err := json.Unmarshal(shape.Event, &name); err != nil {
			return nil, nil, err
		}

		var ts Timestamp
		if len(shape.Timestamp) > 0 {
			if err := json.Unmarshal(shape.Timestamp, &ts); err != nil {
				return nil, nil, err
			}
		}

		return nil, &Event{Name: name, Data: shape.Data, Timestamp: ts}, nil

	case len(shape.Return) > 0 || len(shape.Error) > 0:
		res := &Response{Return: shape.Return, ID: shape.ID}
		if len(shape.Error) > 0 {
			var wireErr Error
			if err := json.Unmarshal(shape.Error, &wireErr); err != nil {
				return nil, nil, err
			}

			res.Error = &wireErr
		}

		return res, nil, nil

	default:
		return nil, nil, &Error{Class: ErrorClassGeneric, Desc: "message is neither a response nor an event"}
	}
}
