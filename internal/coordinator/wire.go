package coordinator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pscheid92/gigmarket/internal/domain"
)

// broadcastBody is the JSON body of an internal broadcast request:
// {"action":"broadcast","event":{"type":...,"timestamp":...}}.
type broadcastBody struct {
	Action string          `json:"action"`
	Event  json.RawMessage `json:"event"`
}

// EncodeBroadcastBody renders a broadcast request body stamped with at.
func EncodeBroadcastBody(event domain.Event, at time.Time) ([]byte, error) {
	raw, err := domain.EncodeEvent(event, at)
	if err != nil {
		return nil, err
	}
	return json.Marshal(broadcastBody{Action: ActionBroadcast, Event: raw})
}

// DecodeBroadcastBody parses a broadcast request body.
func DecodeBroadcastBody(data []byte) (domain.Event, error) {
	var body broadcastBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if body.Action != ActionBroadcast {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, body.Action)
	}
	if len(body.Event) == 0 || string(body.Event) == "null" {
		return nil, fmt.Errorf("%w: missing event", ErrMalformedRequest)
	}
	event, _, err := domain.DecodeEvent(body.Event)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return event, nil
}
