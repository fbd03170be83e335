package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// envelope is the header every wire message carries.
type envelope struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
}

// EncodeEvent renders e as a flat JSON object with "type" and a millisecond "timestamp".
func EncodeEvent(e Event, at time.Time) ([]byte, error) {
	if e == nil {
		return nil, errors.New("encode event: nil event")
	}
	h := envelope{Type: e.Type(), Timestamp: at.UnixMilli()}

	var (
		data []byte
		err  error
	)
	switch ev := e.(type) {
	case CartItemAdded:
		data, err = json.Marshal(struct {
			envelope
			CartItemAdded
		}{h, ev})
	case CartItemRemoved:
		data, err = json.Marshal(struct {
			envelope
			CartItemRemoved
		}{h, ev})
	case CartItemUpdated:
		data, err = json.Marshal(struct {
			envelope
			CartItemUpdated
		}{h, ev})
	case CartCleared:
		data, err = json.Marshal(struct {
			envelope
			CartCleared
		}{h, ev})
	case MessagePosted:
		data, err = json.Marshal(struct {
			envelope
			MessagePosted
		}{h, ev})
	case Typing:
		data, err = json.Marshal(struct {
			envelope
			Typing
		}{h, ev})
	case ReadMarkerAdvanced:
		data, err = json.Marshal(struct {
			envelope
			ReadMarkerAdvanced
		}{h, ev})
	case PresenceChanged:
		data, err = json.Marshal(struct {
			envelope
			PresenceChanged
		}{h, ev})
	case Ping, Pong:
		data, err = json.Marshal(h)
	case ErrorEvent:
		data, err = json.Marshal(struct {
			envelope
			ErrorEvent
		}{h, ev})
	default:
		return nil, fmt.Errorf("encode event: %w: %T", ErrUnknownEventType, e)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", h.Type, err)
	}
	return data, nil
}

// DecodeEvent parses a wire message back into its variant. The timestamp is
// returned separately; zero when absent.
func DecodeEvent(data []byte) (Event, time.Time, error) {
	var h envelope
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode event header: %w", err)
	}

	var at time.Time
	if h.Timestamp > 0 {
		at = time.UnixMilli(h.Timestamp)
	}

	var (
		ev  Event
		err error
	)
	switch h.Type {
	case EventCartItemAdded:
		ev, err = decodeAs[CartItemAdded](data)
	case EventCartItemRemoved:
		ev, err = decodeAs[CartItemRemoved](data)
	case EventCartItemUpdated:
		ev, err = decodeAs[CartItemUpdated](data)
	case EventCartCleared:
		ev, err = decodeAs[CartCleared](data)
	case EventNewMessage:
		ev, err = decodeAs[MessagePosted](data)
	case EventTyping:
		ev, err = decodeAs[Typing](data)
	case EventReadMarkerAdvanced:
		ev, err = decodeAs[ReadMarkerAdvanced](data)
	case EventPresenceChanged:
		ev, err = decodeAs[PresenceChanged](data)
	case EventPing:
		ev = Ping{}
	case EventPong:
		ev = Pong{}
	case EventError:
		ev, err = decodeAs[ErrorEvent](data)
	case "":
		return nil, at, errors.New("decode event: missing type")
	default:
		return nil, at, fmt.Errorf("decode event: %w: %q", ErrUnknownEventType, h.Type)
	}
	if err != nil {
		return nil, at, err
	}
	return ev, at, nil
}

func decodeAs[T Event](data []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", ev.Type(), err)
	}
	return ev, nil
}
