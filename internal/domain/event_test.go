package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []Event {
	item := CartItem{ID: 7, UserID: 42, ServiceID: 3, Title: "Logo design", Quantity: 2, UnitPriceCents: 4999}
	return []Event{
		CartItemAdded{Item: item},
		CartItemRemoved{ItemID: 7},
		CartItemUpdated{Item: item},
		CartCleared{RemovedCount: 3},
		MessagePosted{Message: Message{ID: 5, ConversationID: 17, SenderID: 42, SenderName: "Ada", Body: "hi"}},
		Typing{ConversationID: 17, UserID: 42},
		ReadMarkerAdvanced{ConversationID: 17, UserID: 42, LastReadMessageID: 5, UnreadCount: 0},
		PresenceChanged{UserID: 42, Role: RoleOwner, Online: true, Connections: 1},
		Ping{},
		Pong{},
		ErrorEvent{Code: "forbidden", Message: "agents cannot send typing events"},
	}
}

func TestEventCatalogue_EveryTypeHasAVariant(t *testing.T) {
	seen := make(map[EventType]bool)
	for _, ev := range sampleEvents() {
		seen[ev.Type()] = true
	}
	for _, typ := range EventTypes() {
		assert.True(t, seen[typ], "no sample for %s", typ)
	}
}

func TestEncodeEvent_CartItemAddedWireShape(t *testing.T) {
	at := time.UnixMilli(1_760_000_000_123)
	item := CartItem{ID: 7, UserID: 42, ServiceID: 3, Title: "Logo design", Quantity: 2, UnitPriceCents: 4999}

	data, err := EncodeEvent(CartItemAdded{Item: item}, at)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "cart_item_added", wire["type"])
	assert.Equal(t, float64(1_760_000_000_123), wire["timestamp"])

	payload, ok := wire["item"].(map[string]any)
	require.True(t, ok, "item payload missing: %s", data)
	assert.Equal(t, float64(7), payload["id"])
	assert.Equal(t, "Logo design", payload["title"])
	assert.Equal(t, float64(2), payload["quantity"])
}

func TestEncodeEvent_ZeroValuesAreKept(t *testing.T) {
	data, err := EncodeEvent(ReadMarkerAdvanced{ConversationID: 17, UserID: 42, LastReadMessageID: 5}, time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"unreadCount":0`)
}

func TestEncodeEvent_PingHasOnlyHeader(t *testing.T) {
	data, err := EncodeEvent(Ping{}, time.UnixMilli(10))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","timestamp":10}`, string(data))
}

func TestDecodeEvent_RestoresEveryVariant(t *testing.T) {
	at := time.UnixMilli(1_760_000_000_000)
	for _, ev := range sampleEvents() {
		t.Run(string(ev.Type()), func(t *testing.T) {
			data, err := EncodeEvent(ev, at)
			require.NoError(t, err)

			decoded, ts, err := DecodeEvent(data)
			require.NoError(t, err)
			assert.Equal(t, ev, decoded)
			assert.True(t, at.Equal(ts))
		})
	}
}

func TestDecodeEvent_UnknownType(t *testing.T) {
	_, _, err := DecodeEvent([]byte(`{"type":"cart_exploded","timestamp":1}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestDecodeEvent_MissingType(t *testing.T) {
	_, _, err := DecodeEvent([]byte(`{"itemId":3}`))
	assert.Error(t, err)
}

func TestDecodeEvent_WithoutTimestamp(t *testing.T) {
	ev, ts, err := DecodeEvent([]byte(`{"type":"cart_item_removed","itemId":3}`))
	require.NoError(t, err)
	assert.Equal(t, CartItemRemoved{ItemID: 3}, ev)
	assert.True(t, ts.IsZero())
}

func TestEventAllowedOn(t *testing.T) {
	assert.True(t, EventAllowedOn(CartCleared{}, KindCart))
	assert.False(t, EventAllowedOn(CartCleared{}, KindConversation))
	assert.True(t, EventAllowedOn(Typing{}, KindConversation))
	assert.False(t, EventAllowedOn(MessagePosted{}, KindCart))
	assert.True(t, EventAllowedOn(PresenceChanged{}, KindCart))
	assert.True(t, EventAllowedOn(Ping{}, KindConversation))
}
