package domain

// EventType discriminates events on the wire. Clients ignore types they do not know.
type EventType string

const (
	EventCartItemAdded      EventType = "cart_item_added"
	EventCartItemRemoved    EventType = "cart_item_removed"
	EventCartItemUpdated    EventType = "cart_item_updated"
	EventCartCleared        EventType = "cart_cleared"
	EventNewMessage         EventType = "new_message"
	EventTyping             EventType = "typing"
	EventReadMarkerAdvanced EventType = "read_marker_advanced"
	EventPresenceChanged    EventType = "presence_changed"
	EventPing               EventType = "ping"
	EventPong               EventType = "pong"
	EventError              EventType = "error"
)

// Event is the closed set of realtime notifications. Only types in this
// package implement it.
type Event interface {
	Type() EventType
	isEvent()
}

type baseEvent struct{}

func (baseEvent) isEvent() {}

type CartItemAdded struct {
	baseEvent
	Item CartItem `json:"item"`
}

type CartItemRemoved struct {
	baseEvent
	ItemID int64 `json:"itemId"`
}

type CartItemUpdated struct {
	baseEvent
	Item CartItem `json:"item"`
}

type CartCleared struct {
	baseEvent
	RemovedCount int64 `json:"removedCount"`
}

type MessagePosted struct {
	baseEvent
	Message Message `json:"message"`
}

type Typing struct {
	baseEvent
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

type ReadMarkerAdvanced struct {
	baseEvent
	ConversationID    int64 `json:"conversationId"`
	UserID            int64 `json:"userId"`
	LastReadMessageID int64 `json:"lastReadMessageId"`
	UnreadCount       int   `json:"unreadCount"`
}

type PresenceChanged struct {
	baseEvent
	UserID      int64 `json:"userId"`
	Role        Role  `json:"role"`
	Online      bool  `json:"online"`
	Connections int   `json:"connections"`
}

type Ping struct{ baseEvent }

type Pong struct{ baseEvent }

type ErrorEvent struct {
	baseEvent
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (CartItemAdded) Type() EventType      { return EventCartItemAdded }
func (CartItemRemoved) Type() EventType    { return EventCartItemRemoved }
func (CartItemUpdated) Type() EventType    { return EventCartItemUpdated }
func (CartCleared) Type() EventType        { return EventCartCleared }
func (MessagePosted) Type() EventType      { return EventNewMessage }
func (Typing) Type() EventType             { return EventTyping }
func (ReadMarkerAdvanced) Type() EventType { return EventReadMarkerAdvanced }
func (PresenceChanged) Type() EventType    { return EventPresenceChanged }
func (Ping) Type() EventType               { return EventPing }
func (Pong) Type() EventType               { return EventPong }
func (ErrorEvent) Type() EventType         { return EventError }

// EventTypes lists every variant of the catalogue.
func EventTypes() []EventType {
	return []EventType{
		EventCartItemAdded, EventCartItemRemoved, EventCartItemUpdated, EventCartCleared,
		EventNewMessage, EventTyping, EventReadMarkerAdvanced, EventPresenceChanged,
		EventPing, EventPong, EventError,
	}
}

// EventAllowedOn reports whether an event may be relayed on an entity of the given kind.
// Cart events only go to carts, conversation events only to conversations.
func EventAllowedOn(e Event, kind EntityKind) bool {
	switch e.(type) {
	case CartItemAdded, CartItemRemoved, CartItemUpdated, CartCleared:
		return kind == KindCart
	case MessagePosted, Typing, ReadMarkerAdvanced:
		return kind == KindConversation
	case PresenceChanged, Ping, Pong, ErrorEvent:
		return true
	default:
		return false
	}
}
