package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type EntityKind string

const (
	KindCart         EntityKind = "cart"
	KindConversation EntityKind = "conversation"
)

// EntityKey names one broadcast scope. Its string form is "<kind>-<id>".
type EntityKey struct {
	Kind EntityKind
	ID   int64
}

func CartKey(userID int64) EntityKey {
	return EntityKey{Kind: KindCart, ID: userID}
}

func ConversationKey(conversationID int64) EntityKey {
	return EntityKey{Kind: KindConversation, ID: conversationID}
}

func (k EntityKey) String() string {
	return string(k.Kind) + "-" + strconv.FormatInt(k.ID, 10)
}

func (k EntityKey) IsZero() bool {
	return k == EntityKey{}
}

func ParseEntityKey(s string) (EntityKey, error) {
	kind, rawID, ok := strings.Cut(s, "-")
	if !ok {
		return EntityKey{}, fmt.Errorf("%w: %q", ErrInvalidEntityKey, s)
	}

	switch EntityKind(kind) {
	case KindCart, KindConversation:
	default:
		return EntityKey{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEntityKey, kind)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return EntityKey{}, fmt.Errorf("%w: bad id in %q", ErrInvalidEntityKey, s)
	}

	return EntityKey{Kind: EntityKind(kind), ID: id}, nil
}
