package domain

import "fmt"

// Role is the capacity in which a user opens a realtime connection.
type Role string

const (
	// RoleOwner owns the entity (the cart's user).
	RoleOwner Role = "owner"
	// RoleAgent acts on another user's entity with management permission.
	RoleAgent Role = "agent"
	// RoleParticipant belongs to a conversation.
	RoleParticipant Role = "participant"
)

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAgent, RoleParticipant:
		return true
	}
	return false
}

// CanEmit reports whether connections with this role may send events
// (such as typing indicators) to the other connections of an entity.
func (r Role) CanEmit() bool {
	return r == RoleOwner || r == RoleParticipant
}
