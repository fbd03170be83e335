package domain

import (
	"context"
	"time"
)

type User struct {
	ID             int64
	Email          string
	DisplayName    string
	CanManageCarts bool
	CreatedAt      time.Time
}

type UserRepository interface {
	GetByID(ctx context.Context, userID int64) (*User, error)
}
