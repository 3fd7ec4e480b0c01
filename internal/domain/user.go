package domain

import (
	"context"
	"time"
)

// User represents a registered user of the application.
// Avatar holds the processed profile image bytes; nil when no avatar is set.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Age          int
	Avatar       []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id int64) error
	SetAvatar(ctx context.Context, id int64, data []byte) error
	ClearAvatar(ctx context.Context, id int64) error
	GetAvatar(ctx context.Context, id int64) ([]byte, error)
}

// TokenRepository tracks the active session tokens of each user.
// A bearer token is only honored while its row exists; removing the row
// revokes the session.
type TokenRepository interface {
	Add(ctx context.Context, userID int64, token string) error
	Exists(ctx context.Context, userID int64, token string) (bool, error)
	Remove(ctx context.Context, userID int64, token string) error
	RemoveAll(ctx context.Context, userID int64) error
	ListByUser(ctx context.Context, userID int64) ([]string, error)
}
