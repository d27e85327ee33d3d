// ABOUTME: TokenStore interface and data types for push token persistence
// ABOUTME: Implemented by SQLiteStore for durable storage and MemoryStore for tests

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// PushToken is a registered device token.
type PushToken struct {
	Token     string
	CreatedAt time.Time
}

// TokenStore persists push tokens so registrations survive restarts.
type TokenStore interface {
	// AddPushToken stores token. Adding an existing token is a no-op.
	AddPushToken(ctx context.Context, token string) error
	// RemovePushToken deletes token. Returns ErrNotFound if it was not stored.
	RemovePushToken(ctx context.Context, token string) error
	// ListPushTokens returns all tokens ordered by registration time.
	ListPushTokens(ctx context.Context) ([]*PushToken, error)
	Close() error
}
