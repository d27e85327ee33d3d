// ABOUTME: Identity context for tracking how a request was authorized
// ABOUTME: Provides WithIdentity/FromContext for propagating auth info via context

package auth

import (
	"context"
	"log/slog"
)

// Identity describes an authorized caller.
type Identity struct {
	Origin       string
	Local        bool
	TokenMatched bool
	Transport    Transport
}

// LogValue implements slog.LogValuer so handlers can log the caller as a group.
func (id *Identity) LogValue() slog.Value {
	if id == nil {
		return slog.StringValue("unknown")
	}
	return slog.GroupValue(
		slog.String("origin", id.Origin),
		slog.Bool("local", id.Local),
		slog.Bool("token_matched", id.TokenMatched),
		slog.String("transport", id.Transport.String()),
	)
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the Identity from the context, returning nil if not present.
func FromContext(ctx context.Context) *Identity {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	if !ok {
		return nil
	}
	return id
}
