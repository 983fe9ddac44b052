// Package ctxutil provides shared context key accessors.
//
// The auth middleware populates the context with validated JWT claims; the
// handlers and the trends service read them back through this package so
// neither needs to import the other.
package ctxutil

import (
	"context"

	"github.com/google/uuid"

	"github.com/mirzafarangi/hrvbrain/internal/auth"
)

type contextKey string

const (
	keyClaims contextKey = "claims"
	keyUserID contextKey = "user_id"
)

// WithClaims returns a new context carrying the given claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, keyClaims, claims)
	ctx = context.WithValue(ctx, keyUserID, claims.UserID)
	return ctx
}

// ClaimsFromContext extracts the JWT claims from the context.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

// UserIDFromContext extracts the user_id from the context.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(keyUserID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
