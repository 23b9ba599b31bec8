package services

import (
	"context"

	"medilink-chat/internal/domain/identity"
)

type contextKey string

const identityContextKey contextKey = "authenticated_identity"

// WithIdentity stores the authenticated identity on the context.
func WithIdentity(ctx context.Context, u identity.Ref) context.Context {
	return context.WithValue(ctx, identityContextKey, u)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (identity.Ref, bool) {
	u, ok := ctx.Value(identityContextKey).(identity.Ref)
	return u, ok
}
