// Package authctx carries the authenticated caller through request contexts.
package authctx

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/roomiegr/roomie/internal/model"
)

type ctxKey string

const (
	identityKey ctxKey = "roomie.identity"
	tokensKey   ctxKey = "roomie.tokens"
)

// WithIdentity stores the authenticated identity in context.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromCtx fetches the identity from context.
func IdentityFromCtx(ctx context.Context) (model.Identity, bool) {
	v := ctx.Value(identityKey)
	if v == nil {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}

// UserIDFromCtx fetches the authenticated user ID from context.
func UserIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := IdentityFromCtx(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return id.UserID, true
}

// WithTokens stores the caller's active tokens; backend calls forward the access token.
func WithTokens(ctx context.Context, t model.Tokens) context.Context {
	return context.WithValue(ctx, tokensKey, t)
}

// TokensFromCtx fetches the caller's active tokens.
func TokensFromCtx(ctx context.Context) (model.Tokens, bool) {
	t, ok := ctx.Value(tokensKey).(model.Tokens)
	return t, ok
}
