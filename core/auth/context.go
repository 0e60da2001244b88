package auth

import (
	"context"

	"washpos/core/store"
)

type contextKey string

// IdentityContextKey carries the verified *Identity through the request.
const IdentityContextKey contextKey = "washpos.identity"

// Identity is the outcome of a successful token verification.
type Identity struct {
	Account *store.Account
	Claims  *TokenClaims
	Meta    RequestMeta
}

func IdentityFromContext(ctx context.Context) *Identity {
	v := ctx.Value(IdentityContextKey)
	if v == nil {
		return nil
	}
	id, _ := v.(*Identity)
	return id
}
