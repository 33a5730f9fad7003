package authz

import "context"

// Identity is the verified actor the engine consumes. Roles is the token's
// advisory hint; resolution always re-reads assignments from storage.
type Identity struct {
	UserID string
	Roles  []string
}

type identityContextKey struct{}

// ContextWithIdentity attaches the verified actor identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the verified actor identity if present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil || v.UserID == "" {
		return Identity{}, false
	}
	return *v, true
}
