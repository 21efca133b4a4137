package shared

import "context"

// Role names recognised by the core. Authentication happens outside this
// module; handlers receive an already-authenticated principal.
const (
	RoleNazer      = "nazer"
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleViewer     = "viewer"
)

// Principal identifies the authenticated caller of an operation.
type Principal struct {
	UserID int64
	Name   string
	Role   string
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. The zero value
// is returned for anonymous callers.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalContextKey{}).(Principal)
	return p
}
