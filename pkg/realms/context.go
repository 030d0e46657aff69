package realms

import "context"

// contextKey is an unexported type used for context keys in this
// package. Using a distinct type prevents collisions with keys from
// other packages.
type contextKey int

// principalKey stores the authenticated Principal in the context.
const principalKey contextKey = iota

// ContextWithPrincipal returns a new context with the given principal
// attached. It can later be retrieved with [PrincipalFromContext].
//
// This is typically called by the HTTP middleware and gRPC
// interceptors after a successful chain authentication.
func ContextWithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// PrincipalFromContext retrieves the principal from the context.
// Returns the principal and true if present, or nil and false if no
// principal has been set.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalKey).(*Principal)
	return principal, ok
}
