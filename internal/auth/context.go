// ABOUTME: Authenticated principal for tracking identity through request handlers
// ABOUTME: Provides WithPrincipal/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// Principal holds the authenticated identity extracted from a verified token.
// It exists only for the duration of one request and is never persisted.
type Principal struct {
	Subject     string   // identity email from the token subject
	Permissions []string // permission set embedded in the token
}

// HasPermission reports whether the principal holds the named permission.
// Matching is exact and case-sensitive.
func (p *Principal) HasPermission(permission string) bool {
	for _, perm := range p.Permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

// principalKey is the key type for storing a Principal in context.Context.
type principalKey struct{}

// WithPrincipal returns a new context with the Principal attached.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// FromContext retrieves the Principal from the context, returning nil if not present.
func FromContext(ctx context.Context) *Principal {
	val := ctx.Value(principalKey{})
	if val == nil {
		return nil
	}
	principal, ok := val.(*Principal)
	if !ok {
		return nil
	}
	return principal
}

// MustFromContext retrieves the Principal from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Principal {
	principal := FromContext(ctx)
	if principal == nil {
		panic("auth: Principal not found in context")
	}
	return principal
}
