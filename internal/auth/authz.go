// ABOUTME: Declarative permission checks for protected operations
// ABOUTME: RequirePermission gates a handler on exact permission membership

package auth

import (
	"net/http"
)

// RequirePermission creates an HTTP middleware that requires the named
// permission on the authenticated principal. Must be used after
// HTTPAuthMiddleware.
//
// The 403 body is deliberately generic: it never reveals which permission
// was required.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := FromContext(r.Context())
			if principal == nil {
				WriteJSONError(w, http.StatusUnauthorized, "Not authenticated.")
				return
			}

			if !principal.HasPermission(permission) {
				WriteJSONError(w, http.StatusForbidden, "You do not have permission to access this resource.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
