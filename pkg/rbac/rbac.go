// Package rbac gates routes on the role carried by the caller's token.
package rbac

import (
	"net/http"

	"github.com/shashiranjanraj/upbridge/pkg/middleware"
	"github.com/shashiranjanraj/upbridge/pkg/response"
)

// HasRole returns middleware that allows access only to callers whose token
// role is one of roles. middleware.Auth must run first.
func HasRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := middleware.RoleFromCtx(r)
			if !ok || !allowed[role] {
				response.Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
