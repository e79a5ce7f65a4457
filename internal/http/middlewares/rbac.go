package middlewares

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/taskflow/internal/authz"
	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/gin-gonic/gin"
)

// RequirePermission must run after RequireAuth.
func (m *AuthMiddleware) RequirePermission(p rbac.PermissionName) gin.HandlerFunc {
	return m.guard(m.gate.RequirePermission(p))
}

// RequireSuperUser must run after RequireAuth.
func (m *AuthMiddleware) RequireSuperUser() gin.HandlerFunc {
	return m.guard(m.gate.RequireSuperUser())
}

func (m *AuthMiddleware) guard(g authz.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			abortDetail(c, http.StatusUnauthorized, msgUnauthenticated)
			return
		}

		if err := g(c.Request.Context(), u); err != nil {
			if errors.Is(err, authz.ErrForbidden) {
				abortDetail(c, http.StatusForbidden, msgForbidden)
				return
			}
			slog.Default().ErrorContext(c.Request.Context(), "authorization check failed", "user_id", u.ID, "err", err)
			abortDetail(c, http.StatusInternalServerError, "Could not authorize request")
			return
		}

		c.Next()
	}
}
