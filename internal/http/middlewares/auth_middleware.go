package middlewares

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/taskflow/internal/actorctx"
	"github.com/geocoder89/taskflow/internal/authz"
	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	gate *authz.Gate
}

func NewAuthMiddleware(gate *authz.Gate) *AuthMiddleware {
	return &AuthMiddleware{gate: gate}
}

// RequireAuth resolves the bearer token and stashes the caller on both the gin
// and the request context. Missing, unknown and expired tokens all get 401.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortDetail(c, http.StatusUnauthorized, msgUnauthenticated)
			return
		}

		u, err := m.gate.Authenticate(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, authz.ErrUnauthenticated) {
				abortDetail(c, http.StatusUnauthorized, msgUnauthenticated)
				return
			}
			slog.Default().ErrorContext(c.Request.Context(), "token resolution failed", "err", err)
			abortDetail(c, http.StatusInternalServerError, "Could not authenticate request")
			return
		}

		c.Set(CtxUser, u)
		c.Set(CtxToken, raw)
		c.Request = c.Request.WithContext(actorctx.WithUser(c.Request.Context(), u))

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

// Helpers so handlers don't need to know the context keys.

func CurrentUser(c *gin.Context) (user.User, bool) {
	v, ok := c.Get(CtxUser)
	if !ok {
		return user.User{}, false
	}
	u, ok := v.(user.User)
	return u, ok
}

func CurrentToken(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxToken)
	if !ok {
		return "", false
	}
	raw, ok := v.(string)
	return raw, ok && raw != ""
}
