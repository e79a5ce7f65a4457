// Package actorctx carries request attribution (the authenticated caller and
// the request id) on a context.Context so code below the HTTP layer can log
// and attribute work without importing gin.
package actorctx

import (
	"context"

	"github.com/geocoder89/taskflow/internal/domain/user"
)

type (
	userKey      struct{}
	requestIDKey struct{}
)

func WithUser(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func UserFrom(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(userKey{}).(user.User)
	return u, ok && u.ID != 0
}

func UserIDFrom(ctx context.Context) (int64, bool) {
	u, ok := UserFrom(ctx)
	return u.ID, ok
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}
