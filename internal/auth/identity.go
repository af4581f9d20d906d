package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

// ContextUserKey は、ハンドラー間でログイン済みユーザー名を共有するためのキーです。
const ContextUserKey = "auth.user"

type identityContextKey struct{}

// WithIdentity は検証済みのユーザー名を context に格納します。
func WithIdentity(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, identityContextKey{}, username)
}

// IdentityFromContext は RequireLogin が解決したユーザー名を取り出します。
func IdentityFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(identityContextKey{}).(string)
	return username, ok && username != ""
}

// CurrentUser は gin.Context またはリクエストの context からユーザー名を取り出します。
func CurrentUser(c *gin.Context) (string, bool) {
	if username := c.GetString(ContextUserKey); username != "" {
		return username, true
	}
	return IdentityFromContext(c.Request.Context())
}
