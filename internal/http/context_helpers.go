package httpx

import (
	"context"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
)

// adminKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type adminKey struct{}

// sessionTokenKey carries the raw session token for ambient validation.
type sessionTokenKey struct{}

// SetAdminInContext returns a child context that carries the given admin.
// If admin is nil, the original ctx is returned unchanged.
func SetAdminInContext(ctx context.Context, admin *domainauth.AdminUser) context.Context {
	if admin == nil {
		return ctx
	}
	return context.WithValue(ctx, adminKey{}, admin)
}

// GetAdminFromContext returns the authenticated admin and a boolean indicating presence.
func GetAdminFromContext(ctx context.Context) (*domainauth.AdminUser, bool) {
	if admin, ok := ctx.Value(adminKey{}).(*domainauth.AdminUser); ok && admin != nil {
		return admin, true
	}
	return nil, false
}

// WithSessionToken stores the caller's session token in ctx.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey{}, token)
}

// SessionTokenFromContext returns the token stored by WithSessionToken, or "".
func SessionTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(sessionTokenKey{}).(string)
	return token
}
