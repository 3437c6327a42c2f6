package service

import (
	"context"
	"fmt"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
)

// TokenSource yields the session token carried by the caller, or "" when
// none is present. Transports provide their own implementations; the
// validation logic behind them is shared.
type TokenSource interface {
	SessionToken(ctx context.Context) string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) string

// SessionToken implements TokenSource.
func (f TokenSourceFunc) SessionToken(ctx context.Context) string { return f(ctx) }

// StaticToken is a TokenSource for a token already in hand.
type StaticToken string

// SessionToken implements TokenSource.
func (t StaticToken) SessionToken(context.Context) string { return string(t) }

// Authenticator resolves a token source to an admin.
type Authenticator interface {
	Authenticate(ctx context.Context, src TokenSource) (*domainauth.AdminUser, error)
}

// WithAdmin runs op for the admin behind src. When validation fails op is
// not called; the returned error wraps ErrUnauthorized and the reason.
// Store failures are returned unchanged.
func WithAdmin[R any](
	ctx context.Context,
	auth Authenticator,
	src TokenSource,
	op func(ctx context.Context, admin domainauth.AdminUser) (R, error),
) (R, error) {
	var zero R
	admin, err := auth.Authenticate(ctx, src)
	if err != nil {
		if domainauth.IsUnauthorized(err) {
			return zero, fmt.Errorf("%w: %w", domainauth.ErrUnauthorized, err)
		}
		return zero, err
	}
	return op(ctx, *admin)
}
