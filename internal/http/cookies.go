package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/service"
)

// DefaultSessionCookieName is used when SessionCookie.Name is empty.
const DefaultSessionCookieName = "admin_session"

// SessionCookie reads and writes the cookie that carries the session token.
type SessionCookie struct {
	Name   string
	Domain string
	// Now defaults to time.Now and only drives MaxAge.
	Now func() time.Time
}

func (c SessionCookie) name() string {
	if c.Name == "" {
		return DefaultSessionCookieName
	}
	return c.Name
}

func (c SessionCookie) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Token returns the session token carried by r, or "".
func (c SessionCookie) Token(r *http.Request) string {
	cookie, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// Set writes the session cookie. MaxAge tracks the session's expiry.
func (c SessionCookie) Set(w http.ResponseWriter, r *http.Request, sess domainauth.Session) {
	maxAge := int(sess.ExpiresAt.Sub(c.now()).Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    sess.Token,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   max(maxAge, 1),
	})
}

// Clear expires the session cookie on the client.
func (c SessionCookie) Clear(w http.ResponseWriter, r *http.Request) {
	clearCookie(w, r, c.name(), c.Domain)
}

// clearCookie mirrors the attributes used when setting cookies so every
// browser accepts the deletion.
func clearCookie(w http.ResponseWriter, r *http.Request, name, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || isForwardedHTTPS(r)
}

// CookieTokenSource reads the token straight from r. API handlers use it.
func CookieTokenSource(r *http.Request, c SessionCookie) service.TokenSource {
	return service.TokenSourceFunc(func(context.Context) string {
		return c.Token(r)
	})
}

// ContextTokenSource reads the token CarrySessionToken placed in the
// request context. Server-rendered pages use it.
func ContextTokenSource() service.TokenSource {
	return service.TokenSourceFunc(SessionTokenFromContext)
}

// CarrySessionToken copies the session cookie into the request context.
func CarrySessionToken(c SessionCookie) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := c.Token(r); token != "" {
				r = r.WithContext(WithSessionToken(r.Context(), token))
			}
			next.ServeHTTP(w, r)
		})
	}
}
