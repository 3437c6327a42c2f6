package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/service"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// GateOptions configures the authentication middlewares.
type GateOptions struct {
	Auth   service.Authenticator
	Cookie SessionCookie
	Logger *slog.Logger
}

// RequireAuth returns a middleware for API routes. The token is read from
// the request cookie; failures answer 401 JSON.
func RequireAuth(opts GateOptions) func(http.Handler) http.Handler {
	return opts.gate(func(r *http.Request) service.TokenSource {
		return CookieTokenSource(r, opts.Cookie)
	})
}

// RequireAuthBrowser returns a middleware for server-rendered pages. The
// token is read from the request context (see CarrySessionToken); browsers
// are redirected to the login page, other clients get 401 JSON.
func RequireAuthBrowser(opts GateOptions) func(http.Handler) http.Handler {
	return opts.gate(func(*http.Request) service.TokenSource {
		return ContextTokenSource()
	})
}

func (o GateOptions) gate(source func(*http.Request) service.TokenSource) func(http.Handler) http.Handler {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := service.WithAdmin(r.Context(), o.Auth, source(r),
				func(ctx context.Context, admin domainauth.AdminUser) (struct{}, error) {
					next.ServeHTTP(w, r.WithContext(SetAdminInContext(ctx, &admin)))
					return struct{}{}, nil
				})
			if err == nil {
				return
			}

			if !errors.Is(err, domainauth.ErrUnauthorized) {
				logger.ErrorContext(r.Context(), "session validation failed", "error", err, "path", r.URL.Path)
				WriteError(w, ErrorParams{
					Code:    http.StatusInternalServerError,
					ErrCode: "session_unavailable",
					Err:     errors.New("session service unavailable"),
				})
				return
			}

			// A cookie that no longer resolves is dead weight on the client.
			if !errors.Is(err, domainauth.ErrNoSession) {
				o.Cookie.Clear(w, r)
			}
			if IsBrowserRequest(r) {
				redirectToLogin(w, r)
				return
			}
			writeAuthRequired(w)
		})
	}
}

func writeAuthRequired(w http.ResponseWriter) {
	WriteError(w, ErrorParams{
		Code:    http.StatusUnauthorized,
		ErrCode: "authentication_required",
		Err:     errors.New("authentication required"),
	})
}

// RequireRole returns a middleware that requires a specific role. It must run
// behind RequireAuth or RequireAuthBrowser.
func RequireRole(requiredRole domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, ok := GetAdminFromContext(r.Context())
			if !ok {
				writeAuthRequired(w)
				return
			}

			if !hasRequiredRole(admin.Role, requiredRole) {
				if IsBrowserRequest(r) {
					showAccessDenied(w, r)
					return
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusForbidden,
					ErrCode: "insufficient_permissions",
					Err:     errors.New("insufficient permissions"),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// hasRequiredRole checks if the user's role meets the required role.
// Role hierarchy: Guest < User < Admin.
func hasRequiredRole(userRole, requiredRole domainauth.Role) bool {
	roleHierarchy := map[domainauth.Role]int{
		domainauth.RoleGuest: 0,
		domainauth.RoleUser:  1,
		domainauth.RoleAdmin: 2,
	}

	userLevel, userExists := roleHierarchy[userRole]
	requiredLevel, requiredExists := roleHierarchy[requiredRole]

	if !userExists || !requiredExists {
		return false
	}

	return userLevel >= requiredLevel
}

// browserRequestKey is an unexported context key type for browser request detection.
type browserRequestKey struct{}

// BrowserDetection returns a middleware that records whether the caller is
// a browser, so handlers can pick HTML or JSON responses.
func BrowserDetection() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), browserRequestKey{}, isBrowserRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IsBrowserRequest returns true if the current request is from a browser.
func IsBrowserRequest(r *http.Request) bool {
	if isBrowser, ok := r.Context().Value(browserRequestKey{}).(bool); ok {
		return isBrowser
	}
	return isBrowserRequest(r)
}

// isBrowserRequest: /api/ routes never are, htmx requests always are,
// otherwise an Accept header naming text/html (or no Accept at all) wins.
func isBrowserRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	if IsHTMX(r) {
		return true
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	return strings.Contains(accept, "text/html")
}

// redirectToLogin redirects browser requests to the login page with the current URL as redirect_uri.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	redirectParam := url.QueryEscape(redirectPathForRequest(r))

	if IsHTMX(r) {
		// A swap would paste the login page into a fragment; navigate instead.
		SetHXRedirect(w, "/auth/signed-out?redirect_uri="+redirectParam)
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, "/auth/login?redirect_uri="+redirectParam, http.StatusSeeOther)
}

func redirectPathForRequest(r *http.Request) string {
	if IsHTMX(r) {
		if current := safeRedirectFromURL(r.Header.Get("Hx-Current-Url")); current != "" {
			return current
		}
		if referer := safeRedirectFromURL(r.Header.Get("Referer")); referer != "" {
			return referer
		}
	}

	return safeRedirectPath(r.URL.RequestURI())
}

func safeRedirectFromURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	// Reject scheme-relative or host-only references.
	if u.Host != "" && !u.IsAbs() {
		return ""
	}

	// Absolute URLs keep only their path so redirects stay inside the app.
	if u.IsAbs() {
		return safeRedirectPath(u.RequestURI())
	}

	return safeRedirectPath(raw)
}

// safeRedirectPath returns candidate if it is a local absolute path, else "/".
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") ||
		strings.HasPrefix(candidate, "//") || strings.Contains(candidate, `\`) {
		return "/"
	}
	return candidate
}

func showAccessDenied(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "Access Denied: You don't have permission to access this resource", http.StatusForbidden)
}
