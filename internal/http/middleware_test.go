package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
)

func adminEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := GetAdminFromContext(r.Context())
		if !ok {
			http.Error(w, "no admin", http.StatusTeapot)
			return
		}
		WriteJSON(w, http.StatusOK, admin)
	})
}

func (f *httpFixture) gate() GateOptions {
	return GateOptions{Auth: f.auth, Cookie: f.cookie, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestRequireAuth(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)
	h := RequireAuth(f.gate())(adminEcho())

	t.Run("valid session reaches the handler", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/admin/me", nil), sess.Token))
		require.Equal(t, http.StatusOK, rec.Code)

		var got domainauth.AdminUser
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, domainauth.AdminUser{ID: "admin-1", Email: testEmail, Name: "Ada", Role: domainauth.RoleAdmin}, got)
	})

	t.Run("missing cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"authentication_required","message":"authentication required"}`, rec.Body.String())
		assert.Nil(t, findCookie(rec, "admin_session"))
	})

	t.Run("unknown token clears the cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/admin/me", nil), "forged"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		cleared := findCookie(rec, "admin_session")
		require.NotNil(t, cleared)
		assert.Negative(t, cleared.MaxAge)
	})
}

func TestRequireAuth_IdleSessionIsRemoved(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)
	h := RequireAuth(f.gate())(adminEcho())

	f.clock.AddTime(31 * time.Minute)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/admin/me", nil), sess.Token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, f.sessions.Len())
}

func TestRequireAuth_ActivityExtendsIdleWindow(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)
	h := RequireAuth(f.gate())(adminEcho())

	for range 3 {
		f.clock.AddTime(20 * time.Minute)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/admin/me", nil), sess.Token))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	stored, ok := f.sessions.Peek(sess.Token)
	require.True(t, ok)
	assert.Equal(t, httpT0.Add(time.Hour), stored.LastActivityAt)
}

func TestRequireAuth_StoreFailure(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)
	f.sessions.Err = errors.New("redis down")

	called := false
	h := RequireAuth(f.gate())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/admin/me", nil), sess.Token))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, called)
	assert.Nil(t, findCookie(rec, "admin_session"), "a store outage must not sign the admin out")
}

func TestRequireAuthBrowser(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)
	h := CarrySessionToken(f.cookie)(RequireAuthBrowser(f.gate())(adminEcho()))

	t.Run("valid session from context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/admin", nil), sess.Token))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("browser is redirected to login", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin?tab=users", nil)
		req.Header.Set("Accept", "text/html")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/auth/login?redirect_uri=%2Fadmin%3Ftab%3Dusers", rec.Header().Get("Location"))
	})

	t.Run("htmx gets a client redirect", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/fragment", nil)
		req.Header.Set("Hx-Request", "true")
		req.Header.Set("Hx-Current-Url", "https://admin.example.com/admin")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "/auth/signed-out?redirect_uri=%2Fadmin", rec.Header().Get("Hx-Redirect"))
	})

	t.Run("non-browser client gets json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	admin := f.login(t, testEmail, testPassword)
	editor := f.login(t, "ed@example.com", "pw")
	h := RequireAuth(f.gate())(RequireRole(domainauth.RoleAdmin)(adminEcho()))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/admin/session-policy", nil), admin.Token))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withSession(httptest.NewRequest(http.MethodGet, "/api/admin/session-policy", nil), editor.Token))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient_permissions")

	rec = httptest.NewRecorder()
	RequireRole(domainauth.RoleUser)(adminEcho()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHasRequiredRole(t *testing.T) {
	tests := []struct {
		user, required domainauth.Role
		want           bool
	}{
		{domainauth.RoleAdmin, domainauth.RoleAdmin, true},
		{domainauth.RoleAdmin, domainauth.RoleUser, true},
		{domainauth.RoleUser, domainauth.RoleAdmin, false},
		{domainauth.RoleGuest, domainauth.RoleUser, false},
		{domainauth.Role("root"), domainauth.RoleGuest, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hasRequiredRole(tt.user, tt.required), "%s >= %s", tt.user, tt.required)
	}
}

func TestSafeRedirectPath(t *testing.T) {
	tests := map[string]string{
		"":                       "/",
		"/admin":                 "/admin",
		"/admin?tab=1":           "/admin?tab=1",
		"https://evil.example":   "/",
		"//evil.example/path":    "/",
		"admin":                  "/",
		`/\evil.example`:         "/",
		"javascript:alert(1)":    "/",
		"/auth/signed-out?x=%2F": "/auth/signed-out?x=%2F",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeRedirectPath(in), "input %q", in)
	}
}

func TestIsBrowserRequest(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		accept string
		htmx   bool
		want   bool
	}{
		{name: "api path", path: "/api/admin/me", accept: "text/html", want: false},
		{name: "html accept", path: "/admin", accept: "text/html,application/xhtml+xml", want: true},
		{name: "no accept", path: "/admin", want: true},
		{name: "json accept", path: "/admin", accept: "application/json", want: false},
		{name: "htmx", path: "/admin", accept: "*/*", htmx: true, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			if tt.htmx {
				req.Header.Set("Hx-Request", "true")
			}
			assert.Equal(t, tt.want, IsBrowserRequest(req))
		})
	}
}

func TestRecover(t *testing.T) {
	h := Recover(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
