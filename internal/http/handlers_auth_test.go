package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/ports"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// csrfLogin fetches the login form for its CSRF token, then posts credentials.
func (f *httpFixture) csrfLogin(t *testing.T, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	page := f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusOK, page.Code)
	csrf := findCookie(page, DefaultCSRFCookieName)
	require.NotNil(t, csrf)

	form.Set("csrf_token", csrf.Value)
	req := formRequest("/auth/login", form)
	req.AddCookie(csrf)
	return f.do(req)
}

func TestLoginPage_PasswordMode(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/login?redirect_uri=%2Fadmin%3Ftab%3D2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `action="/auth/login"`)
	assert.Contains(t, body, `name="redirect_uri" value="/admin?tab=2"`)
	assert.Contains(t, body, `name="csrf_token"`)
}

func TestLoginPage_ProviderMode(t *testing.T) {
	f := newHTTPFixture(t, LoginModeProvider)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/login?redirect_uri=https%3A%2F%2Fevil.example", nil))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://mock-idp/auth", rec.Header().Get("Location"))
	assert.Equal(t, "state-1", findCookie(rec, oauthStateCookie).Value)
	assert.Equal(t, "nonce-1", findCookie(rec, oauthNonceCookie).Value)
	assert.Equal(t, "/", findCookie(rec, postLoginCookie).Value)
}

func TestPasswordLogin_Success(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	rec := f.csrfLogin(t, url.Values{"email": {testEmail}, "password": {testPassword}, "redirect_uri": {"/admin?tab=2"}})

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/admin?tab=2", rec.Header().Get("Location"))
	c := findCookie(rec, "admin_session")
	require.NotNil(t, c)
	assert.Equal(t, "token-1", c.Value)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), c.MaxAge)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestPasswordLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		want     int
		message  string
	}{
		{name: "wrong password", email: testEmail, password: "nope", want: http.StatusUnauthorized, message: "Invalid email or password."},
		{name: "unknown email", email: "who@example.com", password: "x", want: http.StatusUnauthorized, message: "Invalid email or password."},
		{name: "empty", want: http.StatusUnauthorized, message: "Invalid email or password."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHTTPFixture(t, LoginModePassword)
			rec := f.csrfLogin(t, url.Values{"email": {tt.email}, "password": {tt.password}})

			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.message)
			assert.Nil(t, findCookie(rec, "admin_session"))
			assert.Zero(t, f.sessions.Len())
		})
	}
}

func TestPasswordLogin_RejectsMissingCSRF(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	rec := f.do(formRequest("/auth/login", url.Values{"email": {testEmail}, "password": {testPassword}}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, f.sessions.Len())
}

func TestPasswordLogin_JSONClient(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	h := &AuthHandlers{Svc: f.auth, Cookie: f.cookie, Mode: LoginModePassword, Renderer: f.renderer}

	req := formRequest("/auth/login", url.Values{"email": {testEmail}, "password": {testPassword}})
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	h.PasswordLogin(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Logged in", body["message"])
	assert.NotNil(t, findCookie(rec, "admin_session"))

	req = formRequest("/auth/login", url.Values{"email": {testEmail}, "password": {"bad"}})
	req.Header.Set("Accept", "application/json")
	rec = httptest.NewRecorder()
	h.PasswordLogin(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "login_failed", decodeBody(t, rec)["error"])
}

func TestCallback(t *testing.T) {
	f := newHTTPFixture(t, LoginModeProvider)

	begin := f.do(httptest.NewRequest(http.MethodGet, "/auth/login?redirect_uri=%2Fadmin", nil))
	require.Equal(t, http.StatusFound, begin.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=state-1", nil)
	for _, c := range begin.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := f.do(req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))
	sessCookie := findCookie(rec, "admin_session")
	require.NotNil(t, sessCookie)

	admin, err := f.auth.Validate(context.Background(), sessCookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "mock.admin@example.com", admin.Email)
	assert.Equal(t, domainauth.RoleAdmin, admin.Role)
}

func TestCallback_Rejections(t *testing.T) {
	f := newHTTPFixture(t, LoginModeProvider)

	t.Run("state mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=forged", nil)
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "state-1"})
		req.AddCookie(&http.Cookie{Name: oauthNonceCookie, Value: "nonce-1"})
		rec := f.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_state", decodeBody(t, rec)["error"])
	})

	t.Run("missing code", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/callback?state=state-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("identity without a role", func(t *testing.T) {
		f.provider.ExchangeFunc = func(context.Context, ports.ExchangeInput) (domainauth.Identity, error) {
			return domainauth.Identity{UserID: "u1", Email: "nobody@example.com", Groups: []string{"other"}}, nil
		}
		t.Cleanup(func() { f.provider.ExchangeFunc = nil })

		req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=s", nil)
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "s"})
		req.AddCookie(&http.Cookie{Name: oauthNonceCookie, Value: "n"})
		rec := f.do(req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Nil(t, findCookie(rec, "admin_session"))
	})
}

func TestAPILogout(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)

	rec := f.do(withSession(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), sess.Token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Logged out successfully"}`, rec.Body.String())
	assert.Negative(t, findCookie(rec, "admin_session").MaxAge)
	assert.Zero(t, f.sessions.Len())

	// The old token no longer opens anything.
	rec = f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/admin/me", nil), sess.Token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out without a session is still a success.
	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPILogout_StoreFailureStillClearsCookie(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)
	f.sessions.Err = errors.New("redis down")

	rec := f.do(withSession(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), sess.Token))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "logout_failed", decodeBody(t, rec)["error"])
	assert.Negative(t, findCookie(rec, "admin_session").MaxAge)
}

func TestAPIRefresh(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)

	f.clock.AddTime(time.Minute)
	rec := f.do(withSession(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil), sess.Token))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Session refreshed", body["message"])
	wantExpiry := httpT0.Add(time.Minute).Add(7 * 24 * time.Hour)
	assert.Equal(t, wantExpiry.Format(time.RFC3339Nano), body["expires_at"])
	c := findCookie(rec, "admin_session")
	require.NotNil(t, c)
	assert.Equal(t, sess.Token, c.Value)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), c.MaxAge)

	stored, ok := f.sessions.Peek(sess.Token)
	require.True(t, ok)
	assert.Equal(t, httpT0, stored.CreatedAt)
	assert.Equal(t, wantExpiry, stored.ExpiresAt)
}

func TestAPIRefresh_Failures(t *testing.T) {
	t.Run("unknown token", func(t *testing.T) {
		f := newHTTPFixture(t, LoginModePassword)
		rec := f.do(withSession(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil), "nope"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"session_not_found","message":"Session not found or expired"}`, rec.Body.String())
		assert.Negative(t, findCookie(rec, "admin_session").MaxAge)
	})

	t.Run("idle session", func(t *testing.T) {
		f := newHTTPFixture(t, LoginModePassword)
		sess := f.login(t, testEmail, testPassword)
		f.clock.AddTime(time.Hour)
		rec := f.do(withSession(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil), sess.Token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Zero(t, f.sessions.Len())
	})

	t.Run("store failure", func(t *testing.T) {
		f := newHTTPFixture(t, LoginModePassword)
		sess := f.login(t, testEmail, testPassword)
		f.sessions.Err = errors.New("redis down")
		rec := f.do(withSession(httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil), sess.Token))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "refresh_failed", decodeBody(t, rec)["error"])
	})
}

func TestAPISession(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)

	rec := f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), sess.Token))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["authenticated"])
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, testEmail, user["email"])

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
	assert.Nil(t, findCookie(rec, "admin_session"))

	rec = f.do(withSession(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil), "stale"))
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
	assert.NotNil(t, findCookie(rec, "admin_session"))
}

func TestBrowserLogout(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)

	page := f.do(withSession(httptest.NewRequest(http.MethodGet, "/admin", nil), sess.Token))
	require.Equal(t, http.StatusOK, page.Code)
	csrf := findCookie(page, DefaultCSRFCookieName)
	require.NotNil(t, csrf)

	req := withSession(formRequest("/auth/logout", url.Values{"csrf_token": {csrf.Value}}), sess.Token)
	req.AddCookie(csrf)
	rec := f.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/auth/signed-out?redirect_uri="))
	assert.Zero(t, f.sessions.Len())

	signedOut := f.do(httptest.NewRequest(http.MethodGet, rec.Header().Get("Location"), nil))
	assert.Equal(t, http.StatusOK, signedOut.Code)
	assert.Contains(t, signedOut.Body.String(), "You are signed out")
}

func TestBrowserLogout_StoreFailure(t *testing.T) {
	f := newHTTPFixture(t, LoginModePassword)
	sess := f.login(t, testEmail, testPassword)

	page := f.do(withSession(httptest.NewRequest(http.MethodGet, "/admin", nil), sess.Token))
	require.Equal(t, http.StatusOK, page.Code)
	csrf := findCookie(page, DefaultCSRFCookieName)
	require.NotNil(t, csrf)

	f.sessions.Err = errors.New("redis down")
	logout := func(headers map[string]string) *httptest.ResponseRecorder {
		req := withSession(formRequest("/auth/logout", url.Values{"csrf_token": {csrf.Value}}), sess.Token)
		req.AddCookie(csrf)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return f.do(req)
	}

	t.Run("browser gets the error page", func(t *testing.T) {
		rec := logout(nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, rec.Header().Get("Location"))
		assert.Contains(t, rec.Body.String(), "Sign out failed")
		assert.NotContains(t, rec.Body.String(), "You are signed out")
		assert.Negative(t, findCookie(rec, "admin_session").MaxAge)
	})

	t.Run("xhr gets a json error", func(t *testing.T) {
		rec := logout(map[string]string{"Accept": "application/json"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "logout_failed", decodeBody(t, rec)["error"])
	})

	f.sessions.Err = nil
	assert.Equal(t, 1, f.sessions.Len())
}

func TestSignedOut_ProviderLogoutLink(t *testing.T) {
	f := newHTTPFixture(t, LoginModeProvider)
	h := &AuthHandlers{Svc: f.auth, Cookie: f.cookie, Renderer: f.renderer}

	rec := httptest.NewRecorder()
	h.SignedOut(rec, httptest.NewRequest(http.MethodGet, "/auth/signed-out?redirect_uri=/admin", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "identity provider")

	h.ProviderLogoutURL = "https://idp.example.com/logout"
	rec = httptest.NewRecorder()
	h.SignedOut(rec, httptest.NewRequest(http.MethodGet, "/auth/signed-out?redirect_uri=//evil.example.com", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `href="https://idp.example.com/logout"`)
	assert.NotContains(t, body, "evil.example.com")
}
