package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/service"
)

// AuthServiceInterface is the auth surface the HTTP layer depends on.
type AuthServiceInterface interface {
	service.Authenticator
	BeginLogin(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*domainauth.Session, error)
	PasswordLogin(ctx context.Context, email, password string) (*domainauth.Session, error)
	Session(ctx context.Context, token string) (*domainauth.Session, error)
	Refresh(ctx context.Context, token string) (*domainauth.Session, bool, error)
	Logout(ctx context.Context, token string) error
}

// LoginMode selects what GET /auth/login does.
type LoginMode string

const (
	// LoginModePassword renders the local email/password form.
	LoginModePassword LoginMode = "password"
	// LoginModeProvider redirects to the identity provider.
	LoginModeProvider LoginMode = "provider"
)

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc      AuthServiceInterface
	Cookie   SessionCookie
	Mode     LoginMode
	Renderer *TemplateRenderer
	Logger   *slog.Logger

	// ProviderLogoutURL, when set, is offered on the signed-out page so the
	// admin can also end the identity provider session.
	ProviderLogoutURL string
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login handles GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	if h.Mode != LoginModeProvider {
		h.Renderer.renderOrFail(w, http.StatusOK, PageLogin, PageData{
			Title:       "Sign in",
			CSRFToken:   GetCSRFToken(r),
			RedirectURI: redirectURI,
		})
		return
	}

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("unable to start login"),
		})
		return
	}

	h.setOAuthCookies(w, r, oauthCookieParams{State: result.State, Nonce: result.Nonce, RedirectURI: redirectURI})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// PasswordLogin handles POST /auth/login with email, password and
// redirect_uri form fields.
func (h *AuthHandlers) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	if h.Mode == LoginModeProvider {
		http.Error(w, "password login is disabled", http.StatusNotFound)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	redirectURI := safeRedirectPath(r.PostFormValue("redirect_uri"))

	sess, err := h.Svc.PasswordLogin(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		status, message := loginFailure(err)
		if status == http.StatusInternalServerError {
			h.logger().ErrorContext(r.Context(), "password login failed", "error", err)
		}
		if !IsBrowserRequest(r) {
			writeErrorMessage(w, status, "login_failed", message)
			return
		}
		h.Renderer.renderOrFail(w, status, PageLogin, PageData{
			Title:       "Sign in",
			CSRFToken:   GetCSRFToken(r),
			RedirectURI: redirectURI,
			Email:       email,
			Error:       message,
		})
		return
	}

	h.Cookie.Set(w, r, *sess)
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"message":    "Logged in",
			"user":       sess.Admin(),
			"expires_at": sess.ExpiresAt,
		})
		return
	}
	http.Redirect(w, r, redirectURI, http.StatusSeeOther)
}

func loginFailure(err error) (int, string) {
	switch {
	case errors.Is(err, domainauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password."
	case errors.Is(err, domainauth.ErrAccountDisabled):
		return http.StatusForbidden, "This account is disabled."
	case errors.Is(err, domainauth.ErrAccessDenied):
		return http.StatusForbidden, "This account has no access to the admin console."
	default:
		return http.StatusInternalServerError, "Sign-in is unavailable. Try again shortly."
	}
}

// Callback handles GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_code",
			Err:     errors.New("authorization code is required"),
		})
		return
	}
	if state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_state",
			Err:     errors.New("state parameter is required"),
		})
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie(oauthNonceCookie)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}

	sess, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		if errors.Is(err, domainauth.ErrAccessDenied) {
			h.Renderer.renderOrFail(w, http.StatusForbidden, PageError, PageData{
				Title: "Access denied",
				Error: "Your account has no access to the admin console.",
			})
			return
		}
		h.logger().ErrorContext(r.Context(), "complete login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_completion_failed",
			Err:     errors.New("unable to complete login"),
		})
		return
	}

	h.Cookie.Set(w, r, *sess)
	clearCookie(w, r, oauthStateCookie, h.Cookie.Domain)
	clearCookie(w, r, oauthNonceCookie, h.Cookie.Domain)

	http.Redirect(w, r, h.postLoginRedirect(w, r), http.StatusFound)
}

// Logout handles POST /auth/logout from the browser. The cookie is cleared
// even when the store fails, but the failure is reported instead of the
// signed-out page.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	err := h.Svc.Logout(r.Context(), h.Cookie.Token(r))
	h.Cookie.Clear(w, r)

	isAJAX := strings.Contains(r.Header.Get("Accept"), "application/json") ||
		IsHTMX(r) ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")

	if err != nil {
		h.logger().ErrorContext(r.Context(), "logout failed", "error", err)
		if isAJAX {
			writeErrorMessage(w, http.StatusInternalServerError, "logout_failed", "Failed to log out")
			return
		}
		h.Renderer.renderOrFail(w, http.StatusInternalServerError, PageError, PageData{
			Title: "Sign out failed",
			Error: "We could not end your session on the server. Please try again.",
		})
		return
	}

	redirectURI := r.FormValue("redirect_uri")
	if redirectURI == "" {
		redirectURI = "/admin"
	}
	u := url.URL{Path: "/auth/signed-out", RawQuery: url.Values{"redirect_uri": {safeRedirectPath(redirectURI)}}.Encode()}
	signedOutURL := u.String()

	if isAJAX {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": signedOutURL,
		})
		return
	}

	http.Redirect(w, r, signedOutURL, http.StatusSeeOther)
}

// SignedOut handles GET /auth/signed-out.
func (h *AuthHandlers) SignedOut(w http.ResponseWriter, r *http.Request) {
	h.Renderer.renderOrFail(w, http.StatusOK, PageSignedOut, PageData{
		Title:             "Signed out",
		RedirectURI:       safeRedirectPath(r.URL.Query().Get("redirect_uri")),
		ProviderLogoutURL: h.ProviderLogoutURL,
	})
}

// APILogout handles POST /api/auth/logout. The cookie is cleared even when
// the store fails.
func (h *AuthHandlers) APILogout(w http.ResponseWriter, r *http.Request) {
	err := h.Svc.Logout(r.Context(), h.Cookie.Token(r))
	h.Cookie.Clear(w, r)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "logout failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "logout_failed", "Failed to log out")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// APIRefresh handles POST /api/auth/refresh.
func (h *AuthHandlers) APIRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok, err := h.Svc.Refresh(r.Context(), h.Cookie.Token(r))
	if err != nil {
		h.logger().ErrorContext(r.Context(), "session refresh failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "refresh_failed", "Failed to refresh session")
		return
	}
	if !ok {
		h.Cookie.Clear(w, r)
		writeErrorMessage(w, http.StatusUnauthorized, "session_not_found", "Session not found or expired")
		return
	}

	h.Cookie.Set(w, r, *sess)
	WriteJSON(w, http.StatusOK, map[string]any{
		"message":    "Session refreshed",
		"expires_at": sess.ExpiresAt,
	})
}

// APISession handles GET /api/auth/session. Looking the session up counts as
// activity.
func (h *AuthHandlers) APISession(w http.ResponseWriter, r *http.Request) {
	token := h.Cookie.Token(r)
	sess, err := h.Svc.Session(r.Context(), token)
	if err != nil {
		if !domainauth.IsUnauthorized(err) {
			h.logger().ErrorContext(r.Context(), "session lookup failed", "error", err)
			WriteError(w, ErrorParams{
				Code:    http.StatusInternalServerError,
				ErrCode: "session_unavailable",
				Err:     errors.New("session service unavailable"),
			})
			return
		}
		if token != "" {
			h.Cookie.Clear(w, r)
		}
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated":    true,
		"user":             sess.Admin(),
		"expires_at":       sess.ExpiresAt,
		"last_activity_at": sess.LastActivityAt,
	})
}

type oauthCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setOAuthCookies stores state, nonce and the post-login redirect for the
// provider round trip.
func (h *AuthHandlers) setOAuthCookies(w http.ResponseWriter, r *http.Request, p oauthCookieParams) {
	for name, value := range map[string]string{
		oauthStateCookie: p.State,
		oauthNonceCookie: p.Nonce,
		postLoginCookie:  p.RedirectURI,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   h.Cookie.Domain,
			HttpOnly: true,
			Secure:   isSecureRequest(r),
			SameSite: http.SameSiteLaxMode,
			MaxAge:   oauthCookieLifetime,
			Expires:  time.Now().Add(oauthCookieLifetime * time.Second),
		})
	}
}

// postLoginRedirect returns the stored destination and clears its cookie.
func (h *AuthHandlers) postLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(postLoginCookie)
	if err != nil {
		return "/admin"
	}
	clearCookie(w, r, postLoginCookie, h.Cookie.Domain)
	return safeRedirectPath(c.Value)
}
