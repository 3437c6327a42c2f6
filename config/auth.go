package config

import (
	"fmt"
	"strings"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModePassword authenticates against locally stored admin accounts.
	AuthModePassword AuthMode = "password"
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch AuthMode(v) {
	case AuthModePassword, AuthModeOAuth, AuthModeMock:
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: password, oauth, mock)", v)
	}
}

// SessionStoreKind selects the session persistence backend.
type SessionStoreKind string

const (
	SessionStoreRedis    SessionStoreKind = "redis"
	SessionStorePostgres SessionStoreKind = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionStoreKind.
func (s *SessionStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch SessionStoreKind(v) {
	case SessionStoreRedis, SessionStorePostgres:
		*s = SessionStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionStore: %q (valid options: redis, postgres)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"catalog-admin"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"catalog-admin"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID string   `env:"USER_ID" envDefault:"dev-admin"`
	Email  string   `env:"EMAIL"   envDefault:"dev@example.com"`
	Groups []string `env:"GROUPS"  envDefault:"catalog-admins" envSeparator:";"`
}

// SessionConfig holds the session lifetime policy and cookie settings.
type SessionConfig struct {
	// DurationDays is the absolute session lifetime.
	DurationDays int `env:"SESSION_DURATION_DAYS" envDefault:"7"`

	// IdleTimeoutMinutes is the maximum gap between validated requests.
	IdleTimeoutMinutes int `env:"SESSION_IDLE_TIMEOUT_MINUTES" envDefault:"1440"`

	// Store selects where sessions are persisted.
	Store SessionStoreKind `env:"SESSION_STORE" envDefault:"redis"`

	// CookieName is the name of the session cookie.
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"admin_session"`
}

// Policy builds the immutable session policy.
func (s SessionConfig) Policy() domainauth.Policy {
	return domainauth.NewPolicy(s.DurationDays, s.IdleTimeoutMinutes)
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which login flow to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"password"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// Session policy and cookie settings.
	Session SessionConfig

	// BcryptCost is the work factor for admin password hashes.
	BcryptCost int `env:"AUTH_BCRYPT_COST" envDefault:"12"`

	// AdminGroup is the IdP group granted the admin role (oauth/mock modes).
	AdminGroup string `env:"ADMIN_GROUP" envDefault:"catalog-admins"`

	// UserGroup is the IdP group granted the user role (oauth/mock modes).
	UserGroup string `env:"USER_GROUP" envDefault:"catalog-editors"`
}

// Sanitize applies guardrails to authentication configuration values.
func (a *AuthConfig) Sanitize() {
	if a.Session.DurationDays < 1 {
		a.Session.DurationDays = 7
	}
	if a.Session.IdleTimeoutMinutes < 1 {
		a.Session.IdleTimeoutMinutes = 1440
	}
	a.Session.CookieName = strings.TrimSpace(a.Session.CookieName)
	if a.Session.CookieName == "" {
		a.Session.CookieName = "admin_session"
	}
	if a.BcryptCost < 4 {
		a.BcryptCost = 4
	}
	if a.BcryptCost > 31 {
		a.BcryptCost = 31
	}
}
