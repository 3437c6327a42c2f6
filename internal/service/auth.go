package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/observability/metrics"
	"github.com/target/catalog-admin/internal/observability/statsd"
	"github.com/target/catalog-admin/internal/ports"
)

// Login methods used for metric tags.
const (
	LoginMethodPassword = "password"
	LoginMethodProvider = "provider"
)

// sessionTokenBytes is the amount of entropy in a session token.
const sessionTokenBytes = 32

// PasswordLoginDeps groups dependencies for local account login.
type PasswordLoginDeps struct {
	Admins    ports.AdminDirectory
	Passwords ports.PasswordHasher
}

// AuthRuntime groups ambient dependencies shared by the auth flows.
type AuthRuntime struct {
	Clock    ports.Clock            // Optional: defaults to the wall clock
	Logger   *slog.Logger           // Optional
	Metrics  statsd.Sink            // Optional
	NewToken func() (string, error) // Optional: defaults to NewSessionToken
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider // Optional: required for BeginLogin/CompleteLogin
	Sessions ports.SessionStore // Required
	Roles    ports.RoleMapper   // Optional: required for CompleteLogin
	Password PasswordLoginDeps  // Optional: required for PasswordLogin
	Policy   domainauth.Policy  // Zero value means DefaultPolicy
	Runtime  AuthRuntime
}

// AuthService owns the session lifecycle: login, validation, refresh and logout.
type AuthService struct {
	provider  ports.AuthProvider
	sessions  ports.SessionStore
	roles     ports.RoleMapper
	admins    ports.AdminDirectory
	passwords ports.PasswordHasher
	policy    domainauth.Policy
	clock     ports.Clock
	logger    *slog.Logger
	metrics   statsd.Sink
	newToken  func() (string, error)
}

// NewAuthService constructs a new AuthService. It panics without a session store.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.Sessions == nil {
		panic("AuthService requires a SessionStore")
	}

	policy := opts.Policy
	if policy.SessionDuration <= 0 || policy.IdleTimeout <= 0 {
		def := domainauth.DefaultPolicy()
		if policy.SessionDuration <= 0 {
			policy.SessionDuration = def.SessionDuration
		}
		if policy.IdleTimeout <= 0 {
			policy.IdleTimeout = def.IdleTimeout
		}
	}

	clock := opts.Runtime.Clock
	if clock == nil {
		clock = wallClock{}
	}
	logger := opts.Runtime.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newToken := opts.Runtime.NewToken
	if newToken == nil {
		newToken = NewSessionToken
	}

	return &AuthService{
		provider:  opts.Provider,
		sessions:  opts.Sessions,
		roles:     opts.Roles,
		admins:    opts.Password.Admins,
		passwords: opts.Password.Passwords,
		policy:    policy,
		clock:     clock,
		logger:    logger.With("component", "auth_service"),
		metrics:   opts.Runtime.Metrics,
		newToken:  newToken,
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// Policy returns the session policy in effect.
func (s *AuthService) Policy() domainauth.Policy { return s.policy }

// NewSessionToken returns 256 bits of crypto/rand encoded as unpadded base64url.
func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates a provider flow and returns the auth URL with state and nonce.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.provider == nil {
		return nil, errors.New("no auth provider configured")
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteLogin exchanges the code for an identity, maps its role and
// starts a session. Identities mapping to the guest role are refused.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*domainauth.Session, error) {
	sess, err := s.completeLogin(ctx, input)
	metrics.EmitLogin(s.metrics, LoginMethodProvider, err)
	return sess, err
}

func (s *AuthService) completeLogin(ctx context.Context, input CompleteLoginInput) (*domainauth.Session, error) {
	if s.provider == nil || s.roles == nil {
		return nil, errors.New("no auth provider configured")
	}
	if input.Code == "" {
		return nil, errors.New("authorization code is required")
	}
	if input.State == "" {
		return nil, errors.New("state parameter is required")
	}
	if input.Nonce == "" {
		return nil, errors.New("nonce parameter is required")
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput(input))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	admin := domainauth.AdminUser{
		ID:    identity.UserID,
		Email: identity.Email,
		Name:  identity.DisplayName(),
		Role:  s.roles.Map(identity.Groups),
	}
	if admin.IsGuest() {
		s.logger.InfoContext(ctx, "login refused: no application role", "user_id", identity.UserID)
		return nil, domainauth.ErrAccessDenied
	}

	return s.startSession(ctx, admin)
}

// PasswordLogin authenticates a local admin account and starts a session.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) PasswordLogin(ctx context.Context, email, password string) (*domainauth.Session, error) {
	sess, err := s.passwordLogin(ctx, email, password)
	metrics.EmitLogin(s.metrics, LoginMethodPassword, err)
	return sess, err
}

func (s *AuthService) passwordLogin(ctx context.Context, email, password string) (*domainauth.Session, error) {
	if s.admins == nil || s.passwords == nil {
		return nil, errors.New("password login is not configured")
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, domainauth.ErrInvalidCredentials
	}

	account, err := s.admins.GetByEmail(ctx, email)
	if errors.Is(err, domainauth.ErrAdminNotFound) {
		s.passwords.CompareDummy(password)
		return nil, domainauth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup admin: %w", err)
	}

	if cmpErr := s.passwords.Compare(account.PasswordHash, password); cmpErr != nil {
		s.logger.DebugContext(ctx, "password rejected", "admin_id", account.ID, "error", cmpErr)
		return nil, domainauth.ErrInvalidCredentials
	}
	if account.Disabled {
		return nil, domainauth.ErrAccountDisabled
	}
	if account.Role == domainauth.RoleGuest {
		return nil, domainauth.ErrAccessDenied
	}

	return s.startSession(ctx, account.User())
}

// startSession is the single place sessions are created.
func (s *AuthService) startSession(ctx context.Context, admin domainauth.AdminUser) (*domainauth.Session, error) {
	token, err := s.newToken()
	if err != nil {
		return nil, err
	}

	sess := s.policy.NewSession(token, admin, s.clock.Now())
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s.logger.InfoContext(ctx, "session started",
		"admin_id", admin.ID,
		"role", admin.Role,
		"expires_at", sess.ExpiresAt,
	)
	return &sess, nil
}

// Authenticate validates the token supplied by src and returns its admin.
// Expired and idle sessions are deleted as a side effect.
func (s *AuthService) Authenticate(ctx context.Context, src TokenSource) (*domainauth.AdminUser, error) {
	var token string
	if src != nil {
		token = src.SessionToken(ctx)
	}
	return s.Validate(ctx, token)
}

// Validate is Authenticate for a token already in hand.
func (s *AuthService) Validate(ctx context.Context, token string) (*domainauth.AdminUser, error) {
	sess, err := s.touch(ctx, token)
	if err != nil {
		return nil, err
	}
	admin := sess.Admin()
	return &admin, nil
}

// Session validates token and returns the full record.
func (s *AuthService) Session(ctx context.Context, token string) (*domainauth.Session, error) {
	sess, err := s.touch(ctx, token)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// touch runs the check-and-bump inside the store's atomic update.
func (s *AuthService) touch(ctx context.Context, token string) (domainauth.Session, error) {
	if token == "" {
		metrics.EmitSessionCheck(s.metrics, metrics.AuthValidate, domainauth.ErrNoSession)
		return domainauth.Session{}, domainauth.ErrNoSession
	}

	now := s.clock.Now()
	sess, err := s.sessions.Update(ctx, token, func(sess *domainauth.Session) error {
		return s.policy.Touch(sess, now)
	})
	metrics.EmitSessionCheck(s.metrics, metrics.AuthValidate, err)

	switch {
	case err == nil:
		return sess, nil
	case domainauth.IsTerminal(err):
		s.logger.DebugContext(ctx, "session invalidated", "reason", metrics.SessionOutcome(err))
		return domainauth.Session{}, err
	case domainauth.IsUnauthorized(err):
		return domainauth.Session{}, err
	default:
		s.logger.ErrorContext(ctx, "session validation failed", "error", err)
		return domainauth.Session{}, fmt.Errorf("validate session: %w", err)
	}
}

// Refresh slides the session's expiry to now+SessionDuration. It reports
// false when the token is unknown, expired or idle; the latter two are
// deleted. CreatedAt is never changed.
func (s *AuthService) Refresh(ctx context.Context, token string) (*domainauth.Session, bool, error) {
	if token == "" {
		metrics.EmitSessionCheck(s.metrics, metrics.AuthRefresh, domainauth.ErrNoSession)
		return nil, false, nil
	}

	now := s.clock.Now()
	sess, err := s.sessions.Update(ctx, token, func(sess *domainauth.Session) error {
		return s.policy.Renew(sess, now)
	})
	metrics.EmitSessionCheck(s.metrics, metrics.AuthRefresh, err)

	switch {
	case err == nil:
		return &sess, true, nil
	case domainauth.IsUnauthorized(err):
		return nil, false, nil
	default:
		s.logger.ErrorContext(ctx, "session refresh failed", "error", err)
		return nil, false, fmt.Errorf("refresh session: %w", err)
	}
}

// Logout removes a session. Empty and unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	err := s.sessions.Delete(ctx, token)
	metrics.EmitResult(s.metrics, metrics.AuthLogout, err)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
