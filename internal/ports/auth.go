package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
)

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// SessionMutator edits a session in place. Returning an error aborts the
// write; a terminal error (expired/idle) also removes the record.
type SessionMutator func(sess *domainauth.Session) error

// SessionStore persists admin sessions keyed by token.
//
// Get and Delete are plain lookups. Update is the only read-modify-write
// path and must be atomic per token. Missing records yield
// domainauth.ErrSessionNotFound.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, token string) (domainauth.Session, error)
	Update(ctx context.Context, token string, fn SessionMutator) (domainauth.Session, error)
	Delete(ctx context.Context, token string) error
}

// SessionSweeper is implemented by stores without native expiry.
type SessionSweeper interface {
	// DeleteStale removes up to limit sessions that expired before now or
	// whose last activity is older than idleCutoff. Returns the count removed.
	DeleteStale(ctx context.Context, now, idleCutoff time.Time, limit int) (int64, error)
	// DeleteByAdmin removes every session of an admin.
	DeleteByAdmin(ctx context.Context, adminID string) (int64, error)
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}

// AdminDirectory looks up locally managed admin accounts. Misses yield
// domainauth.ErrAdminNotFound.
type AdminDirectory interface {
	GetByEmail(ctx context.Context, email string) (*domainauth.AdminAccount, error)
}

// PasswordHasher hashes and verifies admin passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns nil only when password matches hash.
	Compare(hash, password string) error
	// CompareDummy burns comparable CPU time for unknown accounts.
	CompareDummy(password string)
}

// Clock supplies the current time. Tests use data.FixedTimeProvider.
type Clock interface {
	Now() time.Time
}

// CreateAdminParams groups the fields needed to create an admin account.
type CreateAdminParams struct {
	Email        string
	Name         string
	PasswordHash string
	Role         domainauth.Role
}

// AdminAccountRepository manages locally stored admin accounts.
type AdminAccountRepository interface {
	AdminDirectory
	Create(ctx context.Context, p CreateAdminParams) (*domainauth.AdminAccount, error)
	List(ctx context.Context) ([]domainauth.AdminAccount, error)
	SetPasswordHash(ctx context.Context, email, hash string) error
	SetDisabled(ctx context.Context, email string, disabled bool) error
}
