package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/ports"
)

// AdminUserServiceOptions groups dependencies for AdminUserService.
type AdminUserServiceOptions struct {
	Repo      ports.AdminAccountRepository // Required
	Passwords ports.PasswordHasher         // Required
	Sessions  ports.SessionSweeper         // Optional: revokes sessions on disable/password change
	Logger    *slog.Logger                 // Optional
}

// AdminUserService manages local admin accounts for the ops CLI.
type AdminUserService struct {
	repo      ports.AdminAccountRepository
	passwords ports.PasswordHasher
	sessions  ports.SessionSweeper
	logger    *slog.Logger
}

// NewAdminUserService constructs a new AdminUserService.
func NewAdminUserService(opts AdminUserServiceOptions) (*AdminUserService, error) {
	if opts.Repo == nil {
		return nil, errors.New("AdminAccountRepository is required")
	}
	if opts.Passwords == nil {
		return nil, errors.New("PasswordHasher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminUserService{
		repo:      opts.Repo,
		passwords: opts.Passwords,
		sessions:  opts.Sessions,
		logger:    logger.With("component", "admin_user_service"),
	}, nil
}

// CreateAdminInput groups the plaintext inputs for Create.
type CreateAdminInput struct {
	Email    string
	Name     string
	Password string
	Role     domainauth.Role
}

// Create hashes the password and stores a new account.
func (s *AdminUserService) Create(ctx context.Context, in CreateAdminInput) (*domainauth.AdminAccount, error) {
	role := in.Role
	if role == "" {
		role = domainauth.RoleAdmin
	}
	if role == domainauth.RoleGuest {
		return nil, fmt.Errorf("role %q cannot sign in", role)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.repo.Create(ctx, ports.CreateAdminParams{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}

	s.logger.InfoContext(ctx, "admin account created", "admin_id", account.ID, "role", account.Role)
	return account, nil
}

// List returns all accounts.
func (s *AdminUserService) List(ctx context.Context) ([]domainauth.AdminAccount, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return accounts, nil
}

// SetPassword replaces the password and signs the admin out everywhere.
func (s *AdminUserService) SetPassword(ctx context.Context, email, password string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, email, hash); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	_, err = s.PurgeSessions(ctx, email)
	return err
}

// SetDisabled toggles the account. Disabling also signs the admin out.
func (s *AdminUserService) SetDisabled(ctx context.Context, email string, disabled bool) error {
	if err := s.repo.SetDisabled(ctx, email, disabled); err != nil {
		return fmt.Errorf("set disabled: %w", err)
	}
	s.logger.InfoContext(ctx, "admin account updated", "email", strings.ToLower(email), "disabled", disabled)
	if !disabled {
		return nil
	}
	_, err := s.PurgeSessions(ctx, email)
	return err
}

// PurgeSessions deletes every session of the admin with email. Without a
// sweeper it is a no-op.
func (s *AdminUserService) PurgeSessions(ctx context.Context, email string) (int64, error) {
	if s.sessions == nil {
		return 0, nil
	}
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("lookup admin: %w", err)
	}
	n, err := s.sessions.DeleteByAdmin(ctx, account.ID)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "admin sessions purged", "admin_id", account.ID, "count", n)
	}
	return n, nil
}
