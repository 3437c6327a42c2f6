// Package devseed creates local admin accounts for development databases.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/target/catalog-admin/internal/adapters/passwords"
	"github.com/target/catalog-admin/internal/data"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	apperrors "github.com/target/catalog-admin/internal/errors"
	"github.com/target/catalog-admin/internal/service"
)

// devBcryptCost keeps seeding fast; these accounts never leave a laptop.
const devBcryptCost = 4

// Account is one seeded login.
type Account struct {
	Email    string
	Name     string
	Password string
	Role     domainauth.Role
}

// DefaultAccounts returns the accounts seeded by db-seed.
func DefaultAccounts() []Account {
	return []Account{
		{Email: "admin@example.com", Name: "Dev Admin", Password: "admin-password", Role: domainauth.RoleAdmin},
		{Email: "editor@example.com", Name: "Dev Editor", Password: "editor-password", Role: domainauth.RoleUser},
	}
}

// NewAdminService builds the account service used for seeding.
func NewAdminService(db *sql.DB, logger *slog.Logger) (*service.AdminUserService, error) {
	return service.NewAdminUserService(service.AdminUserServiceOptions{
		Repo:      data.NewAdminUserRepo(db),
		Passwords: passwords.NewHasher(devBcryptCost),
		Logger:    logger,
	})
}

// Run creates each account that does not exist yet.
func Run(ctx context.Context, svc *service.AdminUserService, accounts []Account, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	failures := 0
	for _, a := range accounts {
		created, err := createAccount(ctx, svc, a)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create admin account", "email", a.Email, "error", err)
			failures++
			continue
		}
		msg := "admin account already exists"
		if created {
			msg = "created admin account"
		}
		logger.InfoContext(ctx, msg, "email", a.Email, "role", a.Role)
	}
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func createAccount(ctx context.Context, svc *service.AdminUserService, a Account) (bool, error) {
	_, err := svc.Create(ctx, service.CreateAdminInput{
		Email:    a.Email,
		Name:     a.Name,
		Password: a.Password,
		Role:     a.Role,
	})
	if apperrors.IsConflict(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
