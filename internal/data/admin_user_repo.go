package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/catalog-admin/internal/data/pgxutil"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	apperrors "github.com/target/catalog-admin/internal/errors"
	"github.com/target/catalog-admin/internal/ports"
)

const adminColumns = `id::text AS id, email, name, password_hash, role, disabled, created_at, updated_at`

// AdminUserRepo manages rows in admin_users.
type AdminUserRepo struct {
	DB *sql.DB
}

// NewAdminUserRepo creates a new AdminUserRepo.
func NewAdminUserRepo(db *sql.DB) *AdminUserRepo {
	return &AdminUserRepo{DB: db}
}

// Create inserts a new account. Duplicate emails (case-insensitive) map to a
// conflict AppError.
func (r *AdminUserRepo) Create(ctx context.Context, p ports.CreateAdminParams) (*domainauth.AdminAccount, error) {
	email := normalizeEmail(p.Email)
	if email == "" {
		return nil, apperrors.ValidationField("email", "email is required")
	}
	if p.PasswordHash == "" {
		return nil, apperrors.ValidationField("password", "password hash is required")
	}
	role := p.Role
	if role == "" {
		role = domainauth.RoleAdmin
	}

	var out domainauth.AdminAccount
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO admin_users (id, email, name, password_hash, role)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+adminColumns,
			uuid.NewString(), email, strings.TrimSpace(p.Name), p.PasswordHash, string(role))
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.AdminAccount])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return &out, nil
}

// GetByEmail looks up an account by case-insensitive email.
func (r *AdminUserRepo) GetByEmail(ctx context.Context, email string) (*domainauth.AdminAccount, error) {
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE lower(email) = $1`, normalizeEmail(email))
}

// GetByID looks up an account by id.
func (r *AdminUserRepo) GetByID(ctx context.Context, id string) (*domainauth.AdminAccount, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domainauth.ErrAdminNotFound
	}
	return r.getOne(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE id = $1`, id)
}

func (r *AdminUserRepo) getOne(ctx context.Context, query string, arg any) (*domainauth.AdminAccount, error) {
	var out domainauth.AdminAccount
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.AdminAccount])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainauth.ErrAdminNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &out, nil
}

// List returns all accounts ordered by email.
func (r *AdminUserRepo) List(ctx context.Context) ([]domainauth.AdminAccount, error) {
	var out []domainauth.AdminAccount
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+adminColumns+` FROM admin_users ORDER BY lower(email)`)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[domainauth.AdminAccount])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return out, nil
}

// SetPasswordHash replaces the stored hash for the account with email.
func (r *AdminUserRepo) SetPasswordHash(ctx context.Context, email, hash string) error {
	return r.exec(ctx,
		`UPDATE admin_users SET password_hash = $2, updated_at = now() WHERE lower(email) = $1`,
		normalizeEmail(email), hash)
}

// SetDisabled toggles the disabled flag for the account with email.
func (r *AdminUserRepo) SetDisabled(ctx context.Context, email string, disabled bool) error {
	return r.exec(ctx,
		`UPDATE admin_users SET disabled = $2, updated_at = now() WHERE lower(email) = $1`,
		normalizeEmail(email), disabled)
}

func (r *AdminUserRepo) exec(ctx context.Context, query string, args ...any) error {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if affected == 0 {
		return domainauth.ErrAdminNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
