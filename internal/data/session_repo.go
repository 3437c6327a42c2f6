package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/catalog-admin/internal/data/pgxutil"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/ports"
)

const sessionColumns = `token, admin_id, email, name, role, created_at, expires_at, last_activity_at`

// SessionRepo stores admin sessions in Postgres.
type SessionRepo struct {
	DB *sql.DB
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{DB: db}
}

// Save inserts or replaces a session.
func (r *SessionRepo) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.Token == "" {
		return errors.New("session token cannot be empty")
	}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO admin_sessions (`+sessionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (token) DO UPDATE SET
				admin_id = EXCLUDED.admin_id,
				email = EXCLUDED.email,
				name = EXCLUDED.name,
				role = EXCLUDED.role,
				created_at = EXCLUDED.created_at,
				expires_at = EXCLUDED.expires_at,
				last_activity_at = EXCLUDED.last_activity_at`,
			sess.Token, sess.AdminID, sess.Email, sess.Name, string(sess.Role),
			sess.CreatedAt, sess.ExpiresAt, sess.LastActivityAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get loads a session by token.
func (r *SessionRepo) Get(ctx context.Context, token string) (domainauth.Session, error) {
	if token == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	var out domainauth.Session
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		var qerr error
		out, qerr = selectSession(ctx, conn, `SELECT `+sessionColumns+` FROM admin_sessions WHERE token = $1`, token)
		return qerr
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("get session: %w", err)
	}
	return out, nil
}

// Update locks the row with SELECT ... FOR UPDATE, applies fn and writes the
// result back in the same transaction. Terminal mutator errors delete the row.
func (r *SessionRepo) Update(
	ctx context.Context,
	token string,
	fn ports.SessionMutator,
) (domainauth.Session, error) {
	if token == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}

	var (
		out       domainauth.Session
		terminal  error
		notFound  bool
		mutateErr error
	)
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		sess, err := selectSession(ctx, tx,
			`SELECT `+sessionColumns+` FROM admin_sessions WHERE token = $1 FOR UPDATE`, token)
		if errors.Is(err, pgx.ErrNoRows) {
			notFound = true
			return nil
		}
		if err != nil {
			return err
		}

		if fnErr := fn(&sess); fnErr != nil {
			if !domainauth.IsTerminal(fnErr) {
				// Nothing written; committing just releases the lock.
				mutateErr = fnErr
				return nil
			}
			terminal = fnErr
			_, delErr := tx.Exec(ctx, `DELETE FROM admin_sessions WHERE token = $1`, token)
			return delErr
		}

		_, err = tx.Exec(ctx, `
			UPDATE admin_sessions
			SET expires_at = $2, last_activity_at = $3, email = $4, name = $5, role = $6
			WHERE token = $1`,
			token, sess.ExpiresAt, sess.LastActivityAt, sess.Email, sess.Name, string(sess.Role))
		if err != nil {
			return err
		}
		out = sess
		return nil
	}})

	switch {
	case err != nil:
		return domainauth.Session{}, fmt.Errorf("update session: %w", err)
	case notFound:
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	case terminal != nil:
		return domainauth.Session{}, terminal
	case mutateErr != nil:
		return domainauth.Session{}, mutateErr
	}
	return out, nil
}

// Delete removes a session. Missing tokens are not an error.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `DELETE FROM admin_sessions WHERE token = $1`, token)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteStale removes up to limit sessions that are expired at now or idle
// since before idleCutoff.
func (r *SessionRepo) DeleteStale(ctx context.Context, now, idleCutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	var n int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `
			DELETE FROM admin_sessions
			WHERE token IN (
				SELECT token FROM admin_sessions
				WHERE expires_at <= $1 OR last_activity_at <= $2
				LIMIT $3
				FOR UPDATE SKIP LOCKED
			)`, now, idleCutoff, limit)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}
	return n, nil
}

// DeleteByAdmin removes every session belonging to adminID.
func (r *SessionRepo) DeleteByAdmin(ctx context.Context, adminID string) (int64, error) {
	var n int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM admin_sessions WHERE admin_id = $1`, adminID)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete admin sessions: %w", err)
	}
	return n, nil
}

// Count returns the number of stored sessions.
func (r *SessionRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM admin_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

type sessionQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func selectSession(ctx context.Context, q sessionQuerier, query string, args ...any) (domainauth.Session, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return domainauth.Session{}, err
	}
	defer rows.Close()
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Session])
}
