package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/catalog-admin/config"
	"github.com/target/catalog-admin/internal/adapters/passwords"
	"github.com/target/catalog-admin/internal/bootstrap"
	"github.com/target/catalog-admin/internal/data"
	"github.com/target/catalog-admin/internal/ports"
	"github.com/target/catalog-admin/internal/service"
)

type connectInfraOptions struct {
	Logger    *slog.Logger
	Config    *config.AppConfig
	WantDB    bool
	WantRedis bool
}

type infra struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// connectInfra connects the requested backends, closing anything already
// opened when a later connection fails.
func connectInfra(opts *connectInfraOptions) (*infra, error) {
	out := &infra{}
	deps := bootstrap.DatabaseConfig{
		DBConfig:    opts.Config.Postgres,
		RedisConfig: opts.Config.Redis,
		Logger:      opts.Logger,
	}

	if opts.WantDB {
		db, err := bootstrap.ConnectDB(deps)
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		out.DB = db
	}

	if opts.WantRedis {
		client, err := bootstrap.ConnectRedis(deps)
		if err != nil {
			if closeErr := out.Close(); closeErr != nil {
				err = errors.Join(err, closeErr)
			}
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		out.Redis = client
	}

	return out, nil
}

func (i *infra) Close() error {
	var closeErr error
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}

// withInfra runs f with a signal-aware, time-bounded context.
func withInfra(
	cmdCtx *commandContext,
	timeout time.Duration,
	want connectInfraOptions,
	f func(ctx context.Context, in *infra) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	want.Logger = cmdCtx.Logger
	want.Config = &cmdCtx.Config
	in, err := connectInfra(&want)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			cmdCtx.Logger.Warn("infra close failed", "error", cerr)
		}
	}()

	return f(ctx, in)
}

// withDatabase runs f with a Postgres connection only.
func withDatabase(cmdCtx *commandContext, timeout time.Duration, f func(ctx context.Context, db *sql.DB) error) error {
	return withInfra(cmdCtx, timeout, connectInfraOptions{WantDB: true}, func(ctx context.Context, in *infra) error {
		return f(ctx, in.DB)
	})
}

// sessionInfra reports which backends the session store needs besides Postgres.
func sessionInfra(cfg *config.AppConfig) connectInfraOptions {
	return connectInfraOptions{
		WantDB:    true,
		WantRedis: cfg.Auth.Session.Store != config.SessionStorePostgres,
	}
}

//nolint:ireturn // the store kind is picked at runtime.
func sessionSweeper(cmdCtx *commandContext, in *infra) (ports.SessionSweeper, error) {
	return bootstrap.NewSessionSweeper(&cmdCtx.Config, in.DB, in.Redis)
}

// adminService wires the account service. Sessions are purged through the
// configured session store when sweeper is non-nil.
func adminService(cmdCtx *commandContext, in *infra, sweeper ports.SessionSweeper) (*service.AdminUserService, error) {
	return service.NewAdminUserService(service.AdminUserServiceOptions{
		Repo:      data.NewAdminUserRepo(in.DB),
		Passwords: passwords.NewHasher(cmdCtx.Config.Auth.BcryptCost),
		Sessions:  sweeper,
		Logger:    cmdCtx.Logger,
	})
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func write(w io.Writer, args ...any) error {
	_, err := fmt.Fprint(w, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
