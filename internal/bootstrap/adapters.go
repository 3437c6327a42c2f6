package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/catalog-admin/config"
	"github.com/target/catalog-admin/internal/adapters/reaper"
	redisadapter "github.com/target/catalog-admin/internal/adapters/redis"
	"github.com/target/catalog-admin/internal/data"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/observability/statsd"
	"github.com/target/catalog-admin/internal/ports"
)

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	Sweeper ports.SessionSweeper
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Policy  domainauth.Policy
	Metrics statsd.Sink
}

// NewSessionSweeper returns the sweeper for the configured session store.
//
//nolint:ireturn // the store kind is picked at runtime.
func NewSessionSweeper(cfg *config.AppConfig, db *sql.DB, client redis.UniversalClient) (ports.SessionSweeper, error) {
	switch cfg.Auth.Session.Store {
	case config.SessionStorePostgres:
		if db == nil {
			return nil, errors.New("postgres session store requires a database connection")
		}
		return data.NewSessionRepo(db), nil
	case config.SessionStoreRedis, "":
		if client == nil {
			return nil, errors.New("redis session store requires a redis client")
		}
		return redisadapter.NewSessionStoreWithPrefix(client, cfg.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.Auth.Session.Store)
	}
}

// NewReaperRunner wires the session reaper.
func NewReaperRunner(cfg ReaperConfig) (*reaper.Runner, error) {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		Sweeper: cfg.Sweeper,
		Config:  cfg.Config,
		Policy:  cfg.Policy,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create reaper runner: %w", err)
	}
	return runner, nil
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := NewReaperRunner(cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}
