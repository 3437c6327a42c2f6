// Package reaper runs the session reaper against the configured session store.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/catalog-admin/config"
	"github.com/target/catalog-admin/internal/data"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/observability/statsd"
	"github.com/target/catalog-admin/internal/ports"
	"github.com/target/catalog-admin/internal/service"
)

// Runner wires a SessionReaperService and runs its loop.
type Runner struct {
	reaper *service.SessionReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Policy domainauth.Policy
	Logger *slog.Logger

	// Optional overrides for tests.
	Sweeper ports.SessionSweeper
	Clock   ports.Clock
	Metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Sweeper == nil {
		return nil, errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	sweeper := opts.Sweeper
	if sweeper == nil {
		sweeper = data.NewSessionRepo(opts.DB)
	}

	reaper, err := service.NewSessionReaperService(service.SessionReaperOptions{
		Sweeper: sweeper,
		Policy:  opts.Policy,
		Config:  opts.Config,
		Runtime: service.AuthRuntime{
			Clock:   opts.Clock,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("wire session reaper: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting session reaper runner")
	return r.reaper.Run(ctx)
}

// SweepOnce removes stale sessions a single time. The ops CLI uses it.
func (r *Runner) SweepOnce(ctx context.Context) (int64, error) {
	return r.reaper.Sweep(ctx)
}
