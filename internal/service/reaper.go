package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/catalog-admin/config"
	domainauth "github.com/target/catalog-admin/internal/domain/auth"
	"github.com/target/catalog-admin/internal/observability/metrics"
	"github.com/target/catalog-admin/internal/observability/statsd"
	"github.com/target/catalog-admin/internal/ports"
)

// SessionReaperOptions groups dependencies for SessionReaperService.
type SessionReaperOptions struct {
	Sweeper ports.SessionSweeper // Required
	Policy  domainauth.Policy    // Required: decides which sessions are stale
	Config  config.ReaperConfig
	Runtime AuthRuntime // Optional: clock, logger, metrics
}

// SessionReaperService periodically deletes expired and idle sessions.
// Validation already removes stale sessions lazily; the sweep catches the
// ones nobody comes back for.
type SessionReaperService struct {
	sweeper ports.SessionSweeper
	policy  domainauth.Policy
	config  config.ReaperConfig
	clock   ports.Clock
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewSessionReaperService constructs a new SessionReaperService.
func NewSessionReaperService(opts SessionReaperOptions) (*SessionReaperService, error) {
	if opts.Sweeper == nil {
		return nil, errors.New("SessionSweeper is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}

	clock := opts.Runtime.Clock
	if clock == nil {
		clock = wallClock{}
	}
	logger := opts.Runtime.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session_reaper")
	logger.Debug("SessionReaperService initialized",
		"interval", opts.Config.Interval,
		"batch_size", opts.Config.BatchSize,
		"idle_timeout", opts.Policy.IdleTimeout,
	)

	return &SessionReaperService{
		sweeper: opts.Sweeper,
		policy:  opts.Policy,
		config:  opts.Config,
		clock:   clock,
		logger:  logger,
		metrics: opts.Runtime.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SessionReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting session reaper", "interval", s.config.Interval)

	// Spread instances that start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil {
		s.logSweepError(err, "initial sweep")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "session reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logSweepError(err, "sweep")
			}
		}
	}
}

// waitWithJitter sleeps a random delay up to 10% of the interval.
func (s *SessionReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// Sweep deletes stale sessions in batches until a batch comes back short.
// It returns the number of sessions removed.
func (s *SessionReaperService) Sweep(ctx context.Context) (int64, error) {
	start := time.Now()
	now := s.clock.Now()
	cutoff := s.policy.IdleCutoff(now)

	var total int64
	var err error
	for {
		var n int64
		n, err = s.sweeper.DeleteStale(ctx, now, cutoff, s.config.BatchSize)
		total += n
		if err != nil {
			err = fmt.Errorf("delete stale sessions: %w", err)
			break
		}
		if n < int64(s.config.BatchSize) || n == 0 {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}
	}

	metrics.EmitReap(s.metrics, total, time.Since(start), suppressContextCancellation(err))
	if total > 0 {
		s.logger.InfoContext(ctx, "reaped stale sessions", "count", total, "idle_cutoff", cutoff)
	}
	return total, err
}

func (s *SessionReaperService) logSweepError(err error, label string) {
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
