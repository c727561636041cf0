package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/threatwire/threatwire/config"
	"github.com/threatwire/threatwire/internal/core"
	"github.com/threatwire/threatwire/internal/observability/metrics"
	"github.com/threatwire/threatwire/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required: reaper repository
	Config  config.ReaperConfig   // Reaper configuration
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink
}

// ReaperService reclaims the run slot from jobs whose worker died mid-scan.
// A running job whose lease heartbeat is older than LeaseMaxAge is marked
// failed, freeing the slot for the next job.
type ReaperService struct {
	repo    core.ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger != nil {
		logger = logger.With("component", "reaper_service")
	} else {
		logger = slog.Default().With("component", "reaper_service")
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  cfg,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run executes reap sweeps at the configured interval until the context is
// canceled. Graceful shutdown returns nil.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper",
		"interval", s.config.Interval,
		"lease_max_age", s.config.LeaseMaxAge,
	)

	// Jitter keeps co-starting instances from sweeping in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil && !isContextCancellation(err) {
		s.logger.ErrorContext(ctx, "initial reap sweep failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !isContextCancellation(err) {
				// Keep sweeping; a single failed sweep is not fatal.
				s.logger.ErrorContext(ctx, "reap sweep failed", "error", err)
			}
		}
	}
}

// Sweep performs one reap pass and returns the number of jobs reclaimed.
func (s *ReaperService) Sweep(ctx context.Context) (int64, error) {
	start := time.Now()
	count, err := s.repo.ReapStale(ctx, s.config.LeaseMaxAge)
	elapsed := time.Since(start)

	if err != nil {
		metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
			Transition: "reaped",
			Result:     metrics.ResultError,
			Duration:   elapsed,
			Err:        err,
		})
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.Gauge("reaper.reclaimed", float64(count), nil)
		s.metrics.Timing("reaper.sweep_duration", elapsed, nil)
	}
	if count > 0 {
		metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
			Transition: "reaped",
			Result:     metrics.ResultSuccess,
			Duration:   elapsed,
		})
		s.logger.InfoContext(ctx, "reap sweep reclaimed stale jobs",
			"count", count,
			"elapsed", elapsed,
		)
	}
	return count, nil
}

// waitWithJitter delays up to 10% of the interval before the first sweep.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
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

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
