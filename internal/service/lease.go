package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/threatwire/threatwire/config"
	"github.com/threatwire/threatwire/internal/core"
	apperrors "github.com/threatwire/threatwire/internal/errors"
	"github.com/threatwire/threatwire/internal/observability/metrics"
	"github.com/threatwire/threatwire/internal/observability/statsd"
)

// LeaseWaitTimeoutError reports that a job gave up waiting for the run slot.
type LeaseWaitTimeoutError struct {
	JobID  string
	Waited time.Duration
}

// Error implements the error interface.
func (e *LeaseWaitTimeoutError) Error() string {
	return fmt.Sprintf("job %s timed out after waiting %s for the run slot", e.JobID, e.Waited)
}

// LeaseServiceOptions groups dependencies for LeaseService.
type LeaseServiceOptions struct {
	Repo    core.LeaseRepository    // Required: lease repository
	Config  config.ScanRunnerConfig // Lease polling configuration
	Logger  *slog.Logger            // Optional: structured logger
	Metrics statsd.Sink             // Optional: metrics sink
}

// LeaseService arbitrates the single run slot. TryStart is a single atomic
// attempt; WaitForTurn polls it until the slot is won or the wait budget
// runs out.
type LeaseService struct {
	repo    core.LeaseRepository
	config  config.ScanRunnerConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewLeaseService constructs a new LeaseService.
func NewLeaseService(opts LeaseServiceOptions) (*LeaseService, error) {
	if opts.Repo == nil {
		return nil, errors.New("LeaseRepository is required")
	}

	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger != nil {
		logger = logger.With("component", "lease_service")
	} else {
		logger = slog.Default().With("component", "lease_service")
	}

	return &LeaseService{
		repo:    opts.Repo,
		config:  cfg,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// TryStart makes one atomic attempt to move the job into the run slot.
// False means the slot was contended or the job is not queued; the caller
// decides whether to wait or move on.
func (s *LeaseService) TryStart(ctx context.Context, id string) (bool, error) {
	if err := validateJobID(id); err != nil {
		return false, err
	}

	started, err := s.repo.TryStart(ctx, id)
	if err != nil {
		metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
			Transition: "lease_acquire",
			Result:     metrics.ResultError,
			Err:        err,
		})
		return false, apperrors.MapDBError(err)
	}

	result := metrics.ResultNoop
	if started {
		result = metrics.ResultSuccess
	}
	metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
		Transition: "lease_acquire",
		Result:     result,
	})
	return started, nil
}

// WaitForTurn polls TryStart until the job wins the run slot. It returns
// *LeaseWaitTimeoutError once the configured wait budget is exhausted and
// the caller's context error if canceled first.
func (s *LeaseService) WaitForTurn(ctx context.Context, id string) error {
	if err := validateJobID(id); err != nil {
		return err
	}

	started, err := s.TryStart(ctx, id)
	if err != nil {
		return err
	}
	if started {
		return nil
	}

	s.logger.InfoContext(ctx, "run slot busy, waiting for turn",
		"job_id", id,
		"poll_interval", s.config.LeasePollInterval,
		"wait_timeout", s.config.LeaseWaitTimeout,
	)

	deadline := time.NewTimer(s.config.LeaseWaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.config.LeasePollInterval)
	defer ticker.Stop()

	waitStart := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			waited := time.Since(waitStart)
			metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
				Transition: "lease_wait",
				Result:     metrics.ResultError,
				Duration:   waited,
			})
			return &LeaseWaitTimeoutError{JobID: id, Waited: waited}
		case <-ticker.C:
			started, err := s.TryStart(ctx, id)
			if err != nil {
				return err
			}
			if started {
				metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
					Transition: "lease_wait",
					Result:     metrics.ResultSuccess,
					Duration:   time.Since(waitStart),
				})
				return nil
			}
		}
	}
}

// Heartbeat refreshes the running job's lease so long scans are not reaped.
func (s *LeaseService) Heartbeat(ctx context.Context, id string) (bool, error) {
	if err := validateJobID(id); err != nil {
		return false, err
	}

	ok, err := s.repo.Heartbeat(ctx, id)
	if err != nil {
		return false, apperrors.MapDBError(err)
	}
	return ok, nil
}
