// Package scanrunner pulls queued scan jobs, arbitrates the single run slot,
// and executes scans through a ScanWorker.
package scanrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/threatwire/threatwire/config"
	"github.com/threatwire/threatwire/internal/core"
	"github.com/threatwire/threatwire/internal/data"
	"github.com/threatwire/threatwire/internal/domain/model"
	"github.com/threatwire/threatwire/internal/observability/statsd"
	"github.com/threatwire/threatwire/internal/service"
)

// RunnerOptions configures the scan runner adapter.
type RunnerOptions struct {
	Executor data.QueryExecutor
	Config   config.ScanRunnerConfig
	Queue    config.QueueConfig
	Logger   *slog.Logger

	// Worker executes the actual scans; defaults to the HTTP fetch worker.
	Worker core.ScanWorker

	// Optional dependency injection for testing/decoupling
	QueueRepo core.QueueRepository
	LeaseRepo core.LeaseRepository
	Cache     core.CacheRepository
	Metrics   statsd.Sink
}

// Runner is the scan execution loop: next queued job, wait for the run slot,
// scan, record the outcome.
type Runner struct {
	queue   *service.QueueService
	lease   *service.LeaseService
	repo    core.QueueRepository
	worker  core.ScanWorker
	config  config.ScanRunnerConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewRunner creates a new scan runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	queueRepo := opts.QueueRepo
	leaseRepo := opts.LeaseRepo
	if queueRepo == nil || leaseRepo == nil {
		jobRepo := data.NewJobRepo(opts.Executor, data.RepoConfig{Logger: opts.Logger})
		if queueRepo == nil {
			queueRepo = jobRepo
		}
		if leaseRepo == nil {
			leaseRepo = jobRepo
		}
	}

	queueSvc, err := service.NewQueueService(service.QueueServiceOptions{
		Repo:    queueRepo,
		Cache:   opts.Cache,
		Config:  opts.Queue,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire queue service: %w", err)
	}

	leaseSvc, err := service.NewLeaseService(service.LeaseServiceOptions{
		Repo:    leaseRepo,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire lease service: %w", err)
	}

	cfg := opts.Config
	cfg.Sanitize()

	return &Runner{
		queue:   queueSvc,
		lease:   leaseSvc,
		repo:    queueRepo,
		worker:  opts.Worker,
		config:  cfg,
		logger:  opts.Logger.With("component", "scan_runner"),
		metrics: opts.Metrics,
	}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.Executor == nil && (opts.QueueRepo == nil || opts.LeaseRepo == nil) {
		return errors.New("a query executor or injected repositories are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Worker == nil {
		opts.Worker = NewHTTPWorker(HTTPWorkerOptions{Logger: opts.Logger})
	}
	return nil
}

// Queue exposes the wired queue service for callers that accept work, e.g.
// an API surface or dev seeding.
func (r *Runner) Queue() *service.QueueService {
	return r.queue
}

// Run executes the scan loop until the context is canceled. Graceful
// shutdown returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting scan runner",
		"interval", r.config.Interval,
		"lease_wait_timeout", r.config.LeaseWaitTimeout,
	)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "scan runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := r.runOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.ErrorContext(ctx, "scan cycle failed", "error", err)
			}
		}
	}
}

// runOnce processes at most one job: pick the oldest due queued job, wait for
// the run slot, scan, and record the outcome.
func (r *Runner) runOnce(ctx context.Context) error {
	job, err := r.nextJob(ctx)
	if err != nil || job == nil {
		return err
	}

	if waitErr := r.lease.WaitForTurn(ctx, job.ID); waitErr != nil {
		var timeoutErr *service.LeaseWaitTimeoutError
		if errors.As(waitErr, &timeoutErr) {
			// The job stays queued; a later cycle retries it.
			r.logger.WarnContext(ctx, "gave up waiting for the run slot",
				"job_id", job.ID,
				"waited", timeoutErr.Waited,
			)
			return nil
		}
		return waitErr
	}

	return r.executeScan(ctx, job)
}

// nextJob returns the oldest due queued job, or nil when the queue is
// drained. Scheduling reads go straight to the repository; the service layer
// owns intake and terminal transitions.
func (r *Runner) nextJob(ctx context.Context) (*model.Job, error) {
	job, err := r.repo.NextQueued(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsQueued) {
			return nil, nil
		}
		return nil, fmt.Errorf("next queued job: %w", err)
	}
	return job, nil
}

func (r *Runner) executeScan(ctx context.Context, job *model.Job) error {
	start := time.Now()
	r.logger.InfoContext(ctx, "scan started", "job_id", job.ID, "target", job.Target)

	output, scanErr := r.worker.Scan(ctx, job)
	elapsed := time.Since(start)

	if scanErr != nil {
		updated, failErr := r.queue.MarkFailed(ctx, job.ID, scanErr.Error())
		if failErr != nil {
			return fmt.Errorf("record scan failure: %w", errors.Join(scanErr, failErr))
		}
		r.logger.WarnContext(ctx, "scan failed",
			"job_id", job.ID,
			"elapsed", elapsed,
			"recorded", updated,
			"error", scanErr,
		)
		return nil
	}

	updated, doneErr := r.queue.MarkDone(ctx, job.ID, output)
	if doneErr != nil {
		return fmt.Errorf("record scan result: %w", doneErr)
	}
	if !updated {
		// Reaper reclaimed the slot mid-scan; the result is dropped.
		r.logger.WarnContext(ctx, "scan finished after lease loss, result discarded",
			"job_id", job.ID,
			"elapsed", elapsed,
		)
		return nil
	}

	r.logger.InfoContext(ctx, "scan done", "job_id", job.ID, "elapsed", elapsed)
	return nil
}
