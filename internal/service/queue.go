// Package service contains the business logic sitting between the data layer
// and the runnable adapters.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/threatwire/threatwire/config"
	"github.com/threatwire/threatwire/internal/core"
	"github.com/threatwire/threatwire/internal/data"
	"github.com/threatwire/threatwire/internal/domain/model"
	apperrors "github.com/threatwire/threatwire/internal/errors"
	"github.com/threatwire/threatwire/internal/observability/metrics"
	"github.com/threatwire/threatwire/internal/observability/statsd"
)

// QueueServiceOptions groups dependencies for QueueService.
type QueueServiceOptions struct {
	Repo    core.QueueRepository // Required: queue repository
	Cache   core.CacheRepository // Optional: dedup cache, skipped when nil
	Config  config.QueueConfig   // Queue configuration
	Logger  *slog.Logger         // Optional: structured logger
	Metrics statsd.Sink          // Optional: metrics sink
}

// QueueService provides enqueue, lookup, and terminal-transition operations
// for scan jobs. When a cache is wired, repeat enqueues of the same target
// inside the dedup window are suppressed.
type QueueService struct {
	repo    core.QueueRepository
	cache   core.CacheRepository
	config  config.QueueConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewQueueService constructs a new QueueService.
func NewQueueService(opts QueueServiceOptions) (*QueueService, error) {
	if opts.Repo == nil {
		return nil, errors.New("QueueRepository is required")
	}

	logger := opts.Logger
	if logger != nil {
		logger = logger.With("component", "queue_service")
	} else {
		logger = slog.Default().With("component", "queue_service")
	}

	return &QueueService{
		repo:    opts.Repo,
		cache:   opts.Cache,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Enqueue validates and persists a new scan job. A target already enqueued
// within the dedup window yields a conflict instead of a duplicate row.
func (s *QueueService) Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("enqueue request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid enqueue request")
	}

	dedupKey, release, err := s.claimDedup(ctx, req)
	if err != nil {
		return nil, err
	}

	job, err := s.repo.Enqueue(ctx, req)
	if err != nil {
		release()
		metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
			Transition: "enqueue",
			Result:     metrics.ResultError,
			Err:        err,
		})
		return nil, apperrors.MapDBError(err)
	}

	if dedupKey != "" {
		s.logger.DebugContext(ctx, "dedup marker claimed", "key", dedupKey, "job_id", job.ID)
	}
	metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
		Transition: "enqueue",
		Result:     metrics.ResultSuccess,
	})
	return job, nil
}

// claimDedup reserves the dedup marker for the request's target. It returns
// the claimed key (empty when dedup is disabled) and a release func that
// undoes the claim if the insert fails afterwards.
func (s *QueueService) claimDedup(
	ctx context.Context,
	req *model.EnqueueRequest,
) (string, func(), error) {
	noop := func() {}
	if s.cache == nil || s.config.DedupTTL <= 0 {
		return "", noop, nil
	}

	key := dedupKey(req)
	claimed, err := s.cache.SetIfNotExists(ctx, key, []byte("1"), s.config.DedupTTL)
	if err != nil {
		// The cache is an optimization; a broken cache must not block intake.
		s.logger.WarnContext(ctx, "dedup cache unavailable, enqueueing anyway",
			"key", key,
			"error", err,
		)
		return "", noop, nil
	}
	if !claimed {
		metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
			Transition: "enqueue",
			Result:     metrics.ResultNoop,
		})
		return "", noop, apperrors.Conflict(
			fmt.Sprintf("target %q was enqueued within the last %s", req.Target, s.config.DedupTTL))
	}

	release := func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, delErr := s.cache.Delete(cleanupCtx, key); delErr != nil {
			s.logger.WarnContext(ctx, "failed to release dedup marker", "key", key, "error", delErr)
		}
	}
	return key, release, nil
}

func dedupKey(req *model.EnqueueRequest) string {
	owner := ""
	if req.OwnerID != nil {
		owner = *req.OwnerID
	}
	return "scanq:dedup:" + owner + ":" + req.Target
}

// GetByID retrieves a scan job by id.
func (s *QueueService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	if err := validateJobID(id); err != nil {
		return nil, err
	}

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFound(fmt.Sprintf("scan job %s not found", id))
		}
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// Stats returns queue depth counters for health reporting.
func (s *QueueService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return stats, nil
}

// MarkDone records a successful scan result. Returns false when the job no
// longer held the run slot, which happens when the reaper got there first.
func (s *QueueService) MarkDone(ctx context.Context, id string, output json.RawMessage) (bool, error) {
	if err := validateJobID(id); err != nil {
		return false, err
	}

	updated, err := s.repo.MarkDone(ctx, id, output)
	if err != nil {
		metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
			Transition: "done",
			Result:     metrics.ResultError,
			Err:        err,
		})
		return false, apperrors.MapDBError(err)
	}

	result := metrics.ResultSuccess
	if !updated {
		result = metrics.ResultNoop
	}
	metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{Transition: "done", Result: result})
	return updated, nil
}

// MarkFailed records a scan failure, conditional on the job still running.
func (s *QueueService) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	if err := validateJobID(id); err != nil {
		return false, err
	}

	updated, err := s.repo.MarkFailed(ctx, id, reason)
	if err != nil {
		metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{
			Transition: "failed",
			Result:     metrics.ResultError,
			Err:        err,
		})
		return false, apperrors.MapDBError(err)
	}

	result := metrics.ResultSuccess
	if !updated {
		result = metrics.ResultNoop
	}
	metrics.EmitScanLifecycle(s.metrics, metrics.ScanMetric{Transition: "failed", Result: result})
	return updated, nil
}

func validateJobID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.ValidationField("id", "job id must be a valid UUID")
	}
	return nil
}
