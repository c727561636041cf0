package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/threatwire/threatwire/internal/domain/model"
)

// RepoConfig holds configuration options for the scan job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo provides database operations for the scan job queue. Every
// statement goes through the QueryExecutor so connection failures feed the
// reconnect machinery.
type JobRepo struct {
	exec         QueryExecutor
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo backed by the given executor.
func NewJobRepo(exec QueryExecutor, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		exec:         exec,
		cfg:          cfg,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `
  id,
  status,
  target,
  payload,
  output,
  owner_id,
  source_tag,
  scheduled_for,
  created_at,
  updated_at
`

// Enqueue inserts a new queued scan job and returns the stored row.
func (r *JobRepo) Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("enqueue request is required")
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	payload := []byte(`{}`)
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	var scheduledFor any
	if req.ScheduledFor != nil {
		scheduledFor = req.ScheduledFor.UTC()
	}

	var job *model.Job
	err := r.exec.ExecuteQuery(ctx, func(ctx context.Context, db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
      INSERT INTO scan_jobs (status, target, payload, owner_id, source_tag, scheduled_for, created_at, updated_at)
      VALUES ('queued', $1, $2, $3, $4, $5, $6, $6)
      RETURNING `+jobColumns,
			req.Target, payload, req.OwnerID, req.SourceTag, scheduledFor,
			r.timeProvider.Now().UTC(),
		)

		var scanErr error
		job, scanErr = scanJobFromRow(row)
		if scanErr != nil {
			return fmt.Errorf("insert scan job: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "scan job enqueued", "job_id", job.ID, "target", job.Target)
	return job, nil
}

// GetByID retrieves a scan job by its identifier.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	var job *model.Job
	err := r.exec.ExecuteQuery(ctx, func(ctx context.Context, db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
      SELECT `+jobColumns+` FROM scan_jobs WHERE id = $1
    `, id)

		var scanErr error
		job, scanErr = scanJobFromRow(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		if scanErr != nil {
			return fmt.Errorf("get scan job: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// NextQueued returns the oldest queued job whose schedule is due, or
// model.ErrNoJobsQueued when the queue is drained.
func (r *JobRepo) NextQueued(ctx context.Context) (*model.Job, error) {
	var job *model.Job
	err := r.exec.ExecuteQuery(ctx, func(ctx context.Context, db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
      SELECT `+jobColumns+`
      FROM scan_jobs
      WHERE status = 'queued'
        AND (scheduled_for IS NULL OR scheduled_for <= $1)
      ORDER BY created_at ASC
      LIMIT 1
    `, r.timeProvider.Now().UTC())

		var scanErr error
		job, scanErr = scanJobFromRow(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return model.ErrNoJobsQueued
		}
		if scanErr != nil {
			return fmt.Errorf("next queued job: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Stats returns the count of jobs in each lifecycle state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	stats := &model.JobStats{}
	err := r.exec.ExecuteQuery(ctx, func(ctx context.Context, db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
      SELECT
        COUNT(*) FILTER (WHERE status = 'queued'),
        COUNT(*) FILTER (WHERE status = 'running'),
        COUNT(*) FILTER (WHERE status = 'done'),
        COUNT(*) FILTER (WHERE status = 'failed')
      FROM scan_jobs
    `)
		if scanErr := row.Scan(&stats.Queued, &stats.Running, &stats.Done, &stats.Failed); scanErr != nil {
			return fmt.Errorf("scan job stats: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	payload, output    []byte
	ownerID, sourceTag sql.NullString
	scheduledFor       sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.Status,
		&job.Target,
		&d.payload,
		&d.output,
		&d.ownerID,
		&d.sourceTag,
		&d.scheduledFor,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.Payload = cloneJSON(d.payload)
	if len(d.output) > 0 {
		job.Output = append(json.RawMessage(nil), d.output...)
	}
	job.OwnerID = cloneNullableString(d.ownerID)
	job.SourceTag = cloneNullableString(d.sourceTag)
	job.ScheduledFor = cloneNullableTime(d.scheduledFor)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
