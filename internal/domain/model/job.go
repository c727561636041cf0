// Package model defines the core data types used by the threatwire scan job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// JobStatus represents the current lifecycle state of a scan job.
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting for the run slot.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a job currently holds the run slot.
	JobStatusRunning JobStatus = "running"
	// JobStatusDone indicates a job finished successfully.
	JobStatusDone JobStatus = "done"
	// JobStatusFailed indicates a job failed or its lease was reclaimed.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusRunning || s == JobStatusDone || s == JobStatusFailed
}

// Terminal returns true once a job can no longer transition.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// ErrNoJobsQueued is returned when no queued jobs are due for execution.
var ErrNoJobsQueued = errors.New("no queued jobs available")

// Job represents a browser-automation scan job persisted in scan_jobs.
//
// The lease invariant lives here: at most one Job has Status == running
// across every process that shares the table.
type Job struct {
	ID           string          `json:"id"                      db:"id"`
	Status       JobStatus       `json:"status"                  db:"status"`
	Target       string          `json:"target"                  db:"target"`
	Payload      json.RawMessage `json:"payload"                 db:"payload"`
	Output       json.RawMessage `json:"output,omitempty"        db:"output"`
	OwnerID      *string         `json:"owner_id,omitempty"      db:"owner_id"`
	SourceTag    *string         `json:"source_tag,omitempty"    db:"source_tag"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty" db:"scheduled_for"`
	CreatedAt    time.Time       `json:"created_at"              db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"              db:"updated_at"`
}

// EnqueueRequest represents a request to create a new scan job.
type EnqueueRequest struct {
	Target       string          `json:"target"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	OwnerID      *string         `json:"owner_id,omitempty"`
	SourceTag    *string         `json:"source_tag,omitempty"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
}

// Validate validates the EnqueueRequest fields.
func (r *EnqueueRequest) Validate() error {
	target := strings.TrimSpace(r.Target)
	if target == "" {
		return errors.New("target is required")
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target must be an absolute URL: %q", r.Target)
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return errors.New("payload must be valid JSON")
	}
	if r.OwnerID != nil && strings.TrimSpace(*r.OwnerID) == "" {
		return errors.New("owner_id must not be blank when set")
	}
	return nil
}

// JobStats represents counts of jobs in each lifecycle state.
type JobStats struct {
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Done    int `json:"done"`
	Failed  int `json:"failed"`
}
