// Package core defines the contracts between the service layer and the data
// layer. Services depend on these interfaces, never on concrete repositories.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/threatwire/threatwire/internal/domain/model"
)

// QueueRepository defines the interface for scan job queue operations.
type QueueRepository interface {
	Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	NextQueued(ctx context.Context) (*model.Job, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	MarkDone(ctx context.Context, id string, output json.RawMessage) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) (bool, error)
}

// LeaseRepository defines the interface for run slot acquisition.
type LeaseRepository interface {
	TryStart(ctx context.Context, id string) (bool, error)
	Heartbeat(ctx context.Context, id string) (bool, error)
}

// ReaperRepository defines the interface for stale lease reclamation.
type ReaperRepository interface {
	ReapStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

// CacheRepository defines the interface for the key/value dedup cache.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// ScanWorker executes a scan job against its target and returns the raw
// result document. Implementations drive the actual browser automation.
type ScanWorker interface {
	Scan(ctx context.Context, job *model.Job) (json.RawMessage, error)
}
