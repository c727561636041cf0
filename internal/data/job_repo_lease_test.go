package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatwire/threatwire/internal/domain/model"
	"github.com/threatwire/threatwire/internal/testutil"
)

func enqueueTarget(t *testing.T, repo *JobRepo, target string) *model.Job {
	t.Helper()
	job, err := repo.Enqueue(context.Background(), &model.EnqueueRequest{Target: target})
	require.NoError(t, err)
	return job
}

func TestJobRepo_TryStart(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("acquires the run slot for a queued job", func(t *testing.T) {
		testutil.WithTestDB(t, func(db *sql.DB) {
			repo := newTestRepo(db)
			ctx := context.Background()
			job := enqueueTarget(t, repo, "https://a.example.com")

			started, err := repo.TryStart(ctx, job.ID)
			require.NoError(t, err)
			assert.True(t, started)

			got, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusRunning, got.Status)
			assert.True(t, got.UpdatedAt.After(job.UpdatedAt) || got.UpdatedAt.Equal(job.UpdatedAt))
		})
	})

	t.Run("refuses while another job is running", func(t *testing.T) {
		testutil.WithTestDB(t, func(db *sql.DB) {
			repo := newTestRepo(db)
			ctx := context.Background()
			a := enqueueTarget(t, repo, "https://a.example.com")
			b := enqueueTarget(t, repo, "https://b.example.com")

			started, err := repo.TryStart(ctx, a.ID)
			require.NoError(t, err)
			require.True(t, started)

			started, err = repo.TryStart(ctx, b.ID)
			require.NoError(t, err)
			assert.False(t, started, "second job must not start while the first runs")

			gotB, err := repo.GetByID(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusQueued, gotB.Status)
		})
	})

	t.Run("is idempotent for a job already running", func(t *testing.T) {
		testutil.WithTestDB(t, func(db *sql.DB) {
			repo := newTestRepo(db)
			ctx := context.Background()
			job := enqueueTarget(t, repo, "https://a.example.com")

			started, err := repo.TryStart(ctx, job.ID)
			require.NoError(t, err)
			require.True(t, started)

			started, err = repo.TryStart(ctx, job.ID)
			require.NoError(t, err)
			assert.False(t, started, "a second acquisition of the same job must report false")
		})
	})

	t.Run("slot frees after terminal transition", func(t *testing.T) {
		testutil.WithTestDB(t, func(db *sql.DB) {
			repo := newTestRepo(db)
			ctx := context.Background()
			a := enqueueTarget(t, repo, "https://a.example.com")
			b := enqueueTarget(t, repo, "https://b.example.com")

			started, err := repo.TryStart(ctx, a.ID)
			require.NoError(t, err)
			require.True(t, started)

			done, err := repo.MarkDone(ctx, a.ID, json.RawMessage(`{"findings": 3}`))
			require.NoError(t, err)
			require.True(t, done)

			started, err = repo.TryStart(ctx, b.ID)
			require.NoError(t, err)
			assert.True(t, started, "slot must be free once the previous job finished")
		})
	})

	t.Run("concurrent attempts admit exactly one", func(t *testing.T) {
		testutil.WithTestDB(t, func(db *sql.DB) {
			repo := newTestRepo(db)
			ctx := context.Background()

			const n = 8
			jobs := make([]*model.Job, n)
			for i := range jobs {
				jobs[i] = enqueueTarget(t, repo, "https://example.com/feed")
			}

			var wg sync.WaitGroup
			results := make([]bool, n)
			errs := make([]error, n)
			for i := range jobs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = repo.TryStart(ctx, jobs[i].ID)
				}(i)
			}
			wg.Wait()

			winners := 0
			for i := range results {
				require.NoError(t, errs[i])
				if results[i] {
					winners++
				}
			}
			assert.Equal(t, 1, winners, "exactly one concurrent attempt may win the slot")

			stats, err := repo.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.Running)
		})
	})
}

func TestJobRepo_MarkDone(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("records output for a running job", func(t *testing.T) {
		testutil.WithTestDB(t, func(db *sql.DB) {
			repo := newTestRepo(db)
			ctx := context.Background()
			job := enqueueTarget(t, repo, "https://a.example.com")

			started, err := repo.TryStart(ctx, job.ID)
			require.NoError(t, err)
			require.True(t, started)

			updated, err := repo.MarkDone(ctx, job.ID, json.RawMessage(`{"iocs": ["1.2.3.4"]}`))
			require.NoError(t, err)
			assert.True(t, updated)

			got, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusDone, got.Status)
			assert.JSONEq(t, `{"iocs": ["1.2.3.4"]}`, string(got.Output))
		})
	})

	t.Run("does not touch a job that lost its lease", func(t *testing.T) {
		testutil.WithTestDB(t, func(db *sql.DB) {
			repo := newTestRepo(db)
			ctx := context.Background()
			job := enqueueTarget(t, repo, "https://a.example.com")

			// Still queued; the worker never started it.
			updated, err := repo.MarkDone(ctx, job.ID, nil)
			require.NoError(t, err)
			assert.False(t, updated)

			got, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusQueued, got.Status)
		})
	})

	t.Run("rejects malformed output", func(t *testing.T) {
		testutil.WithTestDB(t, func(db *sql.DB) {
			repo := newTestRepo(db)

			_, err := repo.MarkDone(context.Background(), "ignored", json.RawMessage(`{broken`))
			require.Error(t, err)
		})
	})
}

func TestJobRepo_MarkFailed(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("records the failure reason", func(t *testing.T) {
		testutil.WithTestDB(t, func(db *sql.DB) {
			repo := newTestRepo(db)
			ctx := context.Background()
			job := enqueueTarget(t, repo, "https://a.example.com")

			started, err := repo.TryStart(ctx, job.ID)
			require.NoError(t, err)
			require.True(t, started)

			updated, err := repo.MarkFailed(ctx, job.ID, "browser crashed")
			require.NoError(t, err)
			assert.True(t, updated)

			got, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusFailed, got.Status)
			assert.JSONEq(t, `{"error": "browser crashed"}`, string(got.Output))
		})
	})

	t.Run("skips a job already reaped", func(t *testing.T) {
		testutil.WithTestDB(t, func(db *sql.DB) {
			repo := newTestRepo(db)
			ctx := context.Background()
			job := enqueueTarget(t, repo, "https://a.example.com")

			started, err := repo.TryStart(ctx, job.ID)
			require.NoError(t, err)
			require.True(t, started)

			// Simulate the reaper winning the race.
			_, err = db.ExecContext(ctx,
				`UPDATE scan_jobs SET status = 'failed' WHERE id = $1`, job.ID)
			require.NoError(t, err)

			updated, err := repo.MarkFailed(ctx, job.ID, "late failure")
			require.NoError(t, err)
			assert.False(t, updated, "terminal state must not be overwritten")
		})
	})
}
