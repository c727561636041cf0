package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/threatwire/threatwire/internal/data/pgxutil"
)

// Advisory lock namespace for reaper sweeps. Distinct from the lease slot so
// a sweep never blocks lease acquisition and vice versa.
const advisoryLockReaperSlot int64 = 2

const reapedOutput = `{"error": "lease expired"}`

// ReapStale fails running jobs whose lease heartbeat (updated_at) is older
// than maxAge. A job that died mid-scan frees the run slot here. Returns the
// number of jobs reclaimed; zero when another instance holds the sweep lock.
func (r *JobRepo) ReapStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	var rowsAffected int64
	err := r.exec.ExecuteQuery(ctx, func(ctx context.Context, db *sql.DB) error {
		return pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{
			Fn: func(tx *sql.Tx) error {
				var locked bool
				if lockErr := tx.QueryRowContext(ctx,
					"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
					advisoryLockLeaseMajor, advisoryLockReaperSlot,
				).Scan(&locked); lockErr != nil {
					return fmt.Errorf("acquire advisory lock: %w", lockErr)
				}
				if !locked {
					rowsAffected = 0
					return nil
				}

				currentTime := r.timeProvider.Now()
				cutoff := currentTime.Add(-maxAge)

				res, execErr := tx.ExecContext(ctx, `
          UPDATE scan_jobs
          SET status = 'failed',
              output = $1::jsonb,
              updated_at = $2
          WHERE status = 'running'
            AND updated_at < $3
        `, reapedOutput, currentTime.UTC(), cutoff.UTC())
				if execErr != nil {
					return fmt.Errorf("reap stale jobs: %w", execErr)
				}

				ra, raErr := res.RowsAffected()
				if raErr != nil {
					return fmt.Errorf("rows affected: %w", raErr)
				}
				rowsAffected = ra
				return nil
			},
		})
	})
	if err != nil {
		return 0, err
	}

	if rowsAffected > 0 {
		r.logger.WarnContext(ctx, "reclaimed stale running jobs",
			"count", rowsAffected,
			"max_age", maxAge,
		)
	}
	return rowsAffected, nil
}

// Heartbeat refreshes the lease timestamp for a running job so long scans
// survive reaper sweeps. Returns false when the job no longer holds the slot.
func (r *JobRepo) Heartbeat(ctx context.Context, id string) (bool, error) {
	var updated bool
	err := r.exec.ExecuteQuery(ctx, func(ctx context.Context, db *sql.DB) error {
		res, execErr := db.ExecContext(ctx, `
      UPDATE scan_jobs
      SET updated_at = $2
      WHERE id = $1 AND status = 'running'
    `, id, r.timeProvider.Now().UTC())
		if execErr != nil {
			return fmt.Errorf("heartbeat: %w", execErr)
		}

		ra, raErr := res.RowsAffected()
		if raErr != nil {
			return fmt.Errorf("rows affected: %w", raErr)
		}
		updated = ra > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}
