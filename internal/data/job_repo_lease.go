package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/threatwire/threatwire/internal/data/pgxutil"
	apperrors "github.com/threatwire/threatwire/internal/errors"
)

// Advisory lock namespace for lease mutations. All processes sharing the
// table serialize TryStart through the same key.
const (
	advisoryLockLeaseMajor int64 = 1100
	advisoryLockLeaseSlot  int64 = 1
)

// errLeaseTaken aborts the TryStart transaction when the schema-level
// single-running index rejects the update.
var errLeaseTaken = errors.New("run slot already held")

// TryStart atomically transitions the job from queued to running, but only
// when no other job anywhere holds the run slot. It returns false without
// error when the slot is contended or the job is not in the queued state.
//
// The transaction takes an advisory lock first so concurrent attempts
// serialize instead of racing under READ COMMITTED; the partial unique index
// on status = 'running' backstops the invariant at the schema level.
func (r *JobRepo) TryStart(ctx context.Context, id string) (bool, error) {
	var started bool
	err := r.exec.ExecuteQuery(ctx, func(ctx context.Context, db *sql.DB) error {
		txErr := pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{
			Fn: func(tx *sql.Tx) error {
				var locked bool
				if lockErr := tx.QueryRowContext(ctx,
					"SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)",
					advisoryLockLeaseMajor, advisoryLockLeaseSlot,
				).Scan(&locked); lockErr != nil {
					return fmt.Errorf("acquire advisory lock: %w", lockErr)
				}
				if !locked {
					// Another process is mid-acquisition; treat as contended.
					return errLeaseTaken
				}

				res, updateErr := tx.ExecContext(ctx, `
          UPDATE scan_jobs
          SET status = 'running', updated_at = $2
          WHERE id = $1 AND status = 'queued'
            AND NOT EXISTS (SELECT 1 FROM scan_jobs WHERE status = 'running')
        `, id, r.timeProvider.Now().UTC())
				if updateErr != nil {
					if apperrors.IsUniqueViolation(updateErr) {
						return errLeaseTaken
					}
					return fmt.Errorf("acquire run slot: %w", updateErr)
				}

				ra, raErr := res.RowsAffected()
				if raErr != nil {
					return fmt.Errorf("rows affected: %w", raErr)
				}
				started = ra > 0
				return nil
			},
		})
		if errors.Is(txErr, errLeaseTaken) {
			started = false
			return nil
		}
		return txErr
	})
	if err != nil {
		return false, err
	}
	return started, nil
}

// MarkDone records a successful scan result. The update is conditional on the
// job still holding the run slot; a job already reaped or otherwise moved out
// of running is left untouched and MarkDone returns false.
func (r *JobRepo) MarkDone(ctx context.Context, id string, output json.RawMessage) (bool, error) {
	if len(output) == 0 {
		output = json.RawMessage(`{}`)
	} else if !json.Valid(output) {
		return false, errors.New("output must be valid JSON")
	}

	return r.finishJob(ctx, id, "done", []byte(output))
}

// MarkFailed records a scan failure with the given reason, conditional on the
// job still holding the run slot.
func (r *JobRepo) MarkFailed(ctx context.Context, id, reason string) (bool, error) {
	output, err := json.Marshal(map[string]string{"error": reason})
	if err != nil {
		return false, fmt.Errorf("marshal failure output: %w", err)
	}

	return r.finishJob(ctx, id, "failed", output)
}

func (r *JobRepo) finishJob(ctx context.Context, id, status string, output []byte) (bool, error) {
	var updated bool
	err := r.exec.ExecuteQuery(ctx, func(ctx context.Context, db *sql.DB) error {
		res, execErr := db.ExecContext(ctx, `
      UPDATE scan_jobs
      SET status = $2, output = $3, updated_at = $4
      WHERE id = $1 AND status = 'running'
    `, id, status, output, r.timeProvider.Now().UTC())
		if execErr != nil {
			return fmt.Errorf("finish scan job: %w", execErr)
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

	if !updated {
		r.logger.WarnContext(ctx, "terminal transition skipped; job no longer running",
			"job_id", id,
			"status", status,
		)
	}
	return updated, nil
}
