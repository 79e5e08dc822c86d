package joblock

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Lock mirrors one row of the job_locks table. The schema is part of the
// external contract: (job_name PK, locked_until, locked_by, locked_at).
type Lock struct {
	JobName     string    `json:"job_name"`
	LockedBy    string    `json:"locked_by"`
	LockedAt    time.Time `json:"locked_at"`
	LockedUntil time.Time `json:"locked_until"`
}

// Guard is the cross-process mutual-exclusion primitive for scheduled jobs.
// At most one unexpired lock exists per job name; expiry is the safety net
// against crashed holders.
type Guard interface {
	// Acquire returns true only if no unexpired lock exists for the job.
	Acquire(ctx context.Context, job, holder string, d time.Duration) (bool, error)
	// Release drops the lock if it is still held by holder.
	Release(ctx context.Context, job, holder string) error
}

// Store implements Guard on a Postgres table via a single conditional
// write, so acquisition is atomic across processes and instances.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{DB: db} }

func (s *Store) Acquire(ctx context.Context, job, holder string, d time.Duration) (bool, error) {
	const q = `
		INSERT INTO job_locks (job_name, locked_by, locked_at, locked_until)
		VALUES ($1, $2, now(), now() + $3::interval)
		ON CONFLICT (job_name) DO UPDATE SET
		  locked_by    = EXCLUDED.locked_by,
		  locked_at    = EXCLUDED.locked_at,
		  locked_until = EXCLUDED.locked_until
		WHERE job_locks.locked_until < now()
	`
	res, err := s.DB.ExecContext(ctx, q, job, holder, fmt.Sprintf("%d seconds", int(d.Seconds())))
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", job, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Release(ctx context.Context, job, holder string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM job_locks WHERE job_name = $1 AND locked_by = $2`, job, holder)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", job, err)
	}
	return nil
}

// List returns every lock row, expired or not, for the lock-table endpoint.
func (s *Store) List(ctx context.Context) ([]Lock, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT job_name, locked_by, locked_at, locked_until FROM job_locks ORDER BY job_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lock
	for rows.Next() {
		var l Lock
		if err := rows.Scan(&l.JobName, &l.LockedBy, &l.LockedAt, &l.LockedUntil); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
