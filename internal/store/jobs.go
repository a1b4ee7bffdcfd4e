package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cesargomez89/etude/internal/domain"
)

const jobColumns = `id, user_id, status, stage, error_message, job_metadata, created_at, updated_at, completed_at`

// JobFilter narrows ListJobs. Nil fields match everything.
type JobFilter struct {
	Status  *domain.JobStatus
	Stage   *domain.Stage
	OwnerID string
	Limit   int
	Offset  int
}

func (db *DB) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `INSERT INTO jobs (` + jobColumns + `)
		VALUES (:id, :user_id, :status, :stage, :error_message, :job_metadata, :created_at, :updated_at, :completed_at)`

	_, err := db.NamedExecContext(ctx, query, job)
	return err
}

func (db *DB) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	query := db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)

	job := &domain.Job{}
	err := db.GetContext(ctx, job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateJobState writes the mutable fields of job, provided its stored status
// still equals expected. It reports false when another writer got there first.
func (db *DB) UpdateJobState(ctx context.Context, job *domain.Job, expected domain.JobStatus) (bool, error) {
	meta, err := job.Metadata.Value()
	if err != nil {
		return false, err
	}
	query := db.Rebind(`UPDATE jobs
		SET status = ?, stage = ?, error_message = ?, job_metadata = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND status = ?`)

	res, err := db.ExecContext(ctx, query,
		job.Status, job.Stage, job.ErrorMessage, meta, job.UpdatedAt, job.CompletedAt,
		job.ID, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (db *DB) ListJobs(ctx context.Context, f JobFilter) ([]*domain.Job, int, error) {
	where := []string{"user_id = ?"}
	args := []interface{}{f.OwnerID}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}
	if f.Stage != nil {
		where = append(where, "stage = ?")
		args = append(args, *f.Stage)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.GetContext(ctx, &total, db.Rebind(`SELECT COUNT(*) FROM jobs WHERE `+cond), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := db.Rebind(`SELECT ` + jobColumns + ` FROM jobs WHERE ` + cond +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	args = append(args, f.Limit, f.Offset)

	jobs := []*domain.Job{}
	if err := db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, total, nil
}

// DeleteJob removes the job with its artifact and lineage rows. Foreign keys
// cascade as well; deleting explicitly keeps the result independent of
// whether the connection enforces them.
func (db *DB) DeleteJob(ctx context.Context, id string) error {
	return db.RunInTx(ctx, func(tx *DB) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM artifact_lineage
			WHERE source_artifact_id IN (SELECT id FROM artifacts WHERE job_id = ?)
			   OR derived_artifact_id IN (SELECT id FROM artifacts WHERE job_id = ?)`), id, id); err != nil {
			return fmt.Errorf("failed to delete lineage: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE artifacts SET parent_artifact_id = NULL WHERE job_id = ?`), id); err != nil {
			return fmt.Errorf("failed to detach artifacts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM artifacts WHERE job_id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete artifacts: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM jobs WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrJobNotFound
		}
		return nil
	})
}
