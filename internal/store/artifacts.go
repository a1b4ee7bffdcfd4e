package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cesargomez89/etude/internal/domain"
)

const artifactColumns = `id, job_id, artifact_type, schema_version, storage_path, file_size, checksum,
	artifact_metadata, parent_artifact_id, ordinal, relabeled_from, created_at`

const artifactColumnsA = `a.id, a.job_id, a.artifact_type, a.schema_version, a.storage_path, a.file_size, a.checksum,
	a.artifact_metadata, a.parent_artifact_id, a.ordinal, a.relabeled_from, a.created_at`

func (db *DB) CreateArtifact(ctx context.Context, a *domain.Artifact) error {
	query := `INSERT INTO artifacts (` + artifactColumns + `)
		VALUES (:id, :job_id, :artifact_type, :schema_version, :storage_path, :file_size, :checksum,
			:artifact_metadata, :parent_artifact_id, :ordinal, :relabeled_from, :created_at)`

	_, err := db.NamedExecContext(ctx, query, a)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: artifact %s of job %s", ErrDuplicate, a.Type, a.JobID)
	}
	return err
}

func (db *DB) GetArtifact(ctx context.Context, id string) (*domain.Artifact, error) {
	query := db.Rebind(`SELECT ` + artifactColumns + ` FROM artifacts WHERE id = ?`)

	a := &domain.Artifact{}
	err := db.GetContext(ctx, a, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrArtifactNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindDerivedArtifact returns the artifact already produced for (job, type,
// parent, ordinal), or nil if there is none.
func (db *DB) FindDerivedArtifact(ctx context.Context, jobID string, t domain.ArtifactType, parentID string, ordinal int) (*domain.Artifact, error) {
	query := db.Rebind(`SELECT ` + artifactColumns + ` FROM artifacts
		WHERE job_id = ? AND artifact_type = ? AND parent_artifact_id = ? AND ordinal = ?`)

	a := &domain.Artifact{}
	err := db.GetContext(ctx, a, query, jobID, t, parentID, ordinal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// LatestArtifact returns the newest artifact of a type for a job, or nil.
func (db *DB) LatestArtifact(ctx context.Context, jobID string, t domain.ArtifactType) (*domain.Artifact, error) {
	query := db.Rebind(`SELECT ` + artifactColumns + ` FROM artifacts
		WHERE job_id = ? AND artifact_type = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`)

	a := &domain.Artifact{}
	err := db.GetContext(ctx, a, query, jobID, t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListArtifacts returns a job's artifacts oldest first, optionally of one type.
func (db *DB) ListArtifacts(ctx context.Context, jobID string, t *domain.ArtifactType) ([]*domain.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE job_id = ?`
	args := []interface{}{jobID}
	if t != nil {
		query += ` AND artifact_type = ?`
		args = append(args, *t)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	artifacts := []*domain.Artifact{}
	if err := db.SelectContext(ctx, &artifacts, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return artifacts, nil
}

// RelabelArtifact changes an artifact's type once. It reports false if the
// artifact was already relabeled or does not exist.
func (db *DB) RelabelArtifact(ctx context.Context, id string, from, to domain.ArtifactType) (bool, error) {
	query := db.Rebind(`UPDATE artifacts SET artifact_type = ?, relabeled_from = ?
		WHERE id = ? AND artifact_type = ? AND relabeled_from IS NULL`)

	res, err := db.ExecContext(ctx, query, to, string(from), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
