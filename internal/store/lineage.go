package store

import (
	"context"
	"fmt"

	"github.com/cesargomez89/etude/internal/domain"
)

func (db *DB) CreateLineage(ctx context.Context, l *domain.Lineage) error {
	query := `INSERT INTO artifact_lineage
		(id, source_artifact_id, derived_artifact_id, transformation_type, transformation_version, created_at)
		VALUES (:id, :source_artifact_id, :derived_artifact_id, :transformation_type, :transformation_version, :created_at)`

	_, err := db.NamedExecContext(ctx, query, l)
	return err
}

// ListAncestors returns the artifacts id was directly derived from.
func (db *DB) ListAncestors(ctx context.Context, id string) ([]*domain.Artifact, error) {
	query := db.Rebind(`SELECT ` + artifactColumnsA + ` FROM artifacts a
		JOIN artifact_lineage l ON l.source_artifact_id = a.id
		WHERE l.derived_artifact_id = ?
		ORDER BY a.created_at ASC, a.id ASC`)

	artifacts := []*domain.Artifact{}
	if err := db.SelectContext(ctx, &artifacts, query, id); err != nil {
		return nil, fmt.Errorf("failed to list ancestors: %w", err)
	}
	return artifacts, nil
}

// ListDescendants returns the artifacts directly derived from id.
func (db *DB) ListDescendants(ctx context.Context, id string) ([]*domain.Artifact, error) {
	query := db.Rebind(`SELECT ` + artifactColumnsA + ` FROM artifacts a
		JOIN artifact_lineage l ON l.derived_artifact_id = a.id
		WHERE l.source_artifact_id = ?
		ORDER BY a.created_at ASC, a.id ASC`)

	artifacts := []*domain.Artifact{}
	if err := db.SelectContext(ctx, &artifacts, query, id); err != nil {
		return nil, fmt.Errorf("failed to list descendants: %w", err)
	}
	return artifacts, nil
}

func (db *DB) ListLineageEdges(ctx context.Context, id string) ([]*domain.Lineage, error) {
	query := db.Rebind(`SELECT id, source_artifact_id, derived_artifact_id, transformation_type, transformation_version, created_at
		FROM artifact_lineage WHERE source_artifact_id = ? OR derived_artifact_id = ?
		ORDER BY created_at ASC, id ASC`)

	edges := []*domain.Lineage{}
	if err := db.SelectContext(ctx, &edges, query, id, id); err != nil {
		return nil, fmt.Errorf("failed to list lineage: %w", err)
	}
	return edges, nil
}
