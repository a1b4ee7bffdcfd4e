package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/logger"
	"github.com/cesargomez89/etude/internal/storage"
	"github.com/cesargomez89/etude/internal/store"
)

// Buckets names where uploads and pipeline outputs are written.
type Buckets struct {
	PDF     string
	Derived string
}

func (b Buckets) For(t domain.ArtifactType) string {
	if t == domain.ArtifactTypePDF {
		return b.PDF
	}
	return b.Derived
}

// StoreRequest describes one artifact to persist. ParentID links the artifact
// to its source; TransformationType is recorded on the lineage edge.
type StoreRequest struct {
	Metadata              domain.ArtifactMetadata
	JobID                 string
	Type                  domain.ArtifactType
	SchemaVersion         string
	ParentID              string
	TransformationType    string
	TransformationVersion string
	Data                  []byte
	Ordinal               int
}

// ArtifactLineage is an artifact with its direct neighbours in the lineage graph.
type ArtifactLineage struct {
	Artifact    *domain.Artifact   `json:"artifact"`
	Ancestors   []*domain.Artifact `json:"ancestors"`
	Descendants []*domain.Artifact `json:"descendants"`
	Edges       []*domain.Lineage  `json:"edges"`
}

type ArtifactService struct {
	DB      *store.DB
	Objects storage.ObjectStore
	Buckets Buckets
	Logger  *logger.Logger
}

func NewArtifactService(db *store.DB, objects storage.ObjectStore, buckets Buckets, log *logger.Logger) *ArtifactService {
	return &ArtifactService{DB: db, Objects: objects, Buckets: buckets, Logger: log.WithComponent("artifacts")}
}

// Store checksums and writes the blob, then records the artifact row and its
// lineage edge. A request matching an artifact already derived from the same
// parent returns that artifact without writing anything.
func (s *ArtifactService) Store(ctx context.Context, req StoreRequest) (*domain.Artifact, error) {
	results, err := s.StoreBatch(ctx, []StoreRequest{req})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// StoreBatch stores every request in one transaction. Either all artifacts
// exist afterwards or none of the newly written blobs do. Losing an insert
// race to a concurrent writer reruns the batch once, which then picks up the
// rows the other writer committed.
func (s *ArtifactService) StoreBatch(ctx context.Context, reqs []StoreRequest) ([]*domain.Artifact, error) {
	results, err := s.storeBatch(ctx, reqs)
	if errors.Is(err, store.ErrDuplicate) {
		s.Logger.Info("Concurrent writer stored the same artifact, reusing it", "error", err)
		results, err = s.storeBatch(ctx, reqs)
	}
	return results, err
}

func (s *ArtifactService) storeBatch(ctx context.Context, reqs []StoreRequest) ([]*domain.Artifact, error) {
	var written []*domain.Artifact
	results := make([]*domain.Artifact, 0, len(reqs))

	err := s.DB.RunInTx(ctx, func(tx *store.DB) error {
		for i, req := range reqs {
			a, created, err := s.StoreTx(ctx, tx, req)
			if err != nil {
				if len(reqs) == 1 {
					return err
				}
				return fmt.Errorf("artifact %d (%s): %w", i, req.Type, err)
			}
			if created {
				written = append(written, a)
			}
			results = append(results, a)
		}
		return nil
	})
	if err != nil {
		for _, a := range written {
			s.Discard(ctx, a)
		}
		return nil, err
	}
	return results, nil
}

// StoreTx writes one artifact inside an open transaction. created is false
// when an existing artifact was returned instead. If the caller's transaction
// later fails, it must Discard every created artifact.
func (s *ArtifactService) StoreTx(ctx context.Context, tx *store.DB, req StoreRequest) (*domain.Artifact, bool, error) {
	if err := s.validate(ctx, tx, req); err != nil {
		return nil, false, err
	}

	if req.ParentID != "" {
		existing, err := tx.FindDerivedArtifact(ctx, req.JobID, req.Type, req.ParentID, req.Ordinal)
		if err != nil {
			return nil, false, fmt.Errorf("failed to check for existing artifact: %w", err)
		}
		if existing != nil {
			s.Logger.Info("Artifact already stored", "artifact_id", existing.ID, "job_id", req.JobID, "type", req.Type)
			return existing, false, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate artifact id: %w", err)
	}
	bucket := s.Buckets.For(req.Type)
	key := fmt.Sprintf("jobs/%s/artifacts/%s.%s", req.JobID, id, req.Type.Extension())

	a := &domain.Artifact{
		ID:            id.String(),
		JobID:         req.JobID,
		Type:          req.Type,
		SchemaVersion: req.SchemaVersion,
		StoragePath:   storage.ObjectPath(bucket, key),
		FileSize:      int64(len(req.Data)),
		Checksum:      storage.Checksum(req.Data),
		Metadata:      req.Metadata,
		Ordinal:       req.Ordinal,
		CreatedAt:     time.Now().UTC(),
	}
	if req.ParentID != "" {
		parent := req.ParentID
		a.ParentID = &parent
	}

	if err := s.Objects.Put(ctx, bucket, key, req.Data, req.Type.ContentType()); err != nil {
		return nil, false, fmt.Errorf("failed to write artifact blob: %w", err)
	}

	if err := s.record(ctx, tx, a, req); err != nil {
		s.Discard(ctx, a)
		return nil, false, err
	}
	return a, true, nil
}

func (s *ArtifactService) record(ctx context.Context, tx *store.DB, a *domain.Artifact, req StoreRequest) error {
	if err := tx.CreateArtifact(ctx, a); err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	if a.ParentID == nil {
		return nil
	}

	edgeID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate lineage id: %w", err)
	}
	transformation := req.TransformationType
	if transformation == "" {
		transformation = string(req.Type)
	}
	edge := &domain.Lineage{
		ID:                    edgeID.String(),
		SourceArtifactID:      *a.ParentID,
		DerivedArtifactID:     a.ID,
		TransformationType:    transformation,
		TransformationVersion: req.TransformationVersion,
		CreatedAt:             a.CreatedAt,
	}
	if err := tx.CreateLineage(ctx, edge); err != nil {
		return fmt.Errorf("failed to insert lineage: %w", err)
	}
	return nil
}

func (s *ArtifactService) validate(ctx context.Context, tx *store.DB, req StoreRequest) error {
	if req.JobID == "" {
		return domain.NewValidationError("artifact requires a job id")
	}
	if !req.Type.Valid() {
		return domain.NewValidationError("unknown artifact type %q", req.Type)
	}
	if len(req.Data) == 0 {
		return domain.NewValidationError("artifact %s has no content", req.Type)
	}
	if req.Ordinal < 0 {
		return domain.NewValidationError("artifact ordinal must not be negative")
	}
	if _, err := tx.GetJob(ctx, req.JobID); err != nil {
		return fmt.Errorf("job %s: %w", req.JobID, err)
	}
	if req.ParentID == "" {
		return nil
	}
	parent, err := tx.GetArtifact(ctx, req.ParentID)
	if errors.Is(err, domain.ErrArtifactNotFound) {
		return domain.NewValidationError("parent artifact %s does not exist", req.ParentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load parent artifact: %w", err)
	}
	if parent.JobID != req.JobID {
		return domain.NewValidationError("parent artifact %s belongs to another job", req.ParentID)
	}
	return nil
}

// Discard removes the blob of an artifact whose row was never committed.
func (s *ArtifactService) Discard(ctx context.Context, a *domain.Artifact) {
	if a == nil {
		return
	}
	if err := s.deleteBlob(ctx, a); err != nil {
		s.Logger.Warn("Failed to remove orphaned blob", "artifact_id", a.ID, "path", a.StoragePath, "error", err)
	}
}

func (s *ArtifactService) deleteBlob(ctx context.Context, a *domain.Artifact) error {
	bucket, key, err := storage.SplitObjectPath(a.StoragePath)
	if err != nil {
		return err
	}
	err = s.Objects.Delete(ctx, bucket, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil
	}
	return err
}

// Get returns the artifact and its bytes, verified against the stored checksum.
func (s *ArtifactService) Get(ctx context.Context, id string) (*domain.Artifact, []byte, error) {
	a, err := s.DB.GetArtifact(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	bucket, key, err := storage.SplitObjectPath(a.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Objects.Get(ctx, bucket, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifact %s: %w", id, err)
	}
	if sum := storage.Checksum(data); sum != a.Checksum {
		s.Logger.Error("Artifact checksum mismatch", "artifact_id", id, "expected", a.Checksum, "actual", sum)
		return nil, nil, fmt.Errorf("%w: artifact %s", domain.ErrChecksumMismatch, id)
	}
	return a, data, nil
}

func (s *ArtifactService) GetMetadata(ctx context.Context, id string) (*domain.Artifact, error) {
	return s.DB.GetArtifact(ctx, id)
}

func (s *ArtifactService) GetLineage(ctx context.Context, id string) (*ArtifactLineage, error) {
	a, err := s.DB.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	ancestors, err := s.DB.ListAncestors(ctx, id)
	if err != nil {
		return nil, err
	}
	descendants, err := s.DB.ListDescendants(ctx, id)
	if err != nil {
		return nil, err
	}
	edges, err := s.DB.ListLineageEdges(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ArtifactLineage{Artifact: a, Ancestors: ancestors, Descendants: descendants, Edges: edges}, nil
}

// GetLatestByJobAndType returns ErrArtifactNotFound when the job has no
// artifact of that type.
func (s *ArtifactService) GetLatestByJobAndType(ctx context.Context, jobID string, t domain.ArtifactType) (*domain.Artifact, error) {
	a, err := s.DB.LatestArtifact(ctx, jobID, t)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: no %s artifact for job %s", domain.ErrArtifactNotFound, t, jobID)
	}
	return a, nil
}

func (s *ArtifactService) ListByJob(ctx context.Context, jobID string, t *domain.ArtifactType) ([]*domain.Artifact, error) {
	return s.DB.ListArtifacts(ctx, jobID, t)
}

// Relabel changes the type of a derived artifact once. Both types must share
// a storage extension so the object key stays accurate.
func (s *ArtifactService) Relabel(ctx context.Context, id string, to domain.ArtifactType) (*domain.Artifact, error) {
	a, err := s.DB.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case !to.IsDerived() || !a.Type.IsDerived():
		return nil, domain.NewValidationError("only derived artifacts can be relabeled")
	case a.Type == to:
		return a, nil
	case a.RelabeledFrom != nil:
		return nil, domain.NewValidationError("artifact %s was already relabeled from %s", id, *a.RelabeledFrom)
	case a.Type.Extension() != to.Extension():
		return nil, domain.NewValidationError("cannot relabel %s as %s", a.Type, to)
	}

	ok, err := s.DB.RelabelArtifact(ctx, id, a.Type, to)
	if err != nil {
		return nil, fmt.Errorf("failed to relabel artifact: %w", err)
	}
	if !ok {
		return nil, domain.NewValidationError("artifact %s was relabeled concurrently", id)
	}
	s.Logger.Info("Artifact relabeled", "artifact_id", id, "from", a.Type, "to", to)
	return s.DB.GetArtifact(ctx, id)
}

// DeleteBlobs removes the blobs of the given artifacts, returning the first error.
func (s *ArtifactService) DeleteBlobs(ctx context.Context, artifacts []*domain.Artifact) error {
	var first error
	for _, a := range artifacts {
		if err := s.deleteBlob(ctx, a); err != nil {
			s.Logger.Warn("Failed to delete artifact blob", "artifact_id", a.ID, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
