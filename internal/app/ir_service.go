package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/ir"
)

// irTypes maps supported IR major versions to their artifact types.
var irTypes = map[int]domain.ArtifactType{
	1: domain.ArtifactTypeIRv1,
	2: domain.ArtifactTypeIRv2,
}

// IRService stores and loads IR documents as artifacts.
type IRService struct {
	Artifacts *ArtifactService
}

func NewIRService(artifacts *ArtifactService) *IRService {
	return &IRService{Artifacts: artifacts}
}

// Validate parses data as IR of any supported version.
func (s *IRService) Validate(data []byte) (*ir.Document, error) {
	doc, err := ir.ParseAndValidate(data, 0)
	if err != nil {
		return nil, err
	}
	if _, ok := irTypes[doc.Major()]; !ok {
		return nil, domain.NewValidationError("unsupported IR version %s", doc.Version)
	}
	return doc, nil
}

// StoreForJob validates data and stores it as the IR artifact matching its
// version. parentID may be empty.
func (s *IRService) StoreForJob(ctx context.Context, jobID string, data []byte, parentID string) (*domain.Artifact, *ir.Document, error) {
	doc, err := s.Validate(data)
	if err != nil {
		return nil, nil, err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode IR: %w", err)
	}
	a, err := s.Artifacts.Store(ctx, StoreRequest{
		JobID:                 jobID,
		Type:                  irTypes[doc.Major()],
		Data:                  body,
		SchemaVersion:         doc.Version,
		ParentID:              parentID,
		TransformationType:    constants.TransformUpload,
		TransformationVersion: constants.TransformVersion,
		Metadata:              domain.ArtifactMetadata{NoteCount: len(doc.Notes)},
	})
	if err != nil {
		return nil, nil, err
	}
	return a, doc, nil
}

// Load reads an IR artifact, verifying its checksum and its schema.
func (s *IRService) Load(ctx context.Context, artifactID string) (*domain.Artifact, *ir.Document, error) {
	a, data, err := s.Artifacts.Get(ctx, artifactID)
	if err != nil {
		return nil, nil, err
	}
	want := 0
	for major, t := range irTypes {
		if t == a.Type {
			want = major
		}
	}
	if want == 0 {
		return nil, nil, domain.NewValidationError("artifact %s is %s, not IR", artifactID, a.Type)
	}
	doc, err := ir.ParseAndValidate(data, want)
	if err != nil {
		return nil, nil, err
	}
	return a, doc, nil
}

// LatestForJob loads the newest IR of type t for a job.
func (s *IRService) LatestForJob(ctx context.Context, jobID string, t domain.ArtifactType) (*domain.Artifact, *ir.Document, error) {
	a, err := s.Artifacts.GetLatestByJobAndType(ctx, jobID, t)
	if err != nil {
		return nil, nil, err
	}
	return s.Load(ctx, a.ID)
}
