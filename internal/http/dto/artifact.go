package dto

import (
	"time"

	"github.com/cesargomez89/etude/internal/app"
	"github.com/cesargomez89/etude/internal/domain"
)

type ArtifactResponse struct {
	ID               string                  `json:"id"`
	JobID            string                  `json:"job_id"`
	ArtifactType     string                  `json:"artifact_type"`
	SchemaVersion    string                  `json:"schema_version"`
	FileSize         int64                   `json:"file_size"`
	Checksum         string                  `json:"checksum"`
	ParentArtifactID string                  `json:"parent_artifact_id,omitempty"`
	RelabeledFrom    string                  `json:"relabeled_from,omitempty"`
	Ordinal          int                     `json:"ordinal"`
	Metadata         domain.ArtifactMetadata `json:"metadata"`
	CreatedAt        string                  `json:"created_at"`
}

func NewArtifactResponse(a *domain.Artifact) ArtifactResponse {
	resp := ArtifactResponse{
		ID:            a.ID,
		JobID:         a.JobID,
		ArtifactType:  string(a.Type),
		SchemaVersion: a.SchemaVersion,
		FileSize:      a.FileSize,
		Checksum:      a.Checksum,
		Ordinal:       a.Ordinal,
		Metadata:      a.Metadata,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
	}
	if a.ParentID != nil {
		resp.ParentArtifactID = *a.ParentID
	}
	if a.RelabeledFrom != nil {
		resp.RelabeledFrom = *a.RelabeledFrom
	}
	return resp
}

func NewArtifactList(arts []*domain.Artifact) []ArtifactResponse {
	out := make([]ArtifactResponse, 0, len(arts))
	for _, a := range arts {
		out = append(out, NewArtifactResponse(a))
	}
	return out
}

type LineageEdgeResponse struct {
	SourceArtifactID      string `json:"source_artifact_id"`
	DerivedArtifactID     string `json:"derived_artifact_id"`
	TransformationType    string `json:"transformation_type"`
	TransformationVersion string `json:"transformation_version"`
}

type LineageResponse struct {
	Artifact    ArtifactResponse      `json:"artifact"`
	Ancestors   []ArtifactResponse    `json:"ancestors"`
	Descendants []ArtifactResponse    `json:"descendants"`
	Edges       []LineageEdgeResponse `json:"edges"`
}

func NewLineageResponse(l *app.ArtifactLineage) LineageResponse {
	resp := LineageResponse{
		Artifact:    NewArtifactResponse(l.Artifact),
		Ancestors:   NewArtifactList(l.Ancestors),
		Descendants: NewArtifactList(l.Descendants),
		Edges:       make([]LineageEdgeResponse, 0, len(l.Edges)),
	}
	for _, e := range l.Edges {
		resp.Edges = append(resp.Edges, LineageEdgeResponse{
			SourceArtifactID:      e.SourceArtifactID,
			DerivedArtifactID:     e.DerivedArtifactID,
			TransformationType:    e.TransformationType,
			TransformationVersion: e.TransformationVersion,
		})
	}
	return resp
}

type RelabelRequest struct {
	ArtifactType string `json:"artifact_type"`
}

func (r *RelabelRequest) Validate() []ValidationError {
	if r.ArtifactType == "" {
		return []ValidationError{{Field: "artifact_type", Message: "is required"}}
	}
	if _, err := domain.ParseArtifactType(r.ArtifactType); err != nil {
		return []ValidationError{{Field: "artifact_type", Message: "unknown artifact type"}}
	}
	return nil
}
