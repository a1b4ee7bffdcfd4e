package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Stage is one phase of the pipeline.
type Stage string

const (
	StageOMR       Stage = "omr"
	StageFingering Stage = "fingering"
	StageRendering Stage = "rendering"
)

var stageOrder = map[Stage]int{
	StageOMR:       1,
	StageFingering: 2,
	StageRendering: 3,
}

// Stages lists the pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{StageOMR, StageFingering, StageRendering}
}

func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown stage %q", ErrValidation, s)
	}
	return st, nil
}

func (s Stage) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *Stage) Scan(value interface{}) error {
	str, err := scanString(value)
	if err != nil {
		return err
	}
	parsed, err := ParseStage(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// JobStatus is the closed set of job states. Values outside the set are
// rejected at every decode boundary.
type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusOMRProcessing       JobStatus = "omr_processing"
	JobStatusOMRCompleted        JobStatus = "omr_completed"
	JobStatusOMRFailed           JobStatus = "omr_failed"
	JobStatusFingeringProcessing JobStatus = "fingering_processing"
	JobStatusFingeringCompleted  JobStatus = "fingering_completed"
	JobStatusFingeringFailed     JobStatus = "fingering_failed"
	JobStatusRenderingProcessing JobStatus = "rendering_processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusFailed              JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Stage reports which pipeline stage a status belongs to. Pending and the
// terminal statuses belong to none.
func (s JobStatus) Stage() Stage {
	switch s {
	case JobStatusOMRProcessing, JobStatusOMRCompleted, JobStatusOMRFailed:
		return StageOMR
	case JobStatusFingeringProcessing, JobStatusFingeringCompleted, JobStatusFingeringFailed:
		return StageFingering
	case JobStatusRenderingProcessing:
		return StageRendering
	}
	return ""
}

func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown job status %q", ErrValidation, s)
	}
	return st, nil
}

func (s JobStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: unknown job status %q", ErrValidation, string(s))
	}
	return string(s), nil
}

func (s *JobStatus) Scan(value interface{}) error {
	str, err := scanString(value)
	if err != nil {
		return err
	}
	parsed, err := ParseJobStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseJobStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Job is one user-submitted document moving through the pipeline.
type Job struct {
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage *string     `json:"error_message,omitempty" db:"error_message"`
	ID           string      `json:"id" db:"id"`
	OwnerID      string      `json:"user_id" db:"user_id"`
	Status       JobStatus   `json:"status" db:"status"`
	Stage        Stage       `json:"stage" db:"stage"`
	Metadata     JobMetadata `json:"metadata" db:"job_metadata"`
}

// ArtifactType names the kind of byte stream an artifact holds.
type ArtifactType string

const (
	ArtifactTypePDF      ArtifactType = "pdf"
	ArtifactTypeIRv1     ArtifactType = "ir_v1"
	ArtifactTypeIRv2     ArtifactType = "ir_v2"
	ArtifactTypeMusicXML ArtifactType = "musicxml"
	ArtifactTypeMIDI     ArtifactType = "midi"
	ArtifactTypeSVG      ArtifactType = "svg"
	ArtifactTypePNG      ArtifactType = "png"
)

var artifactExtensions = map[ArtifactType]string{
	ArtifactTypePDF:      "pdf",
	ArtifactTypeIRv1:     "json",
	ArtifactTypeIRv2:     "json",
	ArtifactTypeMusicXML: "musicxml",
	ArtifactTypeMIDI:     "midi",
	ArtifactTypeSVG:      "svg",
	ArtifactTypePNG:      "png",
}

var artifactContentTypes = map[ArtifactType]string{
	ArtifactTypePDF:      "application/pdf",
	ArtifactTypeIRv1:     "application/json",
	ArtifactTypeIRv2:     "application/json",
	ArtifactTypeMusicXML: "application/vnd.recordare.musicxml+xml",
	ArtifactTypeMIDI:     "audio/midi",
	ArtifactTypeSVG:      "image/svg+xml",
	ArtifactTypePNG:      "image/png",
}

func (t ArtifactType) Valid() bool {
	_, ok := artifactExtensions[t]
	return ok
}

// Extension is the object key suffix used for this type.
func (t ArtifactType) Extension() string {
	return artifactExtensions[t]
}

func (t ArtifactType) ContentType() string {
	if ct, ok := artifactContentTypes[t]; ok {
		return ct
	}
	return "application/octet-stream"
}

// IsDerived reports whether the artifact is a pipeline output rather than an upload.
func (t ArtifactType) IsDerived() bool {
	return t.Valid() && t != ArtifactTypePDF
}

func ParseArtifactType(s string) (ArtifactType, error) {
	t := ArtifactType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown artifact type %q", ErrValidation, s)
	}
	return t, nil
}

func (t ArtifactType) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown artifact type %q", ErrValidation, string(t))
	}
	return string(t), nil
}

func (t *ArtifactType) Scan(value interface{}) error {
	str, err := scanString(value)
	if err != nil {
		return err
	}
	parsed, err := ParseArtifactType(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Artifact is one stored byte stream: the uploaded PDF or a pipeline output.
type Artifact struct { //nolint:govet // field ordering follows the table
	ID            string           `json:"id" db:"id"`
	JobID         string           `json:"job_id" db:"job_id"`
	Type          ArtifactType     `json:"artifact_type" db:"artifact_type"`
	SchemaVersion string           `json:"schema_version" db:"schema_version"`
	StoragePath   string           `json:"storage_path" db:"storage_path"`
	FileSize      int64            `json:"file_size" db:"file_size"`
	Checksum      string           `json:"checksum" db:"checksum"`
	Metadata      ArtifactMetadata `json:"metadata" db:"artifact_metadata"`
	ParentID      *string          `json:"parent_artifact_id,omitempty" db:"parent_artifact_id"`
	Ordinal       int              `json:"ordinal" db:"ordinal"`
	RelabeledFrom *string          `json:"relabeled_from,omitempty" db:"relabeled_from"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// Lineage records that one artifact was derived from another.
type Lineage struct {
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
	ID                    string    `json:"id" db:"id"`
	SourceArtifactID      string    `json:"source_artifact_id" db:"source_artifact_id"`
	DerivedArtifactID     string    `json:"derived_artifact_id" db:"derived_artifact_id"`
	TransformationType    string    `json:"transformation_type" db:"transformation_type"`
	TransformationVersion string    `json:"transformation_version" db:"transformation_version"`
}

func scanString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported scan type %T", value)
	}
}
