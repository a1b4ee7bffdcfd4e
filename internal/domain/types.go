package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Transition is one entry of a job's append-only status log.
type Transition struct {
	Timestamp time.Time `json:"timestamp"`
	From      JobStatus `json:"from"`
	To        JobStatus `json:"to"`
}

// JobMetadata holds the fields the orchestrator reads itself; anything a caller
// attaches travels opaquely in Extra.
type JobMetadata struct {
	Filename    string          `json:"filename,omitempty"`
	Transitions []Transition    `json:"transitions"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

func (m JobMetadata) Value() (driver.Value, error) {
	if m.Transitions == nil {
		m.Transitions = []Transition{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *JobMetadata) Scan(value interface{}) error {
	data, err := scanJSON(value)
	if err != nil || data == nil {
		*m = JobMetadata{}
		return err
	}
	return json.Unmarshal(data, m)
}

// ArtifactMetadata carries per-artifact descriptive fields.
type ArtifactMetadata struct {
	Filename        string          `json:"filename,omitempty"`
	Format          string          `json:"format,omitempty"`
	SourceIRVersion string          `json:"source_ir_version,omitempty"`
	Encoding        string          `json:"encoding,omitempty"`
	PageNumber      int             `json:"page_number,omitempty"`
	NoteCount       int             `json:"note_count,omitempty"`
	Extra           json.RawMessage `json:"extra,omitempty"`
}

func (m ArtifactMetadata) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *ArtifactMetadata) Scan(value interface{}) error {
	data, err := scanJSON(value)
	if err != nil || data == nil {
		*m = ArtifactMetadata{}
		return err
	}
	return json.Unmarshal(data, m)
}

func scanJSON(value interface{}) ([]byte, error) {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		return nil, nil
	default:
		return nil, nil
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	return data, nil
}
