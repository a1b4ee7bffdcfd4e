package dto

import "github.com/cesargomez89/etude/internal/ir"

// IRValidateResponse reports the outcome of validating a document. Invalid
// input is a normal response, not an error status.
type IRValidateResponse struct {
	Valid     bool   `json:"valid"`
	Version   string `json:"version,omitempty"`
	NoteCount int    `json:"note_count,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message"`
}

func NewIRValidateResponse(doc *ir.Document, err error) IRValidateResponse {
	if err != nil {
		return IRValidateResponse{Error: err.Error(), Message: "IR data validation failed"}
	}
	return IRValidateResponse{
		Valid:     true,
		Version:   doc.Version,
		NoteCount: len(doc.Notes),
		Message:   "IR data is valid",
	}
}

type IRStoredResponse struct {
	ArtifactID   string `json:"artifact_id"`
	ArtifactType string `json:"artifact_type"`
	Version      string `json:"version"`
	NoteCount    int    `json:"note_count"`
	Message      string `json:"message"`
}
