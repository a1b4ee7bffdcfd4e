package dto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ToMap(errs []ValidationError) map[string]string {
	result := make(map[string]string)
	for _, e := range errs {
		result[e.Field] = e.Message
	}
	return result
}

func ToResponse(errs []ValidationError) string {
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// JobListQuery is the raw query string of GET /jobs.
type JobListQuery struct {
	Status string
	Stage  string
	Limit  string
	Offset string
}

// JobListParams is a validated JobListQuery.
type JobListParams struct {
	Status *domain.JobStatus
	Stage  *domain.Stage
	Limit  int
	Offset int
}

func (q *JobListQuery) Validate() (JobListParams, []ValidationError) {
	var errs []ValidationError
	params := JobListParams{Limit: constants.DefaultListLimit}

	if q.Status != "" {
		s, err := domain.ParseJobStatus(q.Status)
		if err != nil {
			errs = append(errs, ValidationError{Field: "status", Message: "unknown status"})
		} else {
			params.Status = &s
		}
	}
	if q.Stage != "" {
		s, err := domain.ParseStage(q.Stage)
		if err != nil {
			errs = append(errs, ValidationError{Field: "stage", Message: "unknown stage"})
		} else {
			params.Stage = &s
		}
	}
	errs = append(errs, validateRange("limit", q.Limit, 1, constants.MaxListLimit, &params.Limit)...)
	errs = append(errs, validateRange("offset", q.Offset, 0, -1, &params.Offset)...)
	return params, errs
}

// validateRange parses raw into dst when set. max < 0 means unbounded.
func validateRange(field, raw string, min, max int, dst *int) []ValidationError {
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return []ValidationError{{Field: field, Message: "must be an integer"}}
	}
	if n < min || (max >= 0 && n > max) {
		if max < 0 {
			return []ValidationError{{Field: field, Message: fmt.Sprintf("must be at least %d", min)}}
		}
		return []ValidationError{{Field: field, Message: fmt.Sprintf("must be between %d and %d", min, max)}}
	}
	*dst = n
	return nil
}

// ParseIRVersion maps the v1|v2 query value to an artifact type.
func ParseIRVersion(v string) (domain.ArtifactType, []ValidationError) {
	switch v {
	case "", "v1":
		return domain.ArtifactTypeIRv1, nil
	case "v2":
		return domain.ArtifactTypeIRv2, nil
	}
	return "", []ValidationError{{Field: "version", Message: "must be v1 or v2"}}
}
