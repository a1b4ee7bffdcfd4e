package dto

import (
	"time"

	"github.com/cesargomez89/etude/internal/domain"
)

type TransitionResponse struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
}

type JobResponse struct {
	ID           string               `json:"id"`
	UserID       string               `json:"user_id"`
	Status       string               `json:"status"`
	Stage        string               `json:"stage"`
	Filename     string               `json:"filename,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	CreatedAt    string               `json:"created_at"`
	UpdatedAt    string               `json:"updated_at"`
	CompletedAt  string               `json:"completed_at,omitempty"`
	Transitions  []TransitionResponse `json:"transitions"`
}

func NewJobResponse(j *domain.Job) JobResponse {
	resp := JobResponse{
		ID:          j.ID,
		UserID:      j.OwnerID,
		Status:      string(j.Status),
		Stage:       string(j.Stage),
		Filename:    j.Metadata.Filename,
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   j.UpdatedAt.Format(time.RFC3339),
		Transitions: make([]TransitionResponse, 0, len(j.Metadata.Transitions)),
	}
	if j.ErrorMessage != nil {
		resp.ErrorMessage = *j.ErrorMessage
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}
	for _, t := range j.Metadata.Transitions {
		resp.Transitions = append(resp.Transitions, TransitionResponse{
			From:      string(t.From),
			To:        string(t.To),
			Timestamp: t.Timestamp.Format(time.RFC3339Nano),
		})
	}
	return resp
}

type JobListResponse struct {
	Items []JobResponse `json:"items"`
	*Pagination
}

func NewJobListResponse(jobs []*domain.Job, p *Pagination) JobListResponse {
	items := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, NewJobResponse(j))
	}
	return JobListResponse{Items: items, Pagination: p}
}
