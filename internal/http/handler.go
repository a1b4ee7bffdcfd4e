// Package httpapp is the orchestrator's REST API.
package httpapp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/etude/internal/app"
	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/http/dto"
	"github.com/cesargomez89/etude/internal/logger"
)

type Handler struct {
	JobService      *app.JobService
	ArtifactService *app.ArtifactService
	IRService       *app.IRService
	Health          *HealthChecker
	Logger          *logger.Logger
	OwnerHeader     string
}

func NewHandler(js *app.JobService, as *app.ArtifactService, irs *app.IRService, health *HealthChecker, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{
		JobService:      js,
		ArtifactService: as,
		IRService:       irs,
		Health:          health,
		Logger:          log.WithComponent("http"),
		OwnerHeader:     constants.DefaultOwnerHeader,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Get("/health/detailed", h.DetailedHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.requireOwner)

		r.Post("/jobs", h.CreateJob)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{id}", h.GetJob)
		r.Delete("/jobs/{id}", h.DeleteJob)
		r.Get("/jobs/{id}/artifacts", h.ListJobArtifacts)

		r.Get("/artifacts/{id}", h.GetArtifact)
		r.Get("/artifacts/{id}/download", h.DownloadArtifact)
		r.Get("/artifacts/{id}/lineage", h.GetArtifactLineage)
		r.Post("/artifacts/{id}/relabel", h.RelabelArtifact)

		r.Post("/ir/validate", h.ValidateIR)
		r.Get("/ir/artifacts/{id}", h.GetIR)
		r.Get("/ir/jobs/{id}", h.GetLatestIR)
		r.Post("/ir/jobs/{id}", h.StoreIR)
	})
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidation(w http.ResponseWriter, errs []dto.ValidationError) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: dto.ToResponse(errs), Fields: dto.ToMap(errs)})
}

// writeError maps service errors onto status codes. Internal failures are
// logged in full and reported generically.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrArtifactNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
