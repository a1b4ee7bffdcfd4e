package httpapp

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/etude/internal/app"
	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/http/dto"
)

func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeValidation(w, []dto.ValidationError{{Field: "file", Message: "multipart upload required"}})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidation(w, []dto.ValidationError{{Field: "file", Message: "is required"}})
		return
	}
	defer func() { _ = file.Close() }()

	pdf, err := io.ReadAll(file)
	if err != nil {
		writeValidation(w, []dto.ValidationError{{Field: "file", Message: "could not be read"}})
		return
	}

	job, err := h.JobService.SubmitJob(r.Context(), ownerFrom(r), pdf, header.Filename)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.NewJobResponse(job))
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := jobListQuery(r)
	params, errs := query.Validate()
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	jobs, total, err := h.JobService.ListJobs(r.Context(), ownerFrom(r), app.ListOptions{
		Status: params.Status,
		Stage:  params.Stage,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewJobListResponse(jobs, dto.NewPagination(params.Limit, params.Offset, total)))
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.JobService.GetJobForOwner(r.Context(), chi.URLParam(r, "id"), ownerFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewJobResponse(job))
}

func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.JobService.GetJobForOwner(r.Context(), id, ownerFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.JobService.DeleteJob(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListJobArtifacts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.JobService.GetJobForOwner(r.Context(), id, ownerFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}

	var filter *domain.ArtifactType
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, err := domain.ParseArtifactType(raw)
		if err != nil {
			writeValidation(w, []dto.ValidationError{{Field: "type", Message: "unknown artifact type"}})
			return
		}
		filter = &t
	}

	arts, err := h.ArtifactService.ListByJob(r.Context(), id, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewArtifactList(arts))
}

// authorizeArtifact loads an artifact and checks the caller owns its job.
func (h *Handler) authorizeArtifact(r *http.Request) (*domain.Artifact, error) {
	a, err := h.ArtifactService.GetMetadata(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if _, err := h.JobService.GetJobForOwner(r.Context(), a.JobID, ownerFrom(r)); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, domain.ErrArtifactNotFound
		}
		return nil, err
	}
	return a, nil
}
