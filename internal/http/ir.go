package httpapp

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/http/dto"
)

// ValidateIR always answers 200; the body says whether the document is valid.
func (h *Handler) ValidateIR(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeJSON(w, http.StatusOK, dto.NewIRValidateResponse(nil, err))
		return
	}
	doc, err := h.IRService.Validate(body)
	writeJSON(w, http.StatusOK, dto.NewIRValidateResponse(doc, err))
}

func (h *Handler) GetIR(w http.ResponseWriter, r *http.Request) {
	a, err := h.authorizeArtifact(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_, doc, err := h.IRService.Load(r.Context(), a.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) GetLatestIR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, errs := dto.ParseIRVersion(r.URL.Query().Get("version"))
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}
	if _, err := h.JobService.GetJobForOwner(r.Context(), id, ownerFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	_, doc, err := h.IRService.LatestForJob(r.Context(), id, t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// StoreIR stores a caller-supplied document as the IR artifact matching its
// version. Invalid documents answer 422.
func (h *Handler) StoreIR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.JobService.GetJobForOwner(r.Context(), id, ownerFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	a, doc, err := h.IRService.StoreForJob(r.Context(), id, body, r.URL.Query().Get("parent_artifact_id"))
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid IR data: " + err.Error()})
			return
		}
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.IRStoredResponse{
		ArtifactID:   a.ID,
		ArtifactType: string(a.Type),
		Version:      doc.Version,
		NoteCount:    len(doc.Notes),
		Message:      "IR stored successfully",
	})
}
