package httpapp

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/http/dto"
)

func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := h.authorizeArtifact(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewArtifactResponse(a))
}

// DownloadArtifact streams the blob after verifying its checksum.
func (h *Handler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	meta, err := h.authorizeArtifact(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	a, data, err := h.ArtifactService.Get(r.Context(), meta.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", a.Type.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, downloadName(a)))
	w.Header().Set("X-Checksum-SHA256", a.Checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func downloadName(a *domain.Artifact) string {
	if a.Type == domain.ArtifactTypePDF && a.Metadata.Filename != "" {
		return a.Metadata.Filename
	}
	if a.Type == domain.ArtifactTypeSVG || a.Type == domain.ArtifactTypePNG {
		return fmt.Sprintf("%s_page%d.%s", a.Type, a.Ordinal+1, a.Type.Extension())
	}
	return fmt.Sprintf("%s.%s", a.Type, a.Type.Extension())
}

func (h *Handler) GetArtifactLineage(w http.ResponseWriter, r *http.Request) {
	a, err := h.authorizeArtifact(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lineage, err := h.ArtifactService.GetLineage(r.Context(), a.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewLineageResponse(lineage))
}

func (h *Handler) RelabelArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := h.authorizeArtifact(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req dto.RelabelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	updated, err := h.ArtifactService.Relabel(r.Context(), a.ID, domain.ArtifactType(req.ArtifactType))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewArtifactResponse(updated))
}
