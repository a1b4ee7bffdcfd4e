package httpapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/http/dto"
)

type ownerKey struct{}

// requireOwner reads the caller's identity from the owner header. Requests
// without one are rejected before reaching a handler.
func (h *Handler) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(h.OwnerHeader))
		if owner == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: fmt.Sprintf("missing %s header", h.OwnerHeader)})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey{}, owner)))
	})
}

func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey{}).(string)
	return owner
}

// readBody reads a JSON request body, capped at the upload limit.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxUploadBytes))
	if err != nil {
		return nil, domain.NewValidationError("failed to read request body: %v", err)
	}
	if len(body) == 0 {
		return nil, domain.NewValidationError("request body is empty")
	}
	return body, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return domain.NewValidationError("invalid JSON body: %v", err)
	}
	return nil
}

func jobListQuery(r *http.Request) dto.JobListQuery {
	q := r.URL.Query()
	return dto.JobListQuery{
		Status: q.Get("status"),
		Stage:  q.Get("stage"),
		Limit:  q.Get("limit"),
		Offset: q.Get("offset"),
	}
}
