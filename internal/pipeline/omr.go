package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cesargomez89/etude/internal/app"
	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/ir"
	"github.com/cesargomez89/etude/internal/logger"
	"github.com/cesargomez89/etude/internal/omr"
	"github.com/cesargomez89/etude/internal/queue"
)

// OMRService recognises a score PDF.
type OMRService interface {
	Process(ctx context.Context, pdf []byte, sourceArtifactID, filename string) (*omr.Result, error)
}

// OMRHandler turns the job's PDF into an ir_v1 artifact.
type OMRHandler struct {
	*Deps
	Service OMRService
}

func NewOMRHandler(deps *Deps, svc OMRService) *OMRHandler {
	return &OMRHandler{Deps: deps, Service: svc}
}

type omrExtra struct {
	ConfidenceSummary json.RawMessage `json:"confidence_summary,omitempty"`
	PagesProcessed    int             `json:"pages_processed"`
}

func (h *OMRHandler) Handle(ctx context.Context, task queue.Task, log *logger.Logger) error {
	return h.run(ctx, domain.StageOMR, task, log, func(ctx context.Context, job *domain.Job, log *logger.Logger) error {
		h.checkHealth(ctx, h.Service, log)

		pdfMeta, pdf, err := h.loadInput(ctx, job.ID, domain.ArtifactTypePDF)
		if err != nil {
			return err
		}

		res, err := h.Service.Process(ctx, pdf, pdfMeta.ID, job.Metadata.Filename)
		if err != nil {
			return err
		}

		doc, err := ir.ParseAndValidate(res.IRData, 1)
		if err != nil {
			return fmt.Errorf("OMR output: %w", err)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		extra, err := json.Marshal(omrExtra{
			ConfidenceSummary: res.ConfidenceSummary,
			PagesProcessed:    res.ProcessingMetadata.PagesProcessed,
		})
		if err != nil {
			return err
		}

		art, err := h.Artifacts.Store(ctx, app.StoreRequest{
			JobID:                 job.ID,
			Type:                  domain.ArtifactTypeIRv1,
			SchemaVersion:         doc.Version,
			ParentID:              pdfMeta.ID,
			TransformationType:    constants.TransformOMR,
			TransformationVersion: constants.TransformVersion,
			Data:                  data,
			Metadata: domain.ArtifactMetadata{
				NoteCount: len(doc.Notes),
				Extra:     extra,
			},
		})
		if err != nil {
			return err
		}
		log.Info("Stored IR v1", "artifact_id", art.ID, "notes", len(doc.Notes), "pages", res.ProcessingMetadata.PagesProcessed)

		return h.complete(ctx, job, domain.StageOMR, log)
	})
}
