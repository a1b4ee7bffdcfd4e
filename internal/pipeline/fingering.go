package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cesargomez89/etude/internal/app"
	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/fingering"
	"github.com/cesargomez89/etude/internal/ir"
	"github.com/cesargomez89/etude/internal/logger"
	"github.com/cesargomez89/etude/internal/queue"
)

// FingeringService annotates IR v1 with fingerings.
type FingeringService interface {
	Infer(ctx context.Context, irV1 json.RawMessage) (*fingering.Result, error)
}

// FingeringHandler turns the job's latest ir_v1 into an ir_v2 artifact.
type FingeringHandler struct {
	*Deps
	Service FingeringService
}

func NewFingeringHandler(deps *Deps, svc FingeringService) *FingeringHandler {
	return &FingeringHandler{Deps: deps, Service: svc}
}

type fingeringExtra struct {
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

func (h *FingeringHandler) Handle(ctx context.Context, task queue.Task, log *logger.Logger) error {
	return h.run(ctx, domain.StageFingering, task, log, func(ctx context.Context, job *domain.Job, log *logger.Logger) error {
		h.checkHealth(ctx, h.Service, log)

		source, irV1, err := h.loadInput(ctx, job.ID, domain.ArtifactTypeIRv1)
		if err != nil {
			return err
		}

		res, err := h.Service.Infer(ctx, irV1)
		if err != nil {
			return err
		}

		doc, err := ir.ParseAndValidate(res.SymbolicIRv2, 2)
		if err != nil {
			return fmt.Errorf("fingering output: %w", err)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		extra, err := json.Marshal(fingeringExtra{ProcessingTimeSeconds: res.ProcessingTimeSeconds})
		if err != nil {
			return err
		}

		art, err := h.Artifacts.Store(ctx, app.StoreRequest{
			JobID:                 job.ID,
			Type:                  domain.ArtifactTypeIRv2,
			SchemaVersion:         doc.Version,
			ParentID:              source.ID,
			TransformationType:    constants.TransformFingering,
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
		log.Info("Stored IR v2", "artifact_id", art.ID, "notes", len(doc.Notes))

		return h.complete(ctx, job, domain.StageFingering, log)
	})
}
