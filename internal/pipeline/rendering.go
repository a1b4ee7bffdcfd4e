package pipeline

import (
	"context"
	"encoding/json"

	"github.com/cesargomez89/etude/internal/app"
	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/ir"
	"github.com/cesargomez89/etude/internal/logger"
	"github.com/cesargomez89/etude/internal/queue"
	"github.com/cesargomez89/etude/internal/renderer"
)

// RenderingHandler quantizes and voices the job's latest ir_v2, renders it
// and stores every output format. Outputs are stored all together or not at all.
type RenderingHandler struct {
	*Deps
	Renderer  renderer.Renderer
	Quantizer ir.Quantizer
	Voices    ir.VoiceResolver
	Formats   []string
}

func NewRenderingHandler(deps *Deps, r renderer.Renderer) *RenderingHandler {
	return &RenderingHandler{
		Deps:      deps,
		Renderer:  r,
		Quantizer: ir.NewQuantizer(constants.QuantizeTolerance, constants.QuantizeMinDuration),
		Voices:    ir.NewVoiceResolver(constants.MaxVoices),
		Formats:   renderer.DefaultFormats,
	}
}

func (h *RenderingHandler) Handle(ctx context.Context, task queue.Task, log *logger.Logger) error {
	return h.run(ctx, domain.StageRendering, task, log, func(ctx context.Context, job *domain.Job, log *logger.Logger) error {
		h.checkHealth(ctx, h.Renderer, log)

		source, data, err := h.loadInput(ctx, job.ID, domain.ArtifactTypeIRv2)
		if err != nil {
			return err
		}
		doc, err := ir.ParseAndValidate(data, 2)
		if err != nil {
			return err
		}
		ir.Resolve(doc, h.Quantizer, h.Voices)
		body, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		out, err := h.Renderer.Render(ctx, job.ID, body, h.Formats)
		if err != nil {
			return err
		}

		reqs := outputRequests(job.ID, source, out)
		arts, err := h.Artifacts.StoreBatch(ctx, reqs)
		if err != nil {
			return err
		}
		log.Info("Stored rendered outputs", "artifacts", len(arts), "svg_pages", len(out.SVG), "png_pages", len(out.PNG))

		return h.complete(ctx, job, domain.StageRendering, log)
	})
}

func outputRequests(jobID string, source *domain.Artifact, out *renderer.Output) []app.StoreRequest {
	req := func(t domain.ArtifactType, data []byte, ordinal int) app.StoreRequest {
		meta := domain.ArtifactMetadata{
			Format:          string(t),
			SourceIRVersion: source.SchemaVersion,
		}
		if t == domain.ArtifactTypeSVG || t == domain.ArtifactTypePNG {
			meta.PageNumber = ordinal + 1
		}
		return app.StoreRequest{
			JobID:                 jobID,
			Type:                  t,
			SchemaVersion:         constants.RenderSchema,
			ParentID:              source.ID,
			TransformationType:    string(t),
			TransformationVersion: constants.TransformVersion,
			Data:                  data,
			Ordinal:               ordinal,
			Metadata:              meta,
		}
	}

	var reqs []app.StoreRequest
	if len(out.MusicXML) > 0 {
		reqs = append(reqs, req(domain.ArtifactTypeMusicXML, out.MusicXML, 0))
	}
	if len(out.MIDI) > 0 {
		reqs = append(reqs, req(domain.ArtifactTypeMIDI, out.MIDI, 0))
	}
	for i, page := range out.SVG {
		reqs = append(reqs, req(domain.ArtifactTypeSVG, page, i))
	}
	for i, page := range out.PNG {
		reqs = append(reqs, req(domain.ArtifactTypePNG, page, i))
	}
	return reqs
}
