package app

import (
	"context"
	"errors"
	"testing"

	"github.com/cesargomez89/etude/internal/domain"
)

func TestIRService_StoreAndLoad(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	job, pdf, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")

	v1, doc, err := env.ir.StoreForJob(ctx, job.ID, []byte(sampleIRv1), pdf.ID)
	if err != nil {
		t.Fatalf("StoreForJob failed: %v", err)
	}
	if v1.Type != domain.ArtifactTypeIRv1 || v1.SchemaVersion != "1.0.0" || v1.Metadata.NoteCount != 1 {
		t.Errorf("unexpected artifact: %+v", v1)
	}
	if len(doc.Notes) != 1 {
		t.Errorf("expected one note")
	}

	v2, _, err := env.ir.StoreForJob(ctx, job.ID, []byte(sampleIRv2), v1.ID)
	if err != nil {
		t.Fatalf("StoreForJob(v2) failed: %v", err)
	}
	if v2.Type != domain.ArtifactTypeIRv2 {
		t.Errorf("expected ir_v2, got %s", v2.Type)
	}

	a, loaded, err := env.ir.LatestForJob(ctx, job.ID, domain.ArtifactTypeIRv2)
	if err != nil {
		t.Fatalf("LatestForJob failed: %v", err)
	}
	if a.ID != v2.ID || loaded.Version != "2.0.0" {
		t.Errorf("loaded %s version %s", a.ID, loaded.Version)
	}

	if _, _, err := env.ir.Load(ctx, pdf.ID); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("loading a pdf as IR: expected validation error, got %v", err)
	}
}

func TestIRService_ValidateRejectsUnknownVersion(t *testing.T) {
	env := setupTestEnv(t)
	if _, err := env.ir.Validate([]byte(`{"version": "3.0.0", "notes": []}`)); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := env.ir.Validate([]byte(sampleIRv2)); err != nil {
		t.Errorf("v2 rejected: %v", err)
	}
}
