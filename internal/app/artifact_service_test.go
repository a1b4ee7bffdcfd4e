package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/storage"
)

func TestArtifactService_StoreAndGet(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job, pdf, err := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	want := "pdfs/jobs/" + job.ID + "/artifacts/" + pdf.ID + ".pdf"
	if pdf.StoragePath != want {
		t.Errorf("storage path = %s, want %s", pdf.StoragePath, want)
	}
	if pdf.Checksum != storage.Checksum(samplePDF) || pdf.FileSize != int64(len(samplePDF)) {
		t.Errorf("unexpected checksum or size: %+v", pdf)
	}

	got, data, err := env.artifacts.Get(ctx, pdf.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != string(samplePDF) || got.ID != pdf.ID {
		t.Error("round trip returned different content")
	}

	irArtifact, err := env.artifacts.Store(ctx, StoreRequest{
		JobID: job.ID, Type: domain.ArtifactTypeIRv1, Data: []byte(sampleIRv1), ParentID: pdf.ID,
	})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if !strings.HasPrefix(irArtifact.StoragePath, "derived/") || !strings.HasSuffix(irArtifact.StoragePath, ".json") {
		t.Errorf("ir artifact stored at %s", irArtifact.StoragePath)
	}
}

func TestArtifactService_DetectsCorruption(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, pdf, err := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	bucket, key, _ := storage.SplitObjectPath(pdf.StoragePath)
	if err := env.objects.Put(ctx, bucket, key, []byte("tampered"), ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	_, _, err = env.artifacts.Get(ctx, pdf.ID)
	if !errors.Is(err, domain.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	if domain.KindOf(err) != domain.KindIntegrity {
		t.Errorf("expected integrity kind, got %s", domain.KindOf(err))
	}
}

func TestArtifactService_Lineage(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job, pdf, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")
	irArtifact, err := env.artifacts.Store(ctx, StoreRequest{
		JobID: job.ID, Type: domain.ArtifactTypeIRv1, Data: []byte(sampleIRv1),
		ParentID: pdf.ID, TransformationType: "omr_to_ir", TransformationVersion: "1.0.0",
	})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	lin, err := env.artifacts.GetLineage(ctx, irArtifact.ID)
	if err != nil {
		t.Fatalf("GetLineage failed: %v", err)
	}
	if len(lin.Ancestors) != 1 || lin.Ancestors[0].ID != pdf.ID {
		t.Fatalf("expected pdf as the only ancestor, got %v", lin.Ancestors)
	}
	if len(lin.Edges) != 1 || lin.Edges[0].TransformationType != "omr_to_ir" {
		t.Errorf("unexpected edges: %+v", lin.Edges)
	}

	pdfLin, err := env.artifacts.GetLineage(ctx, pdf.ID)
	if err != nil {
		t.Fatalf("GetLineage failed: %v", err)
	}
	if len(pdfLin.Descendants) != 1 || pdfLin.Descendants[0].ID != irArtifact.ID {
		t.Errorf("expected ir as the only descendant, got %v", pdfLin.Descendants)
	}
}

func TestArtifactService_DuplicateStoreReturnsExisting(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job, pdf, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")
	req := StoreRequest{JobID: job.ID, Type: domain.ArtifactTypeIRv1, Data: []byte(sampleIRv1), ParentID: pdf.ID}

	first, err := env.artifacts.Store(ctx, req)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	second, err := env.artifacts.Store(ctx, req)
	if err != nil {
		t.Fatalf("second Store failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("duplicate store created a new artifact")
	}
	if n := env.objects.Len(testBuckets.Derived); n != 1 {
		t.Errorf("expected one derived blob, got %d", n)
	}
}

func TestArtifactService_RejectsForeignParent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	jobA, _, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "a.pdf")
	_, pdfB, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "b.pdf")

	_, err := env.artifacts.Store(ctx, StoreRequest{
		JobID: jobA.ID, Type: domain.ArtifactTypeIRv1, Data: []byte(sampleIRv1), ParentID: pdfB.ID,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestArtifactService_RemovesBlobWhenRowFails(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job, pdf, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")
	if _, err := env.db.ExecContext(ctx, `CREATE TRIGGER reject_ir BEFORE INSERT ON artifacts
		WHEN NEW.artifact_type = 'ir_v1' BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	_, err := env.artifacts.Store(ctx, StoreRequest{
		JobID: job.ID, Type: domain.ArtifactTypeIRv1, Data: []byte(sampleIRv1), ParentID: pdf.ID,
	})
	if err == nil {
		t.Fatal("expected insert failure")
	}
	if n := env.objects.Len(testBuckets.Derived); n != 0 {
		t.Errorf("expected blob to be rolled back, %d remain", n)
	}
}

func TestArtifactService_StoreForMissingJob(t *testing.T) {
	env := setupTestEnv(t)

	_, err := env.artifacts.Store(context.Background(), StoreRequest{
		JobID: "no-such-job", Type: domain.ArtifactTypeIRv1, Data: []byte(sampleIRv1),
	})
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if n := env.objects.Len(testBuckets.Derived); n != 0 {
		t.Errorf("no blob should be written, %d found", n)
	}
}

func TestArtifactService_StoreBatchIsAllOrNothing(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job, pdf, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")
	_, err := env.artifacts.StoreBatch(ctx, []StoreRequest{
		{JobID: job.ID, Type: domain.ArtifactTypeMusicXML, Data: []byte("<score/>"), ParentID: pdf.ID},
		{JobID: job.ID, Type: domain.ArtifactTypeMIDI, Data: nil, ParentID: pdf.ID},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	all, err := env.artifacts.ListByJob(ctx, job.ID, nil)
	if err != nil {
		t.Fatalf("ListByJob failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected only the pdf to remain, got %d artifacts", len(all))
	}
	if n := env.objects.Len(testBuckets.Derived); n != 0 {
		t.Errorf("expected no derived blobs, got %d", n)
	}

	stored, err := env.artifacts.StoreBatch(ctx, []StoreRequest{
		{JobID: job.ID, Type: domain.ArtifactTypeSVG, Data: []byte("<svg/>"), ParentID: pdf.ID, Ordinal: 0},
		{JobID: job.ID, Type: domain.ArtifactTypeSVG, Data: []byte("<svg/>"), ParentID: pdf.ID, Ordinal: 1},
	})
	if err != nil {
		t.Fatalf("StoreBatch failed: %v", err)
	}
	if len(stored) != 2 || stored[0].ID == stored[1].ID {
		t.Errorf("expected two distinct pages, got %v", stored)
	}
}

func TestArtifactService_GetLatestByJobAndType(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job, _, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")
	if _, err := env.artifacts.GetLatestByJobAndType(ctx, job.ID, domain.ArtifactTypeIRv1); !errors.Is(err, domain.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}

	var last *domain.Artifact
	for i := 0; i < 3; i++ {
		a, err := env.artifacts.Store(ctx, StoreRequest{JobID: job.ID, Type: domain.ArtifactTypeIRv1, Data: []byte(sampleIRv1)})
		if err != nil {
			t.Fatalf("Store failed: %v", err)
		}
		last = a
	}
	got, err := env.artifacts.GetLatestByJobAndType(ctx, job.ID, domain.ArtifactTypeIRv1)
	if err != nil {
		t.Fatalf("GetLatestByJobAndType failed: %v", err)
	}
	if got.ID != last.ID {
		t.Errorf("latest = %s, want %s", got.ID, last.ID)
	}
}

func TestArtifactService_Relabel(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job, pdf, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")
	a, _ := env.artifacts.Store(ctx, StoreRequest{JobID: job.ID, Type: domain.ArtifactTypeIRv1, Data: []byte(sampleIRv2)})

	relabeled, err := env.artifacts.Relabel(ctx, a.ID, domain.ArtifactTypeIRv2)
	if err != nil {
		t.Fatalf("Relabel failed: %v", err)
	}
	if relabeled.Type != domain.ArtifactTypeIRv2 || relabeled.RelabeledFrom == nil || *relabeled.RelabeledFrom != "ir_v1" {
		t.Errorf("unexpected relabel result: %+v", relabeled)
	}

	if _, err := env.artifacts.Relabel(ctx, a.ID, domain.ArtifactTypeIRv1); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("second relabel: expected validation error, got %v", err)
	}
	if _, err := env.artifacts.Relabel(ctx, pdf.ID, domain.ArtifactTypeIRv1); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("pdf relabel: expected validation error, got %v", err)
	}

	xml, _ := env.artifacts.Store(ctx, StoreRequest{JobID: job.ID, Type: domain.ArtifactTypeMusicXML, Data: []byte("<x/>")})
	if _, err := env.artifacts.Relabel(ctx, xml.ID, domain.ArtifactTypeSVG); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("cross-extension relabel: expected validation error, got %v", err)
	}
}
