package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/storage"
)

func TestJobService_CreateJobValidation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		data     []byte
		filename string
	}{
		{"empty", nil, "score.pdf"},
		{"not a pdf", samplePDF, "score.png"},
		{"no extension", samplePDF, "score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.jobs.CreateJob(ctx, "user-1", tt.data, tt.filename)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
	if n := env.objects.Len(testBuckets.PDF); n != 0 {
		t.Errorf("rejected uploads left %d blobs", n)
	}
}

func TestJobService_CreateJob(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job, pdf, err := env.jobs.CreateJob(ctx, "user-1", samplePDF, "Score.PDF")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.Status != domain.JobStatusPending || job.CompletedAt != nil {
		t.Errorf("unexpected new job: %+v", job)
	}
	if pdf.Type != domain.ArtifactTypePDF || pdf.JobID != job.ID || pdf.ParentID != nil {
		t.Errorf("unexpected pdf artifact: %+v", pdf)
	}

	stored, err := env.jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if stored.Metadata.Filename != "Score.PDF" || stored.OwnerID != "user-1" {
		t.Errorf("unexpected stored job: %+v", stored)
	}
}

func TestJobService_SubmitJobQueuesOMR(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job, err := env.jobs.SubmitJob(ctx, "user-1", samplePDF, "score.pdf")
	if err != nil {
		t.Fatalf("SubmitJob failed: %v", err)
	}
	if env.queue.Len(domain.StageOMR) != 1 {
		t.Fatalf("expected one omr task")
	}
	d, _ := env.queue.Dequeue(ctx, domain.StageOMR, time.Second)
	if d == nil || d.JobID != job.ID {
		t.Errorf("queued task does not reference the job")
	}
}

func TestJobService_SubmitJobMarksFailedWhenQueueDown(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_ = env.queue.Close()

	if _, err := env.jobs.SubmitJob(ctx, "user-1", samplePDF, "score.pdf"); err == nil {
		t.Fatal("expected enqueue failure")
	}
	jobs, total, err := env.jobs.ListJobs(ctx, "user-1", ListOptions{})
	if err != nil || total != 1 {
		t.Fatalf("ListJobs = %d, %v", total, err)
	}
	if jobs[0].Status != domain.JobStatusFailed || jobs[0].ErrorMessage == nil {
		t.Errorf("expected failed job with message, got %+v", jobs[0])
	}
}

func TestJobService_UpdateStatus(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	job, _, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")

	path := []domain.JobStatus{
		domain.JobStatusOMRProcessing,
		domain.JobStatusOMRCompleted,
		domain.JobStatusFingeringProcessing,
		domain.JobStatusFingeringCompleted,
		domain.JobStatusRenderingProcessing,
	}
	for _, next := range path {
		updated, err := env.jobs.UpdateStatus(ctx, job.ID, next, nil)
		if err != nil {
			t.Fatalf("UpdateStatus(%s) failed: %v", next, err)
		}
		if updated.CompletedAt != nil {
			t.Errorf("completed_at set on non-terminal %s", next)
		}
	}

	if _, err := env.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusOMRProcessing, nil); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	same, err := env.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusRenderingProcessing, nil)
	if err != nil {
		t.Fatalf("same-status update failed: %v", err)
	}
	if len(same.Metadata.Transitions) != len(path) {
		t.Errorf("same-status update appended a transition")
	}

	done, err := env.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusCompleted, nil)
	if err != nil {
		t.Fatalf("UpdateStatus(completed) failed: %v", err)
	}
	if done.CompletedAt == nil {
		t.Error("completed_at not set on terminal status")
	}

	stored, _ := env.jobs.GetJob(ctx, job.ID)
	trs := stored.Metadata.Transitions
	if len(trs) != len(path)+1 {
		t.Fatalf("expected %d transitions, got %d", len(path)+1, len(trs))
	}
	if trs[0].From != domain.JobStatusPending || trs[len(trs)-1].To != domain.JobStatusCompleted {
		t.Errorf("unexpected transition log: %+v", trs)
	}
	if stored.Stage != domain.StageRendering {
		t.Errorf("stage = %s, want rendering", stored.Stage)
	}
}

func TestJobService_UpdateStatusTruncatesError(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	job, _, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")

	long := strings.Repeat("é", 1500)
	failed, err := env.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, &long)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if n := utf8.RuneCountInString(*failed.ErrorMessage); n != 1000 {
		t.Errorf("error message has %d runes, want 1000", n)
	}
	if !utf8.ValidString(*failed.ErrorMessage) {
		t.Error("truncation split a rune")
	}
}

func TestJobService_SameStatusKeepsNewErrorMessage(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	job, _, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")

	first := "omr service unreachable"
	if _, err := env.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, &first); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	second := "omr returned 502"
	updated, err := env.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, &second)
	if err != nil {
		t.Fatalf("same-status update failed: %v", err)
	}
	if updated.ErrorMessage == nil || *updated.ErrorMessage != second {
		t.Errorf("error message = %v, want %q", updated.ErrorMessage, second)
	}

	stored, _ := env.jobs.GetJob(ctx, job.ID)
	if stored.ErrorMessage == nil || *stored.ErrorMessage != second {
		t.Errorf("stored error message = %v, want %q", stored.ErrorMessage, second)
	}
	if n := len(stored.Metadata.Transitions); n != 1 {
		t.Errorf("transitions = %d, want 1", n)
	}
}

func TestJobService_UpdateStatusMissingJob(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.jobs.UpdateStatus(context.Background(), "missing", domain.JobStatusFailed, nil)
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobService_GetJobForOwner(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	job, _, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")

	if _, err := env.jobs.GetJobForOwner(ctx, job.ID, "user-1"); err != nil {
		t.Errorf("owner lookup failed: %v", err)
	}
	if _, err := env.jobs.GetJobForOwner(ctx, job.ID, "user-2"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestJobService_ListJobs(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		job, _, err := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")
		if err != nil {
			t.Fatalf("CreateJob failed: %v", err)
		}
		ids = append(ids, job.ID)
	}
	_, _, _ = env.jobs.CreateJob(ctx, "user-2", samplePDF, "other.pdf")
	if _, err := env.jobs.UpdateStatus(ctx, ids[0], domain.JobStatusFailed, nil); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	jobs, total, err := env.jobs.ListJobs(ctx, "user-1", ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if total != 3 || len(jobs) != 2 {
		t.Fatalf("got %d of %d jobs", len(jobs), total)
	}
	if jobs[0].ID != ids[2] {
		t.Errorf("expected newest job first")
	}

	failed := domain.JobStatusFailed
	jobs, total, _ = env.jobs.ListJobs(ctx, "user-1", ListOptions{Status: &failed})
	if total != 1 || jobs[0].ID != ids[0] {
		t.Errorf("status filter returned %d jobs", total)
	}
}

func TestJobService_DeleteJobCascades(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	job, pdf, _ := env.jobs.CreateJob(ctx, "user-1", samplePDF, "score.pdf")
	irArtifact, err := env.artifacts.Store(ctx, StoreRequest{
		JobID: job.ID, Type: domain.ArtifactTypeIRv1, Data: []byte(sampleIRv1), ParentID: pdf.ID,
	})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if err := env.jobs.DeleteJob(ctx, job.ID); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	if _, err := env.jobs.GetJob(ctx, job.ID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("job still readable: %v", err)
	}
	for _, id := range []string{pdf.ID, irArtifact.ID} {
		if _, err := env.artifacts.GetMetadata(ctx, id); !errors.Is(err, domain.ErrArtifactNotFound) {
			t.Errorf("artifact %s still readable: %v", id, err)
		}
	}
	bucket, key, _ := storage.SplitObjectPath(pdf.StoragePath)
	if _, err := env.objects.Get(ctx, bucket, key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Errorf("pdf blob not deleted: %v", err)
	}
	if n := env.objects.Len(testBuckets.Derived); n != 0 {
		t.Errorf("%d derived blobs remain", n)
	}

	if err := env.jobs.DeleteJob(ctx, job.ID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Errorf("second delete: expected ErrJobNotFound, got %v", err)
	}
}
