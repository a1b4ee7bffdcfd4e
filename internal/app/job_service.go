package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/logger"
	"github.com/cesargomez89/etude/internal/queue"
	"github.com/cesargomez89/etude/internal/store"
)

const updateStatusAttempts = 3

var errConcurrentUpdate = errors.New("job status changed concurrently")

type JobService struct {
	DB        *store.DB
	Artifacts *ArtifactService
	Queue     queue.TaskQueue
	Logger    *logger.Logger
}

func NewJobService(db *store.DB, artifacts *ArtifactService, q queue.TaskQueue, log *logger.Logger) *JobService {
	return &JobService{DB: db, Artifacts: artifacts, Queue: q, Logger: log.WithComponent("jobs")}
}

// ListOptions narrows ListJobs. Limit is clamped to [1, MaxListLimit].
type ListOptions struct {
	Status *domain.JobStatus
	Stage  *domain.Stage
	Limit  int
	Offset int
}

// CreateJob records a pending job and its source PDF in one transaction.
func (s *JobService) CreateJob(ctx context.Context, ownerID string, pdf []byte, filename string) (*domain.Job, *domain.Artifact, error) {
	if len(pdf) == 0 {
		return nil, nil, domain.NewValidationError("uploaded file is empty")
	}
	if !strings.HasSuffix(strings.ToLower(filename), constants.PDFExtension) {
		return nil, nil, domain.NewValidationError("file must be a PDF, got %q", filename)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate job id: %w", err)
	}
	now := time.Now().UTC()
	job := &domain.Job{
		ID:        id.String(),
		OwnerID:   ownerID,
		Status:    domain.JobStatusPending,
		Stage:     domain.StageOMR,
		Metadata:  domain.JobMetadata{Filename: filename, Transitions: []domain.Transition{}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var (
		pdfArtifact *domain.Artifact
		created     bool
	)
	err = s.DB.RunInTx(ctx, func(tx *store.DB) error {
		if err := tx.CreateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to insert job: %w", err)
		}
		var err error
		pdfArtifact, created, err = s.Artifacts.StoreTx(ctx, tx, StoreRequest{
			JobID:         job.ID,
			Type:          domain.ArtifactTypePDF,
			Data:          pdf,
			SchemaVersion: constants.PDFSchemaVersion,
			Metadata:      domain.ArtifactMetadata{Filename: filename},
		})
		return err
	})
	if err != nil {
		if created {
			s.Artifacts.Discard(ctx, pdfArtifact)
		}
		return nil, nil, err
	}

	s.Logger.Info("Job created", "job_id", job.ID, "filename", filename, "size", len(pdf))
	return job, pdfArtifact, nil
}

// SubmitJob creates a job and queues its first stage. If the task cannot be
// queued the job is marked failed so it does not sit in pending forever.
func (s *JobService) SubmitJob(ctx context.Context, ownerID string, pdf []byte, filename string) (*domain.Job, error) {
	job, _, err := s.CreateJob(ctx, ownerID, pdf, filename)
	if err != nil {
		return nil, err
	}
	if err := queue.Submit(ctx, s.Queue, domain.StageOMR, job.ID); err != nil {
		s.Logger.Error("Failed to enqueue OMR task", "job_id", job.ID, "error", err)
		msg := "failed to queue processing: " + err.Error()
		if _, uerr := s.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, &msg); uerr != nil {
			s.Logger.Error("Failed to mark job failed", "job_id", job.ID, "error", uerr)
		}
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	s.Logger.Info("Job submitted", "job_id", job.ID)
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return s.DB.GetJob(ctx, id)
}

// GetJobForOwner returns ErrForbidden when the job belongs to someone else.
func (s *JobService) GetJobForOwner(ctx context.Context, id, ownerID string) (*domain.Job, error) {
	job, err := s.DB.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return job, nil
}

func (s *JobService) ListJobs(ctx context.Context, ownerID string, opts ListOptions) ([]*domain.Job, int, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = constants.DefaultListLimit
	}
	if limit > constants.MaxListLimit {
		limit = constants.MaxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	return s.DB.ListJobs(ctx, store.JobFilter{
		OwnerID: ownerID,
		Status:  opts.Status,
		Stage:   opts.Stage,
		Limit:   limit,
		Offset:  offset,
	})
}

// UpdateStatus moves a job to next after checking the transition table.
// Moving a job to the status it already has records no transition; only a
// new error message is written. The write is a
// compare-and-set on the previous status and is retried if another writer
// got in between.
func (s *JobService) UpdateStatus(ctx context.Context, id string, next domain.JobStatus, errorMessage *string) (*domain.Job, error) {
	for attempt := 0; attempt < updateStatusAttempts; attempt++ {
		var result *domain.Job
		err := s.DB.RunInTx(ctx, func(tx *store.DB) error {
			job, err := tx.GetJob(ctx, id)
			if err != nil {
				return err
			}
			prev := job.Status
			if prev == next {
				if !replacesMessage(job, errorMessage) {
					result = job
					return nil
				}
				setErrorMessage(job, *errorMessage)
				job.UpdatedAt = time.Now().UTC()
			} else {
				if ok, reason := domain.ValidateTransition(prev, next); !ok {
					return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, reason)
				}
				applyStatus(job, next, errorMessage)
			}
			ok, err := tx.UpdateJobState(ctx, job, prev)
			if err != nil {
				return fmt.Errorf("failed to update job: %w", err)
			}
			if !ok {
				return errConcurrentUpdate
			}
			result = job
			return nil
		})
		if errors.Is(err, errConcurrentUpdate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("job %s: %w", id, errConcurrentUpdate)
}

func applyStatus(job *domain.Job, next domain.JobStatus, errorMessage *string) {
	now := time.Now().UTC()
	job.Metadata.Transitions = append(job.Metadata.Transitions, domain.Transition{
		From:      job.Status,
		To:        next,
		Timestamp: now,
	})
	job.Status = next
	if st := next.Stage(); st != "" {
		job.Stage = st
	}
	job.UpdatedAt = now
	if next.IsTerminal() {
		job.CompletedAt = &now
	}
	if errorMessage != nil {
		setErrorMessage(job, *errorMessage)
	}
}

func setErrorMessage(job *domain.Job, msg string) {
	msg = truncate(msg, constants.MaxErrorMessageLength)
	job.ErrorMessage = &msg
}

func replacesMessage(job *domain.Job, msg *string) bool {
	if msg == nil {
		return false
	}
	return job.ErrorMessage == nil || *job.ErrorMessage != truncate(*msg, constants.MaxErrorMessageLength)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// DeleteJob removes the job's blobs and then its rows. A blob that cannot be
// deleted is logged and left behind; the rows are removed regardless.
func (s *JobService) DeleteJob(ctx context.Context, id string) error {
	if _, err := s.DB.GetJob(ctx, id); err != nil {
		return err
	}
	artifacts, err := s.DB.ListArtifacts(ctx, id, nil)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}
	if err := s.Artifacts.DeleteBlobs(ctx, artifacts); err != nil {
		s.Logger.Warn("Some artifact blobs were not deleted", "job_id", id, "error", err)
	}
	if err := s.DB.DeleteJob(ctx, id); err != nil {
		return err
	}
	s.Logger.Info("Job deleted", "job_id", id, "artifacts", len(artifacts))
	return nil
}
