package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cesargomez89/etude/internal/app"
	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/logger"
	"github.com/cesargomez89/etude/internal/observability"
	"github.com/cesargomez89/etude/internal/queue"
)

const failureUpdateTimeout = 30 * time.Second

// Deps are the collaborators every stage handler shares.
type Deps struct {
	Jobs      *app.JobService
	Artifacts *app.ArtifactService
	Queue     queue.TaskQueue

	HealthRetries   int
	HealthRetryWait time.Duration
	StatusRetries   int
	StatusRetryWait time.Duration
}

func NewDeps(jobs *app.JobService, artifacts *app.ArtifactService, q queue.TaskQueue, healthRetries int) *Deps {
	return &Deps{
		Jobs:            jobs,
		Artifacts:       artifacts,
		Queue:           q,
		HealthRetries:   healthRetries,
		HealthRetryWait: constants.DefaultHealthRetryWait,
		StatusRetries:   constants.StatusUpdateRetries,
		StatusRetryWait: constants.StatusUpdateRetryWait,
	}
}

type healthChecker interface {
	Health(ctx context.Context, attempts int, wait time.Duration) error
}

// stageBody does a stage's work once the job is in its processing state.
type stageBody func(ctx context.Context, job *domain.Job, log *logger.Logger) error

// run drives the shared part of every stage: load the job, move it to the
// processing state, run body, and on failure record the stage's failed state.
func (d *Deps) run(ctx context.Context, stage domain.Stage, task queue.Task, log *logger.Logger, body stageBody) error {
	ctx, span := observability.Tracer().Start(ctx, "stage."+string(stage), trace.WithAttributes(
		attribute.String("job.id", task.JobID),
		attribute.String("task.id", task.ID),
	))
	defer span.End()

	log = log.WithJob(task.JobID, string(stage))
	statuses := stage.Statuses()

	job, err := d.Jobs.GetJob(ctx, task.JobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		log.Warn("Job no longer exists, skipping task")
		return nil
	}
	if err != nil {
		observability.RecordError(span, err)
		return &domain.StageError{Err: err, Stage: stage, Kind: domain.KindPersistence}
	}
	if job.Status != statuses.Processing && stage.Passed(job.Status) {
		log.Info("Stage already finished, skipping duplicate task", "status", job.Status)
		return nil
	}

	job, err = d.Jobs.UpdateStatus(ctx, job.ID, statuses.Processing, nil)
	if err != nil {
		observability.RecordError(span, err)
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Warn("Job deleted before stage started")
		} else {
			log.Error("Cannot start stage", "error", err)
		}
		return &domain.StageError{Err: err, Stage: stage, Kind: domain.KindOf(err)}
	}
	log.Info("Stage started")

	start := time.Now()
	if err := body(ctx, job, log); err != nil {
		observability.RecordError(span, err)
		kind := domain.KindOf(err)
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Warn("Job deleted while stage was running", "error", err)
			return &domain.StageError{Err: err, Stage: stage, Kind: kind}
		}
		log.Error("Stage failed", "error", err, "kind", kind, "duration", time.Since(start))
		d.markFailed(ctx, job.ID, statuses, err, log)
		return &domain.StageError{Err: err, Stage: stage, Kind: kind}
	}
	log.Info("Stage completed", "duration", time.Since(start))
	return nil
}

// complete moves the job to the stage's completed state and queues the next stage.
func (d *Deps) complete(ctx context.Context, job *domain.Job, stage domain.Stage, log *logger.Logger) error {
	if _, err := d.Jobs.UpdateStatus(ctx, job.ID, stage.Statuses().Completed, nil); err != nil {
		return err
	}
	next := stage.Next()
	if next == "" {
		return nil
	}
	if err := queue.Submit(ctx, d.Queue, next, job.ID); err != nil {
		return &enqueueError{next: next, err: err}
	}
	log.Info("Queued next stage", "next", next)
	return nil
}

// enqueueError is a failure to queue the next stage after this task already
// moved the job to the stage's completed state.
type enqueueError struct {
	next domain.Stage
	err  error
}

func (e *enqueueError) Error() string {
	return fmt.Sprintf("failed to queue %s stage: %v", e.next, e.err)
}

func (e *enqueueError) Unwrap() error {
	return e.err
}

// markFailed records the failure, retrying transient errors. When the stage's
// failed state is not reachable the job has moved on: only a job this task
// completed itself (the next stage could not be queued) is sent to the
// terminal failed state, anything else belongs to another delivery and is
// left alone. Giving up is logged at critical level since the job may be stuck.
func (d *Deps) markFailed(ctx context.Context, jobID string, statuses domain.StageStatuses, cause error, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureUpdateTimeout)
	defer cancel()

	msg := cause.Error()
	status := statuses.Failed
	var enqErr *enqueueError
	if errors.As(cause, &enqErr) {
		status = domain.JobStatusFailed
	}

	attempts := max(d.StatusRetries, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		_, err = d.Jobs.UpdateStatus(ctx, jobID, status, &msg)
		if err == nil {
			return
		}
		if errors.Is(err, domain.ErrJobNotFound) {
			log.Warn("Job deleted before its failure could be recorded")
			return
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Warn("Job moved on, not recording failure of this delivery", "status", status, "error", err)
			return
		}
		log.Warn("Failed to record stage failure", "attempt", attempt, "max_attempts", attempts, "error", err)
		if attempt < attempts {
			time.Sleep(d.StatusRetryWait)
		}
	}
	log.Critical("Job may be stuck: failure status could not be recorded", "status", status, "error", err, "cause", msg)
}

// checkHealth probes svc if it supports it. Failures are only logged; the
// real call decides whether the stage fails.
func (d *Deps) checkHealth(ctx context.Context, svc interface{}, log *logger.Logger) {
	hc, ok := svc.(healthChecker)
	if !ok || d.HealthRetries <= 0 {
		return
	}
	if err := hc.Health(ctx, d.HealthRetries, d.HealthRetryWait); err != nil {
		log.Warn("Service health check failed, proceeding anyway", "attempts", d.HealthRetries, "error", err)
	}
}

func (d *Deps) loadInput(ctx context.Context, jobID string, t domain.ArtifactType) (*domain.Artifact, []byte, error) {
	meta, err := d.Artifacts.GetLatestByJobAndType(ctx, jobID, t)
	if err != nil {
		return nil, nil, err
	}
	return d.Artifacts.Get(ctx, meta.ID)
}
