// Package worker consumes stage queues and hands each task to its handler.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/logger"
	"github.com/cesargomez89/etude/internal/queue"
)

var ErrHardTimeLimit = errors.New("task exceeded hard time limit")

// Dispatcher runs a task. pipeline.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, task queue.Task, log *logger.Logger) error
}

// recoverer is implemented by queues that keep reserved tasks across restarts.
type recoverer interface {
	Recover(ctx context.Context, stage domain.Stage) (int, error)
}

type Options struct {
	Queues          []domain.Stage
	Concurrency     int
	MaxTasksPerSlot int
	// SoftTimeLimit is the deadline handed to the task's context.
	SoftTimeLimit time.Duration
	// HardTimeLimit is when the slot stops waiting and the task is abandoned.
	HardTimeLimit time.Duration
	DequeueWait   time.Duration
}

func DefaultOptions() Options {
	return Options{
		Queues:          domain.Stages(),
		Concurrency:     constants.DefaultConcurrency,
		MaxTasksPerSlot: constants.DefaultMaxTasksPerSlot,
		SoftTimeLimit:   constants.DefaultSoftTimeLimit,
		HardTimeLimit:   constants.DefaultHardTimeLimit,
		DequeueWait:     constants.DefaultDequeueWait,
	}
}

// Worker runs Concurrency slots. Each slot takes one task at a time and is
// replaced after MaxTasksPerSlot tasks or when a task is abandoned.
type Worker struct {
	ctx    context.Context
	Queue  queue.TaskQueue
	Router Dispatcher
	Logger *logger.Logger
	cancel context.CancelFunc
	Options
	wg sync.WaitGroup
}

func NewWorker(q queue.TaskQueue, router Dispatcher, opts Options, log *logger.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.Default()
	}
	def := DefaultOptions()
	if len(opts.Queues) == 0 {
		opts.Queues = def.Queues
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = def.Concurrency
	}
	if opts.SoftTimeLimit <= 0 {
		opts.SoftTimeLimit = def.SoftTimeLimit
	}
	if opts.HardTimeLimit <= opts.SoftTimeLimit {
		opts.HardTimeLimit = opts.SoftTimeLimit + time.Minute
	}
	if opts.DequeueWait <= 0 {
		opts.DequeueWait = def.DequeueWait
	}

	return &Worker{
		Queue:   q,
		Router:  router,
		Options: opts,
		Logger:  log.WithComponent("worker"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	w.Logger.Info("Starting worker", "queues", w.Queues, "concurrency", w.Concurrency)

	w.recoverReserved()

	for i := 0; i < w.Concurrency; i++ {
		w.startSlot(i)
	}
}

func (w *Worker) Stop() {
	w.Logger.Info("Stopping worker")
	w.cancel()
	w.wg.Wait()
}

// recoverReserved requeues tasks a previous process took but never acked.
func (w *Worker) recoverReserved() {
	r, ok := w.Queue.(recoverer)
	if !ok {
		return
	}
	for _, stage := range w.Queues {
		n, err := r.Recover(w.ctx, stage)
		if err != nil {
			w.Logger.Error("Failed to recover reserved tasks", "queue", stage, "error", err)
			continue
		}
		if n > 0 {
			w.Logger.Warn("Requeued interrupted tasks", "queue", stage, "count", n)
		}
	}
}

func (w *Worker) startSlot(id int) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if w.runSlot(id) {
			w.startSlot(id)
		}
	}()
}

// runSlot consumes tasks until the worker stops or the slot must be
// replaced. It reports whether a replacement should start.
func (w *Worker) runSlot(id int) bool {
	log := w.Logger.With("slot", id)
	wait := w.DequeueWait / time.Duration(len(w.Queues))
	if wait <= 0 {
		wait = w.DequeueWait
	}

	handled := 0
	for {
		for _, stage := range w.Queues {
			if w.ctx.Err() != nil {
				return false
			}
			d, err := w.Queue.Dequeue(w.ctx, stage, wait)
			if err != nil {
				if errors.Is(err, queue.ErrClosed) || w.ctx.Err() != nil {
					return false
				}
				log.Error("Failed to dequeue", "queue", stage, "error", err)
				w.pause(wait)
				continue
			}
			if d == nil {
				continue
			}

			if err := w.process(d); errors.Is(err, ErrHardTimeLimit) {
				return w.ctx.Err() == nil
			}
			handled++
			if w.MaxTasksPerSlot > 0 && handled >= w.MaxTasksPerSlot {
				log.Debug("Recycling slot", "tasks", handled)
				return w.ctx.Err() == nil
			}
		}
	}
}

func (w *Worker) pause(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}

// process runs one delivery and acks it unless the task was abandoned at the
// hard limit, in which case it stays reserved for recovery.
func (w *Worker) process(d *queue.Delivery) error {
	log := w.Logger.WithTask(d.ID, string(d.Stage))
	ctx, cancel := context.WithTimeout(w.ctx, w.SoftTimeLimit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.dispatch(ctx, d.Task, log)
	}()

	hard := time.NewTimer(w.HardTimeLimit)
	defer hard.Stop()

	var err error
	select {
	case err = <-done:
	case <-hard.C:
		log.Critical("Abandoning task past its hard time limit", "job_id", d.JobID, "limit", w.HardTimeLimit)
		return ErrHardTimeLimit
	}

	if err != nil {
		kind := domain.KindOf(err)
		if kind.Retryable() {
			log.Error("Task failed, job can be retried", "job_id", d.JobID, "kind", kind, "error", err)
		} else {
			log.Warn("Task failed", "job_id", d.JobID, "kind", kind, "error", err)
		}
	} else {
		log.Debug("Task done", "job_id", d.JobID)
	}

	ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(w.ctx), 10*time.Second)
	defer ackCancel()
	if ackErr := w.Queue.Ack(ackCtx, d); ackErr != nil {
		log.Error("Failed to ack task", "error", ackErr)
	}
	return err
}

func (w *Worker) dispatch(ctx context.Context, task queue.Task, log *logger.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in task",
				"job_id", task.JobID,
				"panic", r,
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.Router.Dispatch(ctx, task, log)
}
