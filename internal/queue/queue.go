// Package queue carries stage tasks between the API, the stage handlers and
// the workers. A task names only a job; handlers read everything else from
// the store.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cesargomez89/etude/internal/domain"
)

var ErrClosed = errors.New("queue closed")

type Task struct {
	EnqueuedAt time.Time    `json:"enqueued_at"`
	ID         string       `json:"id"`
	JobID      string       `json:"job_id"`
	Stage      domain.Stage `json:"stage"`
}

func NewTask(stage domain.Stage, jobID string) Task {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Task{
		ID:         id.String(),
		JobID:      jobID,
		Stage:      stage,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Delivery is a dequeued task that stays reserved until acked.
type Delivery struct {
	Task
	raw string
}

// TaskQueue is one named queue per stage.
type TaskQueue interface {
	Enqueue(ctx context.Context, stage domain.Stage, task Task) error
	// Dequeue waits up to wait for a task. It returns nil, nil when none arrived.
	Dequeue(ctx context.Context, stage domain.Stage, wait time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Ping(ctx context.Context) error
	Close() error
}

// Submit enqueues a fresh task for jobID on stage.
func Submit(ctx context.Context, q TaskQueue, stage domain.Stage, jobID string) error {
	return q.Enqueue(ctx, stage, NewTask(stage, jobID))
}
