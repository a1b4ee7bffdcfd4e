package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cesargomez89/etude/internal/domain"
)

const memoryQueueSize = 1024

// MemoryQueue keeps tasks in process. Used for single-binary deployments and tests.
type MemoryQueue struct {
	queues map[domain.Stage]chan Task
	done   chan struct{}
	once   sync.Once
}

func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{
		queues: make(map[domain.Stage]chan Task),
		done:   make(chan struct{}),
	}
	for _, s := range domain.Stages() {
		q.queues[s] = make(chan Task, memoryQueueSize)
	}
	return q
}

func (q *MemoryQueue) channel(stage domain.Stage) (chan Task, error) {
	ch, ok := q.queues[stage]
	if !ok {
		return nil, fmt.Errorf("unknown queue %q", stage)
	}
	return ch, nil
}

func (q *MemoryQueue) Enqueue(ctx context.Context, stage domain.Stage, task Task) error {
	ch, err := q.channel(stage)
	if err != nil {
		return err
	}
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case ch <- task:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, stage domain.Stage, wait time.Duration) (*Delivery, error) {
	ch, err := q.channel(stage)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case task := <-ch:
		return &Delivery{Task: task}, nil
	case <-timer.C:
		return nil, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(context.Context, *Delivery) error {
	return nil
}

func (q *MemoryQueue) Ping(context.Context) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
		return nil
	}
}

// Len returns the number of tasks waiting on stage.
func (q *MemoryQueue) Len(stage domain.Stage) int {
	return len(q.queues[stage])
}

func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
