// Package pipeline holds the stage handlers and the table routing queued
// tasks to them.
package pipeline

import (
	"context"
	"errors"

	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/logger"
	"github.com/cesargomez89/etude/internal/queue"
)

var ErrUnknownStage = errors.New("no handler registered for stage")

type Handler interface {
	Handle(ctx context.Context, task queue.Task, log *logger.Logger) error
}

// Router maps each queue to the handler that consumes it.
type Router struct {
	handlers map[domain.Stage]Handler
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[domain.Stage]Handler),
	}
}

func (r *Router) Register(stage domain.Stage, handler Handler) {
	r.handlers[stage] = handler
}

func (r *Router) Dispatch(ctx context.Context, task queue.Task, log *logger.Logger) error {
	handler, ok := r.handlers[task.Stage]
	if !ok {
		return ErrUnknownStage
	}
	return handler.Handle(ctx, task, log)
}

// Stages lists the stages with a registered handler, in pipeline order.
func (r *Router) Stages() []domain.Stage {
	var out []domain.Stage
	for _, s := range domain.Stages() {
		if _, ok := r.handlers[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
