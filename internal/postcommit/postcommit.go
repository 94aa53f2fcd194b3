// Package postcommit provides a queue of best-effort side effects that
// run only after the primary operation has succeeded.
//
// Telemetry and audit writes are decoupled from the request path: they
// are registered during an operation, drained after its transaction
// commits, and their failures are logged and swallowed rather than
// surfaced to the end user.
package postcommit

import (
	"context"

	"go.uber.org/zap"
)

// Hook is one deferred side effect.
type Hook struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue accumulates hooks for a single logical operation. Not safe for
// concurrent use; each request builds its own queue.
type Queue struct {
	hooks []Hook
}

// New returns an empty queue.
func New() *Queue { return &Queue{} }

// Add registers a hook to run after the primary work commits.
func (q *Queue) Add(name string, fn func(ctx context.Context) error) {
	q.hooks = append(q.hooks, Hook{Name: name, Run: fn})
}

// Len reports the number of pending hooks.
func (q *Queue) Len() int { return len(q.hooks) }

// Drain runs all registered hooks in order. Errors are logged and
// swallowed; a failing hook never stops the rest.
func (q *Queue) Drain(ctx context.Context, log *zap.Logger) {
	for _, h := range q.hooks {
		if err := h.Run(ctx); err != nil {
			log.Warn("post-commit hook failed",
				zap.String("hook", h.Name),
				zap.Error(err),
			)
		}
	}
	q.hooks = nil
}
