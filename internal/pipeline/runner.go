package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Runner supervises background pipeline executions. Work spawned here
// outlives the HTTP request that triggered it: each execution gets a context
// derived from the runner's own base context, not the request's, so the
// response returning cannot cancel a running task.
type Runner struct {
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

func NewRunner(log zerolog.Logger) *Runner {
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		base:   base,
		cancel: cancel,
		log:    log,
	}
}

// Spawn launches fn on its own goroutine with a panic guard. A panicking
// task must not take the process down; the task record stays in its last
// persisted state and expires with the store.
func (r *Runner) Spawn(taskID string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().Interface("panic", rec).Str("task_id", taskID).Msg("background task panicked")
			}
		}()
		fn(r.base)
	}()
}

// Shutdown waits for in-flight tasks to finish, up to the deadline of ctx,
// then cancels the rest.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	}
}
