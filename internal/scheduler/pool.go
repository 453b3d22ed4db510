package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is one isolated unit of work, typically a single account's workflow.
type Task func(ctx context.Context) error

// Pool executes tasks in sequential batches bounded by a concurrency limit.
// Each task races against a per-task timeout in its own goroutine; a batch
// advances only once every unit in it has settled.
type Pool struct {
	// Limit is the maximum number of tasks in flight at once.
	Limit int
	// Timeout bounds one task's execution; the task gets an error outcome
	// when it fires, siblings are unaffected.
	Timeout time.Duration
	// BatchDelay is the pause between consecutive batches.
	BatchDelay time.Duration

	Logger *slog.Logger
	// Sleep waits for d or until ctx is done; tests inject a fake.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run drains all tasks and returns one error slot per task, nil on success.
// Task errors never stop the batch or the pass.
func (p *Pool) Run(ctx context.Context, tasks []Task) []error {
	limit := p.Limit
	if limit < 1 {
		limit = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = waitFor
	}

	errs := make([]error, len(tasks))

	for start := 0; start < len(tasks); start += limit {
		if err := ctx.Err(); err != nil {
			for i := start; i < len(tasks); i++ {
				errs[i] = err
			}
			break
		}

		end := min(start+limit, len(tasks))
		if p.Logger != nil {
			p.Logger.Debug("starting batch", "from", start, "to", end-1, "size", end-start)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = p.runOne(ctx, tasks[i])
			}(i)
		}
		wg.Wait()

		if end < len(tasks) {
			if err := sleep(ctx, p.BatchDelay); err != nil {
				for i := end; i < len(tasks); i++ {
					errs[i] = err
				}
				break
			}
		}
	}

	return errs
}

// runOne races one task against the per-task timeout. The timeout does not
// tear the task's goroutine down, it only settles the result; the unit's
// context is cancelled so in-flight calls unwind on their own.
func (p *Pool) runOne(parent context.Context, task Task) error {
	ctx, cancel := context.WithTimeout(parent, p.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("task panicked: %v", r)
			}
		}()
		done <- task(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("task settled by timeout: %w", ctx.Err())
	}
}

func waitFor(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
