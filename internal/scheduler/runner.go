package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Hunga9k50doker/spheron/internal/metrics"
)

// Runner loops full passes over the account list forever: one pool run, a
// cooldown, then the next pass from the first account. It stops only when its
// context is cancelled or a task error is classified as run-fatal.
type Runner struct {
	pool     *Pool
	cooldown time.Duration
	logger   *slog.Logger
	metrics  *metrics.Collector

	// newTasks builds a fresh task list per pass so each pass gets clean
	// per-account state.
	newTasks func() []Task

	// abortOn classifies a task error as fatal to the whole run. Nil means
	// nothing is.
	abortOn func(error) bool

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner constructs a pass runner. abortOn may be nil.
func NewRunner(pool *Pool, cooldown time.Duration, newTasks func() []Task, abortOn func(error) bool, logger *slog.Logger, collector *metrics.Collector) *Runner {
	return &Runner{
		pool:     pool,
		cooldown: cooldown,
		logger:   logger,
		metrics:  collector,
		newTasks: newTasks,
		abortOn:  abortOn,
		sleep:    waitFor,
	}
}

// Start runs passes until the context is cancelled or a run-fatal task error
// surfaces, and returns the reason.
func (r *Runner) Start(ctx context.Context) error {
	for pass := 1; ; pass++ {
		passID := uuid.NewString()
		started := time.Now()
		tasks := r.newTasks()
		r.logger.Info("starting pass", "pass", pass, "pass_id", passID, "accounts", len(tasks))

		errs := r.pool.Run(ctx, tasks)

		failed := 0
		for _, err := range errs {
			if err == nil {
				r.metrics.AccountResult("ok")
				continue
			}
			failed++
			r.metrics.AccountResult("error")
			if r.abortOn != nil && r.abortOn(err) {
				r.logger.Error("run-fatal account failure, stopping", "pass_id", passID, "error", err)
				return err
			}
		}

		r.metrics.IncPass()
		r.logger.Info("pass complete",
			"pass", pass,
			"pass_id", passID,
			"accounts", len(tasks),
			"failed", failed,
			"took", time.Since(started),
			"cooldown", r.cooldown,
		)

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.sleep(ctx, r.cooldown); err != nil {
			return err
		}
	}
}
