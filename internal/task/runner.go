package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tpodg/serverkit/internal/server"
)

// Runner is responsible for executing tasks on a server.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a new Runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{
		logger: logger,
	}
}

// Logger returns the runner's logger.
func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

// Run executes tasks on a server strictly in order. Each task is first asked
// whether it needs execution. The first failure aborts the remaining tasks;
// tasks that already ran are left as they are.
func (r *Runner) Run(ctx context.Context, s server.Server, tasks ...Task) error {
	total := len(tasks)
	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := t.Name()
		log := r.logger.With("task", name, "server", s.ID(), "step", fmt.Sprintf("%d/%d", i+1, total))
		log.Info("Processing task")

		needsExec, err := t.NeedsExecution(ctx, s)
		if err != nil {
			return fmt.Errorf("failed to check if task %q needs execution: %w", name, err)
		}

		if !needsExec {
			log.Info("Task is already satisfied")
			continue
		}

		log.Info("Applying task")
		if err := t.Execute(ctx, s); err != nil {
			return fmt.Errorf("failed to execute task %q: %w", name, err)
		}

		log.Info("Task applied successfully")
	}

	return nil
}
