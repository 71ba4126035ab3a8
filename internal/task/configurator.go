package task

import (
	"context"
	"fmt"

	"github.com/tpodg/serverkit/internal/server"
)

// OperationConfigurator implements server.Configurator for one planned operation.
type OperationConfigurator struct {
	operation string
	tasks     []Task
	runner    *Runner
}

// NewOperationConfigurator creates a configurator that runs the planned tasks of operation.
func NewOperationConfigurator(runner *Runner, operation string, tasks ...Task) *OperationConfigurator {
	return &OperationConfigurator{
		operation: operation,
		tasks:     tasks,
		runner:    runner,
	}
}

// Configure applies the operation's tasks to the server using the runner.
func (oc *OperationConfigurator) Configure(ctx context.Context, s server.Server) error {
	log := oc.runner.logger.With("operation", oc.operation, "server", s.ID())
	log.Info("Starting operation", "steps", len(oc.tasks))
	if err := oc.runner.Run(ctx, s, oc.tasks...); err != nil {
		return fmt.Errorf("operation %s: %w", oc.operation, err)
	}
	log.Info("Operation completed")
	return nil
}
