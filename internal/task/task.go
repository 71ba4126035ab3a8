package task

import (
	"context"

	"github.com/tpodg/serverkit/internal/server"
)

// Task represents a single step of an operation applied to a server.
type Task interface {
	// Name returns a human-readable name for the task.
	Name() string
	// NeedsExecution checks if the task needs to be executed on the server.
	// It should return true if the task should be performed, false if the state is already as desired.
	NeedsExecution(ctx context.Context, s server.Server) (bool, error)
	// Execute performs the task on the server.
	Execute(ctx context.Context, s server.Server) error
}
