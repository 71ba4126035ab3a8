package task

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/taskutil"
	"github.com/tpodg/serverkit/internal/testutils"
)

// Plan looks up key among ops and plans it.
func Plan(t *testing.T, ops []task.Operation, key string, explicit, ambient map[string]any, inv task.Invocation) []task.Task {
	t.Helper()

	catalog, err := task.NewCatalog(ops...)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	op, err := catalog.Lookup(key)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	tasks, err := op.Plan(explicit, ambient, inv)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	return tasks
}

// NewRunner returns a runner that discards its log output.
func NewRunner() *task.Runner {
	return task.NewRunner(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Run applies tasks to srv and fails the test on error.
func Run(t *testing.T, ctx context.Context, srv server.Server, tasks []task.Task) {
	t.Helper()

	if err := NewRunner().Run(ctx, srv, tasks...); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

// Commands renders the mutating commands received by srv.
func Commands(srv *testutils.FakeServer) []string {
	var out []string
	for _, call := range srv.Mutations() {
		out = append(out, strings.Join(call.Argv, " "))
	}
	return out
}

func RunCommand(t *testing.T, ctx context.Context, srv server.Server, command string) string {
	t.Helper()

	output, err := srv.Execute(ctx, command)
	if err != nil {
		t.Fatalf("command %q failed: %v\nOutput: %s", command, err, output)
	}
	return output
}

func AssertTasksSatisfied(t *testing.T, ctx context.Context, srv server.Server, tasks []task.Task) {
	t.Helper()

	for _, currentTask := range tasks {
		needs, err := currentTask.NeedsExecution(ctx, srv)
		if err != nil {
			t.Fatalf("NeedsExecution failed for %q: %v", currentTask.Name(), err)
		}
		if needs {
			t.Fatalf("expected task %q to be satisfied", currentTask.Name())
		}
	}
}

// CaptureWarnings redirects operator messages for the rest of the test.
func CaptureWarnings(t *testing.T) *strings.Builder {
	t.Helper()

	var buf strings.Builder
	old := taskutil.Output
	taskutil.Output = &buf
	t.Cleanup(func() { taskutil.Output = old })
	return &buf
}
