package steps

import (
	"context"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/task"
)

// Deferred builds its task when the runner reaches it, so it can consume
// values read by earlier steps.
type Deferred struct {
	Desc  string
	Build func() (task.Task, error)

	built task.Task
}

func (d *Deferred) Name() string {
	return d.Desc
}

func (d *Deferred) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	inner, err := d.inner()
	if err != nil {
		return false, err
	}
	return inner.NeedsExecution(ctx, s)
}

func (d *Deferred) Execute(ctx context.Context, s server.Server) error {
	inner, err := d.inner()
	if err != nil {
		return err
	}
	return inner.Execute(ctx, s)
}

func (d *Deferred) inner() (task.Task, error) {
	if d.built != nil {
		return d.built, nil
	}
	built, err := d.Build()
	if err != nil {
		return nil, err
	}
	d.built = built
	return built, nil
}
