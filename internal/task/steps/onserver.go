package steps

import (
	"context"
	"fmt"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/task"
)

// OnServer runs a nested task sequence against another host. The outer
// sequence keeps its own target whether the nested run succeeds or fails.
type OnServer struct {
	HostString string
	Dial       server.Dialer
	Runner     *task.Runner
	Tasks      []task.Task
}

func (o *OnServer) Name() string {
	return fmt.Sprintf("on %s: %d steps", o.HostString, len(o.Tasks))
}

func (o *OnServer) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	return len(o.Tasks) > 0, nil
}

func (o *OnServer) Execute(ctx context.Context, s server.Server) error {
	if o.Dial == nil || o.Runner == nil {
		return fmt.Errorf("switching to %s is not supported here", o.HostString)
	}
	target, err := o.Dial(o.HostString)
	if err != nil {
		return fmt.Errorf("resolve host %s: %w", o.HostString, err)
	}
	o.Runner.Logger().Info("Switching target", "from", s.ID(), "to", target.ID())
	defer o.Runner.Logger().Info("Returning to target", "server", s.ID())
	if err := o.Runner.Run(ctx, target, o.Tasks...); err != nil {
		return fmt.Errorf("on %s: %w", target.ID(), err)
	}
	return nil
}
