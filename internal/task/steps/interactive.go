package steps

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/strutil"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

// Interactive runs a remote program on a pseudo-terminal attached to the
// local terminal.
type Interactive struct {
	Desc   string
	Argv   []string
	Stdin  io.Reader
	Stdout io.Writer
}

func (i *Interactive) Name() string {
	if i.Desc != "" {
		return i.Desc
	}
	return strutil.Command(i.Argv...)
}

func (i *Interactive) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	return true, nil
}

func (i *Interactive) Execute(ctx context.Context, s server.Server) error {
	executor, ok := s.(server.InteractiveExecutor)
	if !ok {
		return fmt.Errorf("server %s does not support interactive commands", s.ID())
	}
	prefix, err := taskutil.SudoPrefix(ctx, s)
	if err != nil {
		return err
	}
	stdin, stdout := i.Stdin, i.Stdout
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	return executor.ExecuteInteractive(ctx, prefix+strutil.Command(i.Argv...), stdin, stdout)
}
