package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/strutil"
	"github.com/tpodg/serverkit/internal/task/taskutil"
)

// Command runs an argument vector on the server with privilege elevation.
type Command struct {
	Desc string
	Argv []string
	// AsUser runs the command as this account instead of root.
	AsUser string
	// Unless is a probe run before the command; the command is skipped when
	// the probe exits zero.
	Unless []string
	// Show prints the command output to the operator.
	Show bool
	// Input is written to the command's standard input. Secrets go here,
	// never into Argv.
	Input string
}

// Run creates a Command that always executes.
func Run(desc string, argv ...string) *Command {
	return &Command{Desc: desc, Argv: argv}
}

// Shell creates a Command running a fixed shell script. Values reach the
// script only as positional parameters.
func Shell(desc, script string, args ...string) *Command {
	return &Command{Desc: desc, Argv: strutil.Script(script, args...)}
}

// AptInstall installs packages non-interactively unless all are installed.
func AptInstall(packages ...string) *Command {
	argv := append([]string{"env", "DEBIAN_FRONTEND=noninteractive", "apt-get", "-yq", "install"}, packages...)
	return &Command{
		Desc:   "install " + strings.Join(packages, " "),
		Argv:   argv,
		Unless: append([]string{"dpkg", "-s"}, packages...),
	}
}

// AptUpdate refreshes the package index.
func AptUpdate() *Command {
	return Run("update package index", "apt-get", "update")
}

// AddRepository enables a PPA.
func AddRepository(ppa string) *Command {
	return Run("add repository "+ppa, "add-apt-repository", "-y", ppa)
}

// Service runs `service <name> <action>`.
func Service(name, action string) *Command {
	return Run(action+" "+name, "service", name, action)
}

// Mkdir creates a directory (and its parents) unless it exists.
func Mkdir(dir string) *Command {
	return &Command{
		Desc:   "create directory " + dir,
		Argv:   []string{"mkdir", "-p", dir},
		Unless: []string{"test", "-d", dir},
	}
}

func (c *Command) Name() string {
	if c.Desc != "" {
		return c.Desc
	}
	return strutil.Command(c.Argv...)
}

func (c *Command) NeedsExecution(ctx context.Context, s server.Server) (bool, error) {
	if len(c.Unless) == 0 {
		return true, nil
	}
	prefix, err := c.prefix(ctx, s)
	if err != nil {
		return false, err
	}
	satisfied, err := taskutil.Succeeds(ctx, s, prefix, c.Unless...)
	if err != nil {
		return false, fmt.Errorf("probe %q: %w", c.Name(), err)
	}
	return !satisfied, nil
}

func (c *Command) Execute(ctx context.Context, s server.Server) error {
	if len(c.Argv) == 0 {
		return fmt.Errorf("command %q has no arguments", c.Desc)
	}
	prefix, err := c.prefix(ctx, s)
	if err != nil {
		return err
	}
	var output string
	if c.Input != "" {
		output, err = taskutil.RunWithInput(ctx, s, prefix, c.Input, c.Argv...)
	} else {
		output, err = taskutil.Run(ctx, s, prefix, c.Argv...)
	}
	if err != nil {
		return err
	}
	if c.Show && strings.TrimSpace(output) != "" {
		fmt.Fprint(taskutil.Output, output)
	}
	return nil
}

func (c *Command) prefix(ctx context.Context, s server.Server) (string, error) {
	if c.AsUser != "" {
		return taskutil.AsUserPrefix(c.AsUser), nil
	}
	return taskutil.SudoPrefix(ctx, s)
}
