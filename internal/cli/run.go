package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tpodg/serverkit/internal/app"
	"github.com/tpodg/serverkit/internal/config"
	"github.com/tpodg/serverkit/internal/server"
	"github.com/tpodg/serverkit/internal/task"
)

type runOptions struct {
	Target    string
	Sets      []string
	AssumeYes bool
	Strict    bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run <operation>",
	Short: "Apply an operation to a server",
	Long: `Apply a provisioning operation to one server. Parameters are taken from
--set arguments first, then from the server's settings, the top-level
settings and finally the operation defaults (see "serverkit describe").`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kitApp := getApp(cmd)
		s, err := resolveTarget(kitApp.Config, runOpts.Target)
		if err != nil {
			return err
		}
		srv := newServer(s)
		if err := runOperation(cmd.Context(), kitApp, s, srv, dialer(kitApp.Config, srv), args[0], runOpts); err != nil {
			kitApp.Logger.Error("Operation failed", "operation", args[0], "server", s.Name, "error", err)
			return err
		}
		return nil
	},
}

// runOperation plans the operation without touching srv and then applies it.
func runOperation(ctx context.Context, kitApp *app.App, s config.ServerConfig, srv server.Server, dial server.Dialer, key string, opts runOptions) error {
	op, err := kitApp.Catalog.Lookup(key)
	if err != nil {
		return err
	}
	explicit, err := task.ParseAssignments(opts.Sets)
	if err != nil {
		return err
	}

	settings := kitApp.Config.SettingsFor(s)
	runner := task.NewRunner(kitApp.Logger)
	tasks, err := op.Plan(explicit, settings, task.Invocation{
		Console:   kitApp.Console,
		Runner:    runner,
		Dial:      dial,
		AssumeYes: opts.AssumeYes || settings.Bool(config.SettingConfirm),
		Strict:    opts.Strict || settings.Bool(config.SettingStrictEdits),
	})
	if err != nil {
		return err
	}

	var configurator server.Configurator = task.NewOperationConfigurator(runner, op.Key, tasks...)
	if err := configurator.Configure(ctx, srv); err != nil {
		return fmt.Errorf("on %s: %w", srv.ID(), err)
	}
	return nil
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.Target, "server", "s", "", "configured server name or user@host:port")
	runCmd.Flags().StringArrayVar(&runOpts.Sets, "set", nil, "parameter as key=value (repeatable)")
	runCmd.Flags().BoolVarP(&runOpts.AssumeYes, "yes", "y", false, "answer yes to confirmations")
	runCmd.Flags().BoolVar(&runOpts.Strict, "strict", false, "fail when a file edit finds nothing to change")
	rootCmd.AddCommand(runCmd)
}
