package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tpodg/serverkit/internal/app"
	"github.com/tpodg/serverkit/internal/config"
)

type contextKey string

const appKey contextKey = "app"

var rootCmd = &cobra.Command{
	Use:   "serverkit",
	Short: "Serverkit provisions and hardens Ubuntu servers over SSH",
	Long: `Serverkit applies named provisioning operations to a server over SSH:
admin accounts, SSH hardening, firewall, mail relay, databases, backup
and monitoring agents, and the web stack. Every step is safe to re-run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgFile, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		envFile, err := cmd.Flags().GetString("env-file")
		if err != nil {
			return err
		}
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return err
		}

		cfg, err := config.Load(cfgFile, envFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		kitApp, err := app.New(cfg, verbose)
		if err != nil {
			return err
		}
		ctx := context.WithValue(cmd.Context(), appKey, kitApp)
		cmd.SetContext(ctx)

		return nil
	},
}

// Execute runs the root command with ctx, which cancels running operations
// when done.
func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", fmt.Sprintf("config file (default is $HOME/%s)", config.DefaultConfigFileName))
	rootCmd.PersistentFlags().String("env-file", "", fmt.Sprintf("file with %s_* variables (default is ./%s when present)", config.EnvPrefix, config.DefaultEnvFileName))
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

func getApp(cmd *cobra.Command) *app.App {
	if a, ok := cmd.Context().Value(appKey).(*app.App); ok {
		return a
	}
	return nil
}
