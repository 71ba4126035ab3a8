package cli

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tpodg/serverkit/internal/config"
	"github.com/tpodg/serverkit/internal/server"
)

const pingTimeout = 15 * time.Second

var pingCmd = &cobra.Command{
	Use:   "ping [server...]",
	Short: "Verify connection to servers",
	Long:  `Try to connect to the named (default: all configured) servers and execute a simple command to verify accessibility.`,
	Run: func(cmd *cobra.Command, args []string) {
		kitApp := getApp(cmd)
		kitApp.Logger.Info("Starting connection verification")

		targets, err := pingTargets(kitApp.Config, args)
		if err != nil {
			kitApp.Logger.Error("Cannot resolve servers", "error", err)
			return
		}
		if len(targets) == 0 {
			kitApp.Logger.Warn("No servers configured")
			return
		}

		servers := make([]server.Server, 0, len(targets))
		for _, sCfg := range targets {
			servers = append(servers, newServer(sCfg))
		}

		verifyServers(cmd.Context(), kitApp.Logger, servers)
	},
}

func pingTargets(cfg *config.Config, names []string) ([]config.ServerConfig, error) {
	if len(names) == 0 {
		return cfg.Servers, nil
	}
	targets := make([]config.ServerConfig, 0, len(names))
	for _, name := range names {
		s, err := resolveTarget(cfg, name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, s)
	}
	return targets, nil
}

func verifyServers(ctx context.Context, logger *slog.Logger, servers []server.Server) {
	for _, srv := range servers {
		func() {
			ctx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()

			logger.Info("Checking server", "name", srv.ID(), "address", srv.Address())
			output, err := srv.Execute(ctx, "echo 'pong'")

			if err != nil {
				logger.Error("Verification failed", "server", srv.ID(), "error", err)
				return
			}

			if strings.TrimSpace(output) == "pong" {
				logger.Info("Verification successful", "server", srv.ID())
			} else {
				logger.Warn("Verification partially successful (unexpected output)", "server", srv.ID(), "output", strings.TrimSpace(output))
			}
		}()
	}
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
