package app

import (
	"log/slog"
	"os"

	"github.com/tpodg/serverkit/internal/config"
	"github.com/tpodg/serverkit/internal/console"
	"github.com/tpodg/serverkit/internal/task"
	"github.com/tpodg/serverkit/internal/task/catalog"
)

type App struct {
	Logger  *slog.Logger
	Config  *config.Config
	Console console.Console
	Catalog *task.Catalog
}

func New(cfg *config.Config, verbose bool) (*App, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	ops, err := task.NewCatalog(catalog.Builtins()...)
	if err != nil {
		return nil, err
	}

	return &App{
		Logger:  logger,
		Config:  cfg,
		Console: console.NewTerminal(),
		Catalog: ops,
	}, nil
}
