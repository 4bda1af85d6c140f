package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pbellet/sessionlog/internal/cache"
	"github.com/pbellet/sessionlog/internal/config"
	"github.com/pbellet/sessionlog/internal/history"
	"github.com/pbellet/sessionlog/internal/metrics"
	"github.com/pbellet/sessionlog/internal/recovery"
	"github.com/pbellet/sessionlog/internal/store"
)

// app bundles the wired components shared by the subcommands.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   *store.Store
	cache   *cache.Cache
	manager *history.Manager
	engine  *recovery.Engine
}

// buildApp loads configuration from the command's flags and wires the
// persistence stack.
func buildApp(cmd *cobra.Command) (*app, error) {
	cfg := config.Config{}.WithDefaults()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		if err := loaded.Validate(); err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if root, _ := cmd.Flags().GetString("root"); root != "" {
		cfg.Storage.Root = root
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	m := metrics.New()
	st := store.New(cfg.Storage.Root, logger)
	c := cache.New(cfg.CacheTTL())
	manager := history.NewManager(st, c, history.Options{
		Logger:  logger,
		Metrics: m,
	})
	engine := recovery.NewEngine(manager, recovery.Options{
		CompressionThreshold: cfg.Recovery.CompressionThreshold,
		Logger:               logger,
		Metrics:              m,
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		store:   st,
		cache:   c,
		manager: manager,
		engine:  engine,
	}, nil
}
