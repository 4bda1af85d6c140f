package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbellet/sessionlog/internal/api"
	"github.com/pbellet/sessionlog/internal/index"
	"github.com/pbellet/sessionlog/internal/janitor"
	"github.com/pbellet/sessionlog/internal/watch"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API with scheduled maintenance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}
			if a.cfg.API.Listen == "" {
				return fmt.Errorf("api.listen is not configured")
			}

			var ix *index.Index
			if a.cfg.Index.Enabled {
				ix, err = index.Open(a.cfg.Index.Path, a.logger)
				if err != nil {
					return err
				}
				defer ix.Close()
			}

			scheduler := janitor.NewScheduler(a.logger)
			if err := scheduler.RegisterJob(&janitor.CacheSweepJob{
				Cache:        a.cache,
				Logger:       a.logger,
				ScheduleExpr: a.cfg.Janitor.CacheSweepSchedule,
			}); err != nil {
				return err
			}
			if a.cfg.Janitor.RetentionSchedule != "" {
				if err := scheduler.RegisterJob(&janitor.RetentionJob{
					History:      a.manager,
					MaxIdle:      a.cfg.RetentionMaxIdle(),
					Logger:       a.logger,
					ScheduleExpr: a.cfg.Janitor.RetentionSchedule,
				}); err != nil {
					return err
				}
			}
			if err := scheduler.Start(); err != nil {
				return err
			}
			defer func() { _ = scheduler.Stop(context.Background()) }()

			if a.cfg.Watcher.Enabled {
				watcher, err := watch.New(a.cfg.Storage.Root, a.cache, a.logger)
				if err != nil {
					return err
				}
				if err := watcher.Start(); err != nil {
					return err
				}
				defer func() { _ = watcher.Stop() }()
			}

			server := api.New(a.manager, a.engine, ix, a.metrics, a.logger, a.cfg.API.Listen)
			if err := server.Start(); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop

			a.logger.Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Stop(ctx)
		},
	}
}
