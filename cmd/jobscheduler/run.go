package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iddaa-lens/jobscheduler/internal/app"
	"github.com/iddaa-lens/jobscheduler/pkg/coordination"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
	"github.com/iddaa-lens/jobscheduler/pkg/metrics"
	"github.com/iddaa-lens/jobscheduler/pkg/server"
)

const shutdownTimeout = 30 * time.Second

func newRunCommand(f *flags, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Schedule the configured jobs and serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := coordination.OpenStore(ctx, app.StoreOptions(cfg.Coordination))
			if err != nil {
				return fmt.Errorf("open coordination store: %w", err)
			}
			defer store.Close()

			m := metrics.New()
			a, err := app.New(cfg, store, m, log)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				return err
			}

			srv, err := server.New(server.Options{
				Addr:       cfg.Server.Addr(),
				InstanceID: cfg.InstanceID,
				Registry:   a.Registry(),
				Operator:   a.Operator(),
				Store:      store,
				Metrics:    m,
				Logger:     log,
			})
			if err != nil {
				return errors.Join(err, a.Shutdown(context.Background()))
			}

			log.Info().
				Str("action", "service_started").
				Str("instance_id", cfg.InstanceID).
				Str("backend", cfg.Coordination.Backend).
				Int("jobs", len(cfg.Jobs)).
				Msg("Job scheduler started")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(srv.Start)
			g.Go(func() error { return a.Run(gctx, f.configPath) })
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			runErr := g.Wait()

			log.Info().
				Str("action", "service_stopping").
				Msg("Shutting down job scheduler")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(runErr, a.Shutdown(shutdownCtx))
		},
	}

	cmd.Flags().StringVar(&f.overrides.Server.Host, "host", "", "admin API host")
	cmd.Flags().StringVar(&f.overrides.Server.Port, "port", "", "admin API port")
	return cmd
}
