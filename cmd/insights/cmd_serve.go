package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/founderpulse/insights/internal/httpapi"
	"github.com/founderpulse/insights/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the batch scheduler",
		Long:  "Serves briefing reads and feedback intake while the cron scheduler drives the twice-daily batch runs.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			srv := httpapi.New(*a.cfg, a.store, a.store, a.calib, a.thresholds, a.engagement, a.reg)

			var sched *scheduler.Scheduler
			if !noSchedule {
				sched = scheduler.New(a.cfg.Scheduler, a.runner)
				if err := sched.Start(ctx); err != nil {
					return err
				}
			}

			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("shutting down")
			case err := <-errCh:
				return err
			}

			if sched != nil {
				sched.Stop()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the API without the cron scheduler")
	return cmd
}
