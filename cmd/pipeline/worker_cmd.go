package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/flowforge/pipeline/internal/claim"
	"github.com/flowforge/pipeline/internal/metrics"
	"github.com/flowforge/pipeline/internal/resilience"
	"github.com/flowforge/pipeline/internal/worker"
)

func newWorkerCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the worker loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			claimer := resilience.NewBreakerClaimer(claim.New(app.Stores))
			collector := metrics.NewPrometheusCollector(prometheus.NewRegistry())

			loop := worker.New(claimer, app.Registry, app.RunExecutor, app.Stores.Runs, collector, app.Logger.WithFields(map[string]any{"component": "worker"}), app.Config.PollInterval)

			app.Logger.Info("worker loop starting", "pollInterval", app.Config.PollInterval.String())

			done := make(chan error, 1)
			go func() { done <- loop.Run(ctx) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				select {
				case err := <-done:
					return err
				case <-time.After(app.Config.ShutdownGrace):
					return fmt.Errorf("worker loop did not stop within shutdown grace period")
				}
			}
		},
	}
}
