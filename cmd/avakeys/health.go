package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/avakeys/internal/health"
)

var errUnhealthy = errors.New("one or more critical dependencies are unhealthy")

func newHealthChecker(app *application, timeout time.Duration) *health.Checker {
	metrics := health.NewMetrics(metricsNamespace)
	metrics.MustRegister(app.registry)

	checker := health.NewChecker(version,
		health.WithLogger(app.logger),
		health.WithMetrics(metrics),
		health.WithTimeout(timeout),
	)
	checker.Register(health.StoreCheck(app.store))
	checker.Register(health.CacheCheck(app.cache, health.WithCritical(false)))
	// Vault is only read at startup.
	checker.Register(health.VaultCheck(app.secrets, health.WithCritical(false)))
	return checker
}

func newHealthCommand(opts *globalOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the store, cache and Vault",
		Long: `Check every configured dependency and print a JSON report. The command
exits non-zero when a critical dependency (the store) is unhealthy; cache and
Vault failures only degrade the report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				report := newHealthChecker(app, timeout).Run(ctx)
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if report.Status == health.StatusUnhealthy {
					return errUnhealthy
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", health.DefaultTimeout, "Per-check timeout")
	return cmd
}
