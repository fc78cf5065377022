package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/avakeys/internal/cache"
	"github.com/vyrodovalexey/avakeys/internal/credential"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/store"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

// readLine returns the first line of r without its line ending.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", util.NewFormatError("stdin", "expected a value on standard input")
	}
	return line, nil
}

func newTenantCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	var (
		name        string
		routingName string
		rateLimit   int
		quota       int64
		inactive    bool
	)

	putCmd := &cobra.Command{
		Use:   "put <tenant-id>",
		Short: "Create or replace a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := util.ValidateIdentifier("tenant_id", args[0]); err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				tenant := &store.Tenant{
					ID:                 args[0],
					Name:               name,
					RoutingName:        routingName,
					RateLimitPerMinute: rateLimit,
					MonthlyTokenQuota:  quota,
					Active:             !inactive,
				}
				if tenant.Name == "" {
					tenant.Name = tenant.ID
				}
				if err := app.store.PutTenant(ctx, tenant); err != nil {
					return err
				}
				// Suspending a tenant must not leave its credentials cached.
				if _, err := app.cache.InvalidateTag(ctx, cache.TenantTag(tenant.ID)); err != nil {
					app.logger.Warn("tenant cache eviction failed",
						observability.String("tenant_id", tenant.ID),
						observability.Error(err))
				}
				return printJSON(cmd.OutOrStdout(), tenant)
			})
		},
	}
	putCmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the id)")
	putCmd.Flags().StringVar(&routingName, "routing-name", "", "Routing name")
	putCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per minute")
	putCmd.Flags().Int64Var(&quota, "quota", 0, "Monthly token quota")
	putCmd.Flags().BoolVar(&inactive, "inactive", false, "Create the tenant suspended")

	getCmd := &cobra.Command{
		Use:   "get <tenant-id>",
		Short: "Show a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				tenant, err := app.store.GetTenant(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tenant)
			})
		},
	}

	cmd.AddCommand(putCmd, getCmd)
	return cmd
}

// issueResult is printed by the issue command.
type issueResult struct {
	*store.Credential
	Secret string `json:"secret"`
}

func newIssueCommand(opts *globalOptions) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "issue <tenant-id>",
		Short: "Issue a new credential for a tenant",
		Long: `Issue a new credential. The secret is printed once and cannot be
recovered afterwards; only its hash is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				cred, raw, err := app.service.Issue(ctx, args[0], label)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "Store this secret now; it will not be shown again.")
				return printJSON(cmd.OutOrStdout(), issueResult{Credential: cred, Secret: raw})
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label")
	return cmd
}

func newValidateCommand(opts *globalOptions) *cobra.Command {
	var showStats bool

	cmd := &cobra.Command{
		Use:   "validate [credential]",
		Short: "Validate a credential and print its tenant",
		Long: `Validate a credential. When no argument is given the credential is read
from standard input, which keeps it out of the process list.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := credentialArg(cmd, args)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				tenant, err := app.validator.Validate(ctx, raw)
				if showStats {
					defer func() { _ = printJSON(cmd.ErrOrStderr(), app.validator.Stats()) }()
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tenant)
			})
		},
	}
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print validator counters to stderr")
	return cmd
}

func credentialArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return readLine(cmd.InOrStdin())
}

func newRevokeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <credential-id>",
		Short: "Revoke a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				revoked, err := app.service.Revoke(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": args[0], "revoked": revoked})
			})
		},
	}
}

func newListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <tenant-id>",
		Short: "List a tenant's credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				creds, err := app.service.List(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), creds)
			})
		},
	}
}

// statsResult is printed by the stats command.
type statsResult struct {
	Total   int              `json:"total"`
	Valid   int              `json:"valid"`
	Invalid int              `json:"invalid"`
	Failed  int              `json:"failed"`
	Stats   credential.Stats `json:"stats"`
	HitRate float64          `json:"hit_rate"`
}

func newStatsCommand(opts *globalOptions) *cobra.Command {
	var showMetrics bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Validate credentials from stdin and report cache counters",
		Long: `Read one credential per line from standard input, validate each and
print the validator counters. With --metrics the Prometheus metrics of every
component are printed as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				var res statsResult

				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					raw := strings.TrimSpace(scanner.Text())
					if raw == "" {
						continue
					}
					res.Total++
					_, err := app.validator.Validate(ctx, raw)
					switch {
					case err == nil:
						res.Valid++
					case errors.Is(err, credential.ErrInvalidCredential):
						res.Invalid++
					default:
						res.Failed++
					}
				}
				if err := scanner.Err(); err != nil {
					return err
				}

				// Wait for background last-used updates before reporting.
				_ = app.validator.Close()
				res.Stats = app.validator.Stats()
				res.HitRate = res.Stats.HitRate()

				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !showMetrics {
					return nil
				}

				families, err := app.registry.Gather()
				if err != nil {
					return err
				}
				return writeMetrics(cmd.OutOrStdout(), families)
			})
		},
	}
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Also print Prometheus metrics")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "avakeys version %s\n", version)
			fmt.Fprintf(out, "  Build time: %s\n", buildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", gitCommit)
		},
	}
}
