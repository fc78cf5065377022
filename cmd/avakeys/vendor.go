package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newVendorCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendor",
		Short: "Manage tenant vendor secrets (BYOK)",
		Long: `Store, read, rotate and delete vendor API keys supplied by tenants.

Secrets are read from standard input so they never appear in the process
list or shell history:

  printf '%s' "$OPENAI_KEY" | avakeys vendor put acme openai`,
	}

	cmd.AddCommand(
		newVendorPutCommand(opts, "put", "Store a vendor secret", false),
		newVendorPutCommand(opts, "rotate", "Replace a vendor secret", true),
		newVendorGetCommand(opts),
		newVendorDeleteCommand(opts),
		newVendorListCommand(opts),
		newVendorFormatsCommand(opts),
	)
	return cmd
}

func newVendorPutCommand(opts *globalOptions, use, short string, rotate bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <tenant-id> <vendor>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				store := app.vault.Store
				if rotate {
					store = app.vault.Rotate
				}
				if err := store(ctx, args[0], args[1], secret); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"tenant_id": args[0],
					"vendor":    args[1],
					"stored":    true,
				})
			})
		},
	}
}

func newVendorGetCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <tenant-id> <vendor>",
		Short: "Print a decrypted vendor secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				secret, err := app.vault.Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), secret)
				return err
			})
		},
	}
}

func newVendorDeleteCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant-id> <vendor>",
		Short: "Delete a vendor secret",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				deleted, err := app.vault.Delete(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"tenant_id": args[0],
					"vendor":    args[1],
					"deleted":   deleted,
				})
			})
		},
	}
}

func newVendorListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <tenant-id>",
		Short: "List a tenant's vendor secrets without their values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, app *application) error {
				secrets, err := app.vault.List(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), secrets)
			})
		},
	}
}

func newVendorFormatsCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List vendors with a registered key format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(_ context.Context, app *application) error {
				registry := app.vault.Registry()
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"policy":  registry.Policy().String(),
					"vendors": registry.Vendors(),
				})
			})
		},
	}
}
