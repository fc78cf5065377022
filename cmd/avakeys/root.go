package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/avakeys/internal/byok"
	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/credential"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

// Exit codes.
const (
	exitError   = 1
	exitInvalid = 2
	exitMissing = 3
	exitUsage   = 4
)

// globalOptions holds persistent flags.
type globalOptions struct {
	configPath  string
	profile     string
	logLevel    string
	logFormat   string
	storeDriver string
	storeDSN    string
	autoMigrate bool
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "avakeys",
		Short: "Tenant API credentials and BYOK vendor secrets",
		Long: `avakeys issues, validates and revokes tenant API credentials and keeps
tenant-supplied vendor keys encrypted at rest.

Configuration is read from --config (YAML, ${VAR:-default} substitution) and
then overridden by flags and AVAKEYS_* environment variables.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", getEnvOrDefault("AVAKEYS_CONFIG", ""),
		"Path to configuration file")
	flags.StringVar(&opts.profile, "profile", getEnvOrDefault("AVAKEYS_PROFILE", ""),
		"Security profile (development, production)")
	flags.StringVar(&opts.logLevel, "log-level", getEnvOrDefault("AVAKEYS_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", getEnvOrDefault("AVAKEYS_LOG_FORMAT", ""),
		"Log format (json, console)")
	flags.StringVar(&opts.storeDriver, "store-driver", getEnvOrDefault("AVAKEYS_STORE_DRIVER", ""),
		"Store driver (postgres, mysql, sqlite, memory)")
	flags.StringVar(&opts.storeDSN, "store-dsn", getEnvOrDefault("AVAKEYS_STORE_DSN", ""),
		"Store data source name")
	flags.BoolVar(&opts.autoMigrate, "auto-migrate", getEnvBool("AVAKEYS_AUTO_MIGRATE", false),
		"Create missing tables on startup")

	rootCmd.AddCommand(
		newTenantCommand(opts),
		newIssueCommand(opts),
		newValidateCommand(opts),
		newRevokeCommand(opts),
		newListCommand(opts),
		newVendorCommand(opts),
		newStatsCommand(opts),
		newHealthCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

// loadConfig reads the configuration file and applies overrides.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if opts.profile != "" {
		cfg.Profile = config.Profile(opts.profile)
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if opts.storeDriver != "" {
		cfg.Store.Driver = opts.storeDriver
	}
	if opts.storeDSN != "" {
		cfg.Store.DSN = opts.storeDSN
	}
	if opts.autoMigrate {
		cfg.Store.AutoMigrate = true
	}
	if v := getEnvOrDefault("AVAKEYS_MASTER_SECRET", ""); v != "" {
		cfg.Security.MasterSecret = v
	}
	if v := getEnvOrDefault("AVAKEYS_HASH_SALT", ""); v != "" {
		cfg.Security.HashSalt = v
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withApp loads configuration, builds the application, runs fn and closes
// everything it opened.
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, app *application) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close(ctx)

	return fn(ctx, app)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitCode maps an error to a process exit code.
func exitCode(err error) int {
	switch {
	case errors.Is(err, credential.ErrInvalidCredential):
		return exitInvalid
	case errors.Is(err, byok.ErrSecretNotFound), errors.Is(err, util.ErrNotFound):
		return exitMissing
	case errors.Is(err, util.ErrFormat), errors.Is(err, util.ErrConfigInvalid):
		return exitUsage
	default:
		return exitError
	}
}
