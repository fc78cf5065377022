package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/avakeys/internal/byok"
	"github.com/vyrodovalexey/avakeys/internal/cache"
	"github.com/vyrodovalexey/avakeys/internal/circuitbreaker"
	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/credential"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/secure"
	"github.com/vyrodovalexey/avakeys/internal/store"
	"github.com/vyrodovalexey/avakeys/internal/vault"
)

const (
	metricsNamespace = "avakeys"

	// secretField is the Vault KV field read when a path has no "#field".
	secretField = "value"

	shutdownTimeout = 5 * time.Second
)

// application holds all application components.
type application struct {
	config    *config.Config
	logger    observability.Logger
	tracer    *observability.Tracer
	secrets   vault.Client
	store     store.Store
	cache     cache.TaggedCache
	deriver   *secure.Deriver
	validator *credential.Validator
	service   *credential.Service
	vault     *byok.Vault
	registry  *prometheus.Registry
}

// newApplication wires every component from cfg. On error everything
// opened so far is closed.
func newApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (app *application, err error) {
	app = &application{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			app.close(ctx)
			app = nil
		}
	}()

	if app.tracer, err = initTracer(ctx, cfg); err != nil {
		return nil, err
	}

	if app.secrets, err = initVaultClient(ctx, cfg, logger, app.registry); err != nil {
		return nil, err
	}

	if app.deriver, err = initDeriver(ctx, cfg, app.secrets, logger); err != nil {
		return nil, err
	}

	hasher, err := initHasher(ctx, cfg, app.secrets, logger)
	if err != nil {
		return nil, err
	}

	if app.store, err = openStore(ctx, cfg, logger, app.registry); err != nil {
		return nil, err
	}

	if app.cache, err = cache.New(&cfg.Cache, logger, cache.WithSecretReader(app.secrets)); err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	cache.GetCacheMetrics().MustRegister(app.registry)

	credMetrics := credential.NewMetrics(metricsNamespace)
	credMetrics.Init()
	credMetrics.MustRegister(app.registry)

	cacheTimeout := cfg.Cache.OperationTimeout.Duration()

	app.validator, err = credential.NewValidator(app.store, app.cache, hasher,
		credential.WithLogger(logger),
		credential.WithMetrics(credMetrics),
		credential.WithCacheTTL(cfg.Credentials.CacheTTL.Duration()),
		credential.WithCacheTimeout(cacheTimeout),
		credential.WithTouchTimeout(cfg.Credentials.TouchTimeout.Duration()),
	)
	if err != nil {
		return nil, err
	}

	app.service, err = credential.NewService(app.store, app.cache, hasher,
		credential.WithServiceLogger(logger),
		credential.WithServiceMetrics(credMetrics),
		credential.WithServiceCacheTimeout(cacheTimeout),
	)
	if err != nil {
		return nil, err
	}

	policy := byok.PolicyPermissive
	if cfg.BYOK.StrictVendors {
		policy = byok.PolicyStrict
	}
	byokMetrics := byok.NewMetrics(metricsNamespace)
	byokMetrics.Init()
	byokMetrics.MustRegister(app.registry)

	app.vault, err = byok.NewVault(app.store, app.cache, secure.NewEnvelope(app.deriver),
		byok.WithLogger(logger),
		byok.WithMetrics(byokMetrics),
		byok.WithRegistry(byok.DefaultRegistry(byok.WithPolicy(policy), byok.WithRegistryLogger(logger))),
		byok.WithCacheTTL(cfg.BYOK.CacheTTL.Duration()),
		byok.WithCacheTimeout(cacheTimeout),
	)
	if err != nil {
		return nil, err
	}

	logger.Debug("application initialized",
		observability.String("profile", string(cfg.Profile)),
		observability.String("store", cfg.Store.Driver),
		observability.String("cache", cacheType(cfg)),
		observability.Bool("vault", app.secrets.IsEnabled()))

	return app, nil
}

// initTracer initializes the tracer.
func initTracer(ctx context.Context, cfg *config.Config) (*observability.Tracer, error) {
	tracer, err := observability.NewTracer(ctx, observability.TracerConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SamplingRate: cfg.Tracing.SamplingRate,
		Enabled:      cfg.Tracing.Enabled,
		Insecure:     cfg.Tracing.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	return tracer, nil
}

// initVaultClient creates the Vault client and authenticates when enabled.
func initVaultClient(
	ctx context.Context,
	cfg *config.Config,
	logger observability.Logger,
	registry *prometheus.Registry,
) (vault.Client, error) {
	metrics := vault.NewMetrics(metricsNamespace)
	metrics.MustRegister(registry)

	client, err := vault.New(cfg.Vault, logger, vault.WithMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if !client.IsEnabled() {
		return client, nil
	}

	if err := client.Authenticate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to authenticate with vault: %w", err)
	}
	return client, nil
}

// resolveSecret returns the inline value or reads vaultPath from Vault.
func resolveSecret(ctx context.Context, client vault.Client, inline, vaultPath string) (string, error) {
	if vaultPath == "" {
		return inline, nil
	}
	return client.ReadField(ctx, vaultPath, secretField)
}

// initDeriver loads the master secret into an enclave and builds the
// tenant key deriver.
func initDeriver(
	ctx context.Context,
	cfg *config.Config,
	client vault.Client,
	logger observability.Logger,
) (*secure.Deriver, error) {
	raw, err := resolveSecret(ctx, client, cfg.Security.MasterSecret, cfg.Security.MasterSecretVaultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read master secret: %w", err)
	}

	master, err := secure.LoadMasterSecret([]byte(raw), cfg.Profile, logger)
	if err != nil {
		return nil, err
	}

	deriver, err := secure.NewDeriver(master,
		secure.WithIterations(cfg.Security.DerivationIterations),
		secure.WithKeyCacheSize(cfg.Security.DerivedKeyCacheSize),
	)
	if err != nil {
		master.Destroy()
		return nil, err
	}
	return deriver, nil
}

// initHasher resolves the hash salt and builds the credential hasher.
func initHasher(
	ctx context.Context,
	cfg *config.Config,
	client vault.Client,
	logger observability.Logger,
) (*credential.Hasher, error) {
	configured, err := resolveSecret(ctx, client, cfg.Security.HashSalt, cfg.Security.HashSaltVaultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read hash salt: %w", err)
	}

	salt, err := credential.ResolveSalt(configured, cfg.Profile, logger)
	if err != nil {
		return nil, err
	}
	return credential.NewHasher(salt, cfg.Security.HashIterations)
}

// openStore opens the configured store. SQL stores are guarded by a
// circuit breaker when enabled.
func openStore(
	ctx context.Context,
	cfg *config.Config,
	logger observability.Logger,
	registry *prometheus.Registry,
) (store.Store, error) {
	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost when the process exits")
		return store.NewMemoryStore(), nil
	}

	storeMetrics := store.NewMetrics(metricsNamespace)
	storeMetrics.MustRegister(registry)

	opts := []store.SQLOption{
		store.WithLogger(logger),
		store.WithMetrics(storeMetrics),
	}

	if cbCfg := cfg.Store.CircuitBreaker; cbCfg.Enabled {
		cbMetrics := circuitbreaker.NewMetrics(metricsNamespace)
		cbMetrics.MustRegister(registry)

		cb := circuitbreaker.New("store", &circuitbreaker.Config{
			MinRequests:  cbCfg.MinRequests,
			FailureRatio: cbCfg.FailureRatio,
			Timeout:      cbCfg.Timeout.Duration(),
			IsSuccessful: store.IsExpectedError,
		}, circuitbreaker.WithLogger(logger), circuitbreaker.WithMetrics(cbMetrics))
		opts = append(opts, store.WithCircuitBreaker(cb))
	}

	st, err := store.Open(cfg.Store, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if cfg.Store.AutoMigrate {
		if err := st.EnsureSchema(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("store is unreachable: %w", err)
	}
	return st, nil
}

func cacheType(cfg *config.Config) string {
	if !cfg.Cache.Enabled {
		return "disabled"
	}
	return cfg.Cache.Type
}

// close releases every component in reverse order of creation.
func (a *application) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if a.validator != nil {
		_ = a.validator.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close cache", observability.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("failed to close store", observability.Error(err))
		}
	}
	if a.deriver != nil {
		a.deriver.Destroy()
	}
	if a.secrets != nil {
		_ = a.secrets.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to shut down tracer", observability.Error(err))
		}
	}
}
