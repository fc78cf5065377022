package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/retry"
)

// DefaultTimeout bounds a single Vault request.
const DefaultTimeout = 10 * time.Second

// Client provides the Vault operations needed at startup.
type Client interface {
	// IsEnabled returns true if Vault is enabled.
	IsEnabled() bool

	// Authenticate authenticates with Vault.
	Authenticate(ctx context.Context) error

	// Read reads all fields of the secret at ref.
	Read(ctx context.Context, ref string) (map[string]interface{}, error)

	// ReadField reads a single string field. A "#field" suffix on ref
	// overrides field.
	ReadField(ctx context.Context, ref, field string) (string, error)

	// Health reports whether the server is initialized and unsealed.
	Health(ctx context.Context) error

	// Close closes the client.
	Close() error
}

// vaultClient implements the Client interface.
type vaultClient struct {
	config  config.VaultConfig
	api     *vaultapi.Client
	auth    AuthMethod
	logger  observability.Logger
	metrics *Metrics
	retry   *retry.Config

	mu            sync.RWMutex
	authenticated bool
	closed        bool
}

// ClientOption is a functional option for configuring the client.
type ClientOption func(*vaultClient)

// WithMetrics sets the metrics recorder for the client.
func WithMetrics(metrics *Metrics) ClientOption {
	return func(c *vaultClient) {
		c.metrics = metrics
	}
}

// WithRetryConfig overrides the retry policy for Vault requests.
func WithRetryConfig(cfg *retry.Config) ClientOption {
	return func(c *vaultClient) {
		c.retry = cfg
	}
}

// New creates a new Vault client. A disabled configuration yields a client
// whose operations return ErrVaultDisabled.
func New(cfg config.VaultConfig, logger observability.Logger, opts ...ClientOption) (Client, error) {
	if !cfg.Enabled {
		return &disabledClient{}, nil
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	auth, err := authMethodFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address
	apiConfig.Timeout = cfg.Timeout.Duration()
	if apiConfig.Timeout <= 0 {
		apiConfig.Timeout = DefaultTimeout
	}
	// Retries are driven by internal/retry so they show up in its metrics.
	apiConfig.MaxRetries = 0

	api, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, NewVaultError("init", "", err)
	}
	// Never pick up VAULT_TOKEN from the environment implicitly.
	api.ClearToken()

	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	c := &vaultClient{
		config: cfg,
		api:    api,
		auth:   auth,
		logger: logger.With(observability.String("component", "vault")),
		retry: &retry.Config{
			MaxRetries:     3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			JitterFactor:   retry.DefaultJitterFactor,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metrics == nil {
		c.metrics = NewMetrics("avakeys")
	}

	return c, nil
}

// IsEnabled returns true if Vault is enabled.
func (c *vaultClient) IsEnabled() bool {
	return true
}

// Authenticate authenticates with Vault.
func (c *vaultClient) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	start := time.Now()
	err := c.execute(ctx, "authenticate", func() error {
		_, authErr := c.auth.Authenticate(ctx, c.api)
		return classify(authErr)
	})
	if err != nil {
		c.metrics.RecordAuthentication(c.auth.Name(), "error")
		c.metrics.RecordRequest("authenticate", "error", time.Since(start))
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	c.authenticated = true
	c.metrics.RecordAuthentication(c.auth.Name(), "success")
	c.metrics.RecordRequest("authenticate", "success", time.Since(start))
	c.logger.Info("authenticated with vault",
		observability.String("method", c.auth.Name()),
		observability.Duration("duration", time.Since(start)),
	)
	return nil
}

// Read reads all fields of the secret at ref, trying KV v2 first.
func (c *vaultClient) Read(ctx context.Context, ref string) (map[string]interface{}, error) {
	parsed, err := ParseSecretRef(ref, c.config.KVMount, "")
	if err != nil {
		return nil, err
	}
	return c.read(ctx, parsed)
}

// ReadField reads a single string field.
func (c *vaultClient) ReadField(ctx context.Context, ref, field string) (string, error) {
	parsed, err := ParseSecretRef(ref, c.config.KVMount, field)
	if err != nil {
		return "", err
	}
	if parsed.Field == "" {
		return "", fmt.Errorf("%w: field is required", ErrInvalidPath)
	}

	data, err := c.read(ctx, parsed)
	if err != nil {
		return "", err
	}

	value, ok := data[parsed.Field].(string)
	if !ok || value == "" {
		return "", NewVaultError("kv_read", parsed.kv2DataPath(),
			fmt.Errorf("%w: %s", ErrFieldNotFound, parsed.Field))
	}
	return value, nil
}

func (c *vaultClient) read(ctx context.Context, ref SecretRef) (map[string]interface{}, error) {
	c.mu.RLock()
	closed, authenticated := c.closed, c.authenticated
	c.mu.RUnlock()

	if closed {
		return nil, ErrClientClosed
	}
	if !authenticated {
		return nil, ErrNotAuthenticated
	}

	start := time.Now()
	data, err := c.readKV(ctx, ref)
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRequest("kv_read", status, time.Since(start))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("secret read", observability.String("path", ref.kv2DataPath()))
	return data, nil
}

// readKV reads the KV v2 layout and falls back to KV v1 when the mount is
// not versioned.
func (c *vaultClient) readKV(ctx context.Context, ref SecretRef) (map[string]interface{}, error) {
	var secret *vaultapi.Secret
	path := ref.kv2DataPath()

	err := c.execute(ctx, "kv_read", func() error {
		var readErr error
		secret, readErr = c.api.Logical().ReadWithContext(ctx, path)
		return classify(readErr)
	})
	if err != nil {
		var vaultErr *VaultError
		if !errors.As(err, &vaultErr) || (vaultErr.Code != 404 && vaultErr.Code != 405) {
			return nil, wrapPath(err, path)
		}
	}

	if secret != nil && secret.Data != nil {
		if nested, hasData := secret.Data["data"]; hasData {
			// Soft-deleted KV v2 secrets report data: null.
			data, ok := nested.(map[string]interface{})
			if !ok || data == nil {
				return nil, NewVaultError("kv_read", path, ErrSecretNotFound)
			}
			return data, nil
		}
	}

	path = ref.kv1Path()
	err = c.execute(ctx, "kv_read", func() error {
		var readErr error
		secret, readErr = c.api.Logical().ReadWithContext(ctx, path)
		return classify(readErr)
	})
	if err != nil {
		return nil, wrapPath(err, path)
	}
	if secret == nil || secret.Data == nil {
		return nil, NewVaultError("kv_read", path, ErrSecretNotFound)
	}
	return secret.Data, nil
}

// Health queries sys/health. It does not require authentication.
func (c *vaultClient) Health(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClientClosed
	}

	start := time.Now()
	resp, err := c.api.Sys().HealthWithContext(ctx)
	status := "success"
	switch {
	case err != nil:
		err = NewVaultError("health", "", classify(err))
	case !resp.Initialized || resp.Sealed:
		err = NewVaultError("health", "", ErrSealed)
	}
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRequest("health", status, time.Since(start))
	return err
}

func (c *vaultClient) execute(ctx context.Context, op string, fn func() error) error {
	return retry.Do(ctx, c.retry, fn, &retry.Options{
		Operation:   "vault_" + op,
		ShouldRetry: IsRetryable,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying vault operation",
				observability.String("operation", op),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err),
			)
		},
	})
}

// classify converts API response errors into VaultError with status code.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		return NewVaultErrorWithCode("request", "", err, respErr.StatusCode)
	}
	return err
}

func wrapPath(err error, path string) error {
	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		vaultErr.Op = "kv_read"
		vaultErr.Path = path
		return vaultErr
	}
	return NewVaultError("kv_read", path, err)
}

// Close closes the client. The token is forgotten but not revoked.
func (c *vaultClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.authenticated = false
	c.api.ClearToken()
	return nil
}

// disabledClient is a client that returns ErrVaultDisabled.
type disabledClient struct{}

func (c *disabledClient) IsEnabled() bool                      { return false }
func (c *disabledClient) Authenticate(_ context.Context) error { return ErrVaultDisabled }
func (c *disabledClient) Read(_ context.Context, _ string) (map[string]interface{}, error) {
	return nil, ErrVaultDisabled
}
func (c *disabledClient) ReadField(_ context.Context, _, _ string) (string, error) {
	return "", ErrVaultDisabled
}
func (c *disabledClient) Health(_ context.Context) error { return ErrVaultDisabled }
func (c *disabledClient) Close() error                   { return nil }
