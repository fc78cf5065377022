package config

import (
	"errors"
	"fmt"

	"github.com/vyrodovalexey/avakeys/internal/util"
)

// MinIterations is the lowest PBKDF2 iteration count accepted anywhere.
const MinIterations = 100_000

// MinMasterSecretLength is the minimum master secret length in bytes.
const MinMasterSecretLength = 32

// Validate checks the configuration and returns every problem found,
// joined, as *util.ConfigError values.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, msg string) {
		errs = append(errs, util.NewConfigError(field, msg))
	}

	switch c.Profile {
	case ProfileDevelopment, ProfileProduction:
	default:
		add("profile", fmt.Sprintf("unsupported profile %q", c.Profile))
	}

	c.validateSecurity(add)
	c.validateCache(add)
	c.validateStore(add)
	c.validateVault(add)

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		add("tracing.samplingRate", "must be between 0 and 1")
	}

	return errors.Join(errs...)
}

func (c *Config) validateSecurity(add func(field, msg string)) {
	sec := c.Security
	if sec.HashIterations < MinIterations {
		add("security.hashIterations", fmt.Sprintf("must be at least %d", MinIterations))
	}
	if sec.DerivationIterations < MinIterations {
		add("security.derivationIterations", fmt.Sprintf("must be at least %d", MinIterations))
	}
	if sec.DerivedKeyCacheSize < 0 {
		add("security.derivedKeyCacheSize", "must not be negative")
	}

	if !c.IsProduction() {
		return
	}

	if sec.MasterSecretVaultPath == "" {
		if sec.MasterSecret == "" {
			add("security.masterSecret", "required in production profile")
		} else if len(sec.MasterSecret) < MinMasterSecretLength {
			add("security.masterSecret",
				fmt.Sprintf("must be at least %d bytes in production profile", MinMasterSecretLength))
		}
	}
	if sec.HashSalt == "" && sec.HashSaltVaultPath == "" {
		add("security.hashSalt", "required in production profile")
	}
	if (sec.MasterSecretVaultPath != "" || sec.HashSaltVaultPath != "") && !c.Vault.Enabled {
		add("vault.enabled", "vault paths are configured but vault is disabled")
	}
}

func (c *Config) validateCache(add func(field, msg string)) {
	if err := util.ValidatePositiveDuration(c.Credentials.CacheTTL.Duration()); err != nil {
		add("credentials.cacheTTL", err.Error())
	}
	if err := util.ValidatePositiveDuration(c.Credentials.TouchTimeout.Duration()); err != nil {
		add("credentials.touchTimeout", err.Error())
	}
	if err := util.ValidatePositiveDuration(c.BYOK.CacheTTL.Duration()); err != nil {
		add("byok.cacheTTL", err.Error())
	}

	if !c.Cache.Enabled {
		return
	}
	switch c.Cache.Type {
	case CacheTypeMemory:
		if c.Cache.MaxEntries < 0 {
			add("cache.maxEntries", "must not be negative")
		}
	case CacheTypeRedis:
		if c.Cache.Redis == nil || c.Cache.Redis.URL == "" {
			add("cache.redis.url", "required for redis cache")
		} else if c.Cache.Redis.TTLJitter < 0 || c.Cache.Redis.TTLJitter > 1 {
			add("cache.redis.ttlJitter", "must be between 0 and 1")
		}
	default:
		add("cache.type", fmt.Sprintf("unsupported cache type %q", c.Cache.Type))
	}
	if err := util.ValidatePositiveDuration(c.Cache.OperationTimeout.Duration()); err != nil {
		add("cache.operationTimeout", err.Error())
	}
}

func (c *Config) validateStore(add func(field, msg string)) {
	switch c.Store.Driver {
	case DriverMemory:
		if c.IsProduction() {
			add("store.driver", "memory store is not allowed in production profile")
		}
	case DriverPostgres, DriverMySQL, DriverSQLite:
		if c.Store.DSN == "" {
			add("store.dsn", "required for "+c.Store.Driver)
		}
	default:
		add("store.driver", fmt.Sprintf("unsupported driver %q", c.Store.Driver))
	}
	if err := util.ValidatePositiveDuration(c.Store.QueryTimeout.Duration()); err != nil {
		add("store.queryTimeout", err.Error())
	}
	cb := c.Store.CircuitBreaker
	if cb.Enabled && (cb.FailureRatio < 0 || cb.FailureRatio > 1) {
		add("store.circuitBreaker.failureRatio", "must be between 0 and 1")
	}
}

func (c *Config) validateVault(add func(field, msg string)) {
	if !c.Vault.Enabled {
		return
	}
	if c.Vault.Address == "" {
		add("vault.address", "required when vault is enabled")
	}
	switch c.Vault.AuthMethod {
	case VaultAuthToken:
		if c.Vault.Token == "" {
			add("vault.token", "required for token auth")
		}
	case VaultAuthAppRole:
		if c.Vault.RoleID == "" || c.Vault.SecretID == "" {
			add("vault.roleId", "roleId and secretId are required for approle auth")
		}
	default:
		add("vault.authMethod", fmt.Sprintf("unsupported auth method %q", c.Vault.AuthMethod))
	}
}
