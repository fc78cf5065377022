package config

import (
	"time"
)

// Profile selects how strictly security settings are enforced.
type Profile string

// Supported profiles.
const (
	ProfileDevelopment Profile = "development"
	ProfileProduction  Profile = "production"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Cache types.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// Vault auth methods.
const (
	VaultAuthToken   = "token"
	VaultAuthAppRole = "approle"
)

// Default configuration values.
const (
	DefaultHashIterations       = 100_000
	DefaultDerivationIterations = 100_000
	DefaultCredentialCacheTTL   = 5 * time.Minute
	DefaultTouchTimeout         = 2 * time.Second
	DefaultCacheTTL             = 5 * time.Minute
	DefaultCacheMaxEntries      = 10_000
	DefaultCacheOpTimeout       = 200 * time.Millisecond
	DefaultQueryTimeout         = 3 * time.Second
	DefaultMaxOpenConns         = 20
	DefaultMaxIdleConns         = 5
	DefaultConnMaxLifetime      = 30 * time.Minute
	DefaultRedisPoolSize        = 10
	DefaultRedisKeyPrefix       = "avakeys:"
	DefaultRedisDialTimeout     = 2 * time.Second
	DefaultVaultKVMount         = "secret"
	DefaultServiceName          = "avakeys"
)

// Config is the root configuration.
type Config struct {
	Profile     Profile           `yaml:"profile" json:"profile"`
	Security    SecurityConfig    `yaml:"security" json:"security"`
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`
	BYOK        BYOKConfig        `yaml:"byok" json:"byok"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	Store       StoreConfig       `yaml:"store" json:"store"`
	Vault       VaultConfig       `yaml:"vault" json:"vault"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Tracing     TracingConfig     `yaml:"tracing" json:"tracing"`
}

// SecurityConfig holds the secrets used for hashing and key derivation.
// MasterSecret and HashSalt may instead be read from Vault through the
// *VaultPath fields.
type SecurityConfig struct {
	MasterSecret          string `yaml:"masterSecret,omitempty" json:"masterSecret,omitempty"`
	MasterSecretVaultPath string `yaml:"masterSecretVaultPath,omitempty" json:"masterSecretVaultPath,omitempty"`
	HashSalt              string `yaml:"hashSalt,omitempty" json:"hashSalt,omitempty"`
	HashSaltVaultPath     string `yaml:"hashSaltVaultPath,omitempty" json:"hashSaltVaultPath,omitempty"`
	HashIterations        int    `yaml:"hashIterations,omitempty" json:"hashIterations,omitempty"`
	DerivationIterations  int    `yaml:"derivationIterations,omitempty" json:"derivationIterations,omitempty"`
	DerivedKeyCacheSize   int    `yaml:"derivedKeyCacheSize,omitempty" json:"derivedKeyCacheSize,omitempty"`
}

// CredentialsConfig configures validation caching and issuance.
type CredentialsConfig struct {
	CacheTTL     Duration `yaml:"cacheTTL,omitempty" json:"cacheTTL,omitempty"`
	TouchTimeout Duration `yaml:"touchTimeout,omitempty" json:"touchTimeout,omitempty"`
}

// BYOKConfig configures the vendor secret vault.
type BYOKConfig struct {
	CacheTTL Duration `yaml:"cacheTTL,omitempty" json:"cacheTTL,omitempty"`

	// StrictVendors rejects vendors without a registered format validator.
	StrictVendors bool `yaml:"strictVendors,omitempty" json:"strictVendors,omitempty"`
}

// CacheConfig configures the cache adapter.
type CacheConfig struct {
	Enabled          bool         `yaml:"enabled" json:"enabled"`
	Type             string       `yaml:"type,omitempty" json:"type,omitempty"`
	TTL              Duration     `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	MaxEntries       int          `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`
	OperationTimeout Duration     `yaml:"operationTimeout,omitempty" json:"operationTimeout,omitempty"`
	Redis            *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	URL         string   `yaml:"url" json:"url"`
	Password    string   `yaml:"password,omitempty" json:"password,omitempty"`
	PoolSize    int      `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
	DialTimeout Duration `yaml:"dialTimeout,omitempty" json:"dialTimeout,omitempty"`
	KeyPrefix   string   `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`

	// TTLJitter spreads expiry by the given fraction (0.0 to 1.0).
	TTLJitter float64 `yaml:"ttlJitter,omitempty" json:"ttlJitter,omitempty"`

	// PasswordVaultPath reads the redis password from Vault KV.
	PasswordVaultPath string `yaml:"passwordVaultPath,omitempty" json:"passwordVaultPath,omitempty"`
}

// StoreConfig configures the persistence adapter.
type StoreConfig struct {
	Driver          string               `yaml:"driver" json:"driver"`
	DSN             string               `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	MaxOpenConns    int                  `yaml:"maxOpenConns,omitempty" json:"maxOpenConns,omitempty"`
	MaxIdleConns    int                  `yaml:"maxIdleConns,omitempty" json:"maxIdleConns,omitempty"`
	ConnMaxLifetime Duration             `yaml:"connMaxLifetime,omitempty" json:"connMaxLifetime,omitempty"`
	QueryTimeout    Duration             `yaml:"queryTimeout,omitempty" json:"queryTimeout,omitempty"`
	AutoMigrate     bool                 `yaml:"autoMigrate,omitempty" json:"autoMigrate,omitempty"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// CircuitBreakerConfig configures the breaker around the store.
type CircuitBreakerConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	MinRequests  int      `yaml:"minRequests,omitempty" json:"minRequests,omitempty"`
	FailureRatio float64  `yaml:"failureRatio,omitempty" json:"failureRatio,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// VaultConfig configures the HashiCorp Vault client.
type VaultConfig struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	Address    string   `yaml:"address,omitempty" json:"address,omitempty"`
	Namespace  string   `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	AuthMethod string   `yaml:"authMethod,omitempty" json:"authMethod,omitempty"`
	Token      string   `yaml:"token,omitempty" json:"token,omitempty"`
	RoleID     string   `yaml:"roleId,omitempty" json:"roleId,omitempty"`
	SecretID   string   `yaml:"secretId,omitempty" json:"secretId,omitempty"`
	KVMount    string   `yaml:"kvMount,omitempty" json:"kvMount,omitempty"`
	Timeout    Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	Insecure     bool    `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// DefaultConfig returns a development configuration backed by in-memory
// store and cache.
func DefaultConfig() *Config {
	cfg := &Config{
		Profile: ProfileDevelopment,
		Cache: CacheConfig{
			Enabled: true,
			Type:    CacheTypeMemory,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Profile == "" {
		c.Profile = ProfileDevelopment
	}

	if c.Security.HashIterations == 0 {
		c.Security.HashIterations = DefaultHashIterations
	}
	if c.Security.DerivationIterations == 0 {
		c.Security.DerivationIterations = DefaultDerivationIterations
	}
	if c.Security.DerivedKeyCacheSize == 0 {
		c.Security.DerivedKeyCacheSize = 1024
	}

	c.Credentials.CacheTTL = c.Credentials.CacheTTL.OrDefault(DefaultCredentialCacheTTL)
	c.Credentials.TouchTimeout = c.Credentials.TouchTimeout.OrDefault(DefaultTouchTimeout)
	if c.BYOK.CacheTTL == 0 {
		c.BYOK.CacheTTL = c.Credentials.CacheTTL
	}

	if c.Cache.Type == "" {
		c.Cache.Type = CacheTypeMemory
	}
	c.Cache.TTL = c.Cache.TTL.OrDefault(DefaultCacheTTL)
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	c.Cache.OperationTimeout = c.Cache.OperationTimeout.OrDefault(DefaultCacheOpTimeout)
	if c.Cache.Redis != nil {
		if c.Cache.Redis.PoolSize == 0 {
			c.Cache.Redis.PoolSize = DefaultRedisPoolSize
		}
		if c.Cache.Redis.KeyPrefix == "" {
			c.Cache.Redis.KeyPrefix = DefaultRedisKeyPrefix
		}
		c.Cache.Redis.DialTimeout = c.Cache.Redis.DialTimeout.OrDefault(DefaultRedisDialTimeout)
	}

	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	c.Store.QueryTimeout = c.Store.QueryTimeout.OrDefault(DefaultQueryTimeout)
	if c.Store.MaxOpenConns == 0 {
		c.Store.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.Store.MaxIdleConns == 0 {
		c.Store.MaxIdleConns = DefaultMaxIdleConns
	}
	c.Store.ConnMaxLifetime = c.Store.ConnMaxLifetime.OrDefault(DefaultConnMaxLifetime)

	if c.Vault.AuthMethod == "" {
		c.Vault.AuthMethod = VaultAuthToken
	}
	if c.Vault.KVMount == "" {
		c.Vault.KVMount = DefaultVaultKVMount
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Profile == ProfileProduction
}
