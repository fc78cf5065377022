package store

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

// schemas holds the table definitions per dialect. They are applied with
// IF NOT EXISTS so repeated calls are harmless.
var schemas = map[string][]string{
	config.DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			routing_name TEXT NOT NULL DEFAULT '',
			rate_limit_per_minute INTEGER NOT NULL DEFAULT 0,
			monthly_token_quota BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			key_hash TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			last_used_at TIMESTAMPTZ NULL
		)`,
		`CREATE INDEX IF NOT EXISTS credentials_tenant_idx ON credentials (tenant_id)`,
		`CREATE TABLE IF NOT EXISTS vendor_secrets (
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			vendor TEXT NOT NULL,
			ciphertext TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (tenant_id, vendor)
		)`,
	},
	config.DriverMySQL: {
		`CREATE TABLE IF NOT EXISTS tenants (
			id VARCHAR(128) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			routing_name VARCHAR(255) NOT NULL DEFAULT '',
			rate_limit_per_minute INT NOT NULL DEFAULT 0,
			monthly_token_quota BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id VARCHAR(36) PRIMARY KEY,
			tenant_id VARCHAR(128) NOT NULL,
			key_hash CHAR(64) NOT NULL UNIQUE,
			label VARCHAR(128) NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME(6) NOT NULL,
			last_used_at DATETIME(6) NULL,
			INDEX credentials_tenant_idx (tenant_id),
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,
		`CREATE TABLE IF NOT EXISTS vendor_secrets (
			tenant_id VARCHAR(128) NOT NULL,
			vendor VARCHAR(128) NOT NULL,
			ciphertext TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			UNIQUE KEY vendor_secrets_tenant_vendor (tenant_id, vendor),
			FOREIGN KEY (tenant_id) REFERENCES tenants(id)
		)`,
	},
	config.DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			routing_name TEXT NOT NULL DEFAULT '',
			rate_limit_per_minute INTEGER NOT NULL DEFAULT 0,
			monthly_token_quota INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			key_hash TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			last_used_at DATETIME NULL
		)`,
		`CREATE INDEX IF NOT EXISTS credentials_tenant_idx ON credentials (tenant_id)`,
		`CREATE TABLE IF NOT EXISTS vendor_secrets (
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			vendor TEXT NOT NULL,
			ciphertext TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (tenant_id, vendor)
		)`,
	},
}

// EnsureSchema creates the tables when they do not exist. It is meant for
// development databases; production schemas are managed externally.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemas[s.dialect.name] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return util.NewDependencyError("store", "ensure_schema", fmt.Errorf("apply schema: %w", err))
		}
	}
	return nil
}
