package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avakeys/internal/circuitbreaker"
	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

var storeTracer = otel.Tracer("avakeys/store")

const (
	tenantColumns     = "id, name, routing_name, rate_limit_per_minute, monthly_token_quota, active, created_at"
	credentialColumns = "id, tenant_id, key_hash, label, active, created_at, last_used_at"
	secretColumns     = "tenant_id, vendor, ciphertext, active, created_at, updated_at"
)

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db           *sql.DB
	dialect      *dialect
	breaker      *circuitbreaker.CircuitBreaker
	queryTimeout time.Duration
	logger       observability.Logger
	metrics      *Metrics
}

// SQLOption is a functional option for SQLStore.
type SQLOption func(*SQLStore)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) SQLOption {
	return func(s *SQLStore) {
		s.logger = logger
	}
}

// WithCircuitBreaker guards every statement with the given breaker.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) SQLOption {
	return func(s *SQLStore) {
		s.breaker = cb
	}
}

// WithQueryTimeout bounds every statement.
func WithQueryTimeout(d time.Duration) SQLOption {
	return func(s *SQLStore) {
		s.queryTimeout = d
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *Metrics) SQLOption {
	return func(s *SQLStore) {
		s.metrics = metrics
	}
}

var _ Store = (*SQLStore)(nil)

// Open opens a database for the configured driver and applies pool settings.
func Open(cfg config.StoreConfig, opts ...SQLOption) (*SQLStore, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := d.normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("store.dsn", "cannot parse dsn", err)
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite has a single writer; an in-memory database also lives
		// and dies with its only connection.
		db.SetMaxOpenConns(1)
		if strings.Contains(dsn, ":memory:") {
			db.SetMaxIdleConns(1)
			db.SetConnMaxLifetime(0)
		}
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration())
	}

	opts = append([]SQLOption{WithQueryTimeout(cfg.QueryTimeout.Duration())}, opts...)
	return NewSQLStore(db, cfg.Driver, opts...)
}

// NewSQLStore wraps an existing *sql.DB.
func NewSQLStore(db *sql.DB, driver string, opts ...SQLOption) (*SQLStore, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	s := &SQLStore{
		db:      db,
		dialect: d,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB returns the underlying database handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// run executes fn with the query timeout, breaker, span and metrics applied
// and maps unexpected failures to DependencyError.
func (s *SQLStore) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := storeTracer.Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", s.dialect.name),
			attribute.String("db.operation", op),
		),
	)
	defer span.End()

	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	exec := func() error { return fn(ctx) }

	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(exec)
	} else {
		err = exec()
	}

	if err != nil && !IsExpectedError(err) {
		err = util.NewDependencyError("store", op, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("store operation failed",
			observability.String("op", op),
			observability.String("driver", s.dialect.name),
			observability.Error(err),
		)
	}

	if s.metrics != nil {
		s.metrics.observe(s.dialect.name, op, err, time.Since(start))
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*Tenant, error) {
	var t Tenant
	if err := row.Scan(tenantDest(&t)...); err != nil {
		return nil, err
	}
	return &t, nil
}

func tenantDest(t *Tenant) []any {
	return []any{&t.ID, &t.Name, &t.RoutingName, &t.RateLimitPerMinute, &t.MonthlyTokenQuota, &t.Active, &t.CreatedAt}
}

func credentialDest(c *Credential, lastUsed *sql.NullTime) []any {
	return []any{&c.ID, &c.TenantID, &c.Hash, &c.Label, &c.Active, &c.CreatedAt, lastUsed}
}

func finishCredential(c *Credential, lastUsed sql.NullTime) *Credential {
	if lastUsed.Valid {
		at := lastUsed.Time
		c.LastUsedAt = &at
	}
	return c
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// GetTenant retrieves a tenant by id.
func (s *SQLStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var tenant *Tenant
	err := s.run(ctx, "get_tenant", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx,
			s.dialect.rebind("SELECT "+tenantColumns+" FROM tenants WHERE id = ?"), id)
		t, err := scanTenant(row)
		if err != nil {
			return notFound(err)
		}
		tenant = t
		return nil
	})
	return tenant, err
}

// PutTenant inserts or replaces a tenant.
func (s *SQLStore) PutTenant(ctx context.Context, tenant *Tenant) error {
	createdAt := tenant.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return s.run(ctx, "put_tenant", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			s.dialect.rebind("INSERT INTO tenants ("+tenantColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)")+
				s.dialect.upsertTenant,
			tenant.ID, tenant.Name, tenant.RoutingName, tenant.RateLimitPerMinute,
			tenant.MonthlyTokenQuota, tenant.Active, createdAt)
		return err
	})
}

// InsertCredential stores a new credential.
func (s *SQLStore) InsertCredential(ctx context.Context, cred *Credential) error {
	return s.run(ctx, "insert_credential", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			s.dialect.rebind("INSERT INTO credentials (id, tenant_id, key_hash, label, active, created_at) "+
				"VALUES (?, ?, ?, ?, ?, ?)"),
			cred.ID, cred.TenantID, cred.Hash, cred.Label, cred.Active, cred.CreatedAt.UTC())
		switch {
		case err == nil:
			return nil
		case s.dialect.isUniqueViolation(err):
			constraint := ConstraintCredentialID
			if strings.Contains(err.Error(), "key_hash") {
				constraint = ConstraintCredentialHash
			}
			return util.NewIntegrityError(constraint, err)
		case s.dialect.isFKViolation(err):
			return util.NewIntegrityError(ConstraintCredentialFK, err)
		default:
			return err
		}
	})
}

// FindActiveCredential returns the tenant and credential for an active hash.
func (s *SQLStore) FindActiveCredential(ctx context.Context, hash string) (*Tenant, *Credential, error) {
	var (
		tenant *Tenant
		cred   *Credential
	)
	err := s.run(ctx, "find_active_credential", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, s.dialect.rebind(
			"SELECT t.id, t.name, t.routing_name, t.rate_limit_per_minute, t.monthly_token_quota, "+
				"t.active, t.created_at, c.id, c.tenant_id, c.key_hash, c.label, c.active, "+
				"c.created_at, c.last_used_at "+
				"FROM credentials c JOIN tenants t ON t.id = c.tenant_id "+
				"WHERE c.key_hash = ? AND c.active = TRUE AND t.active = TRUE"), hash)

		var (
			t        Tenant
			c        Credential
			lastUsed sql.NullTime
		)
		dest := append(tenantDest(&t), credentialDest(&c, &lastUsed)...)
		if err := row.Scan(dest...); err != nil {
			return notFound(err)
		}
		tenant = &t
		cred = finishCredential(&c, lastUsed)
		return nil
	})
	return tenant, cred, err
}

// GetCredential retrieves a credential by id.
func (s *SQLStore) GetCredential(ctx context.Context, id string) (*Credential, error) {
	var cred *Credential
	err := s.run(ctx, "get_credential", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx,
			s.dialect.rebind("SELECT "+credentialColumns+" FROM credentials WHERE id = ?"), id)
		var (
			c        Credential
			lastUsed sql.NullTime
		)
		if err := row.Scan(credentialDest(&c, &lastUsed)...); err != nil {
			return notFound(err)
		}
		cred = finishCredential(&c, lastUsed)
		return nil
	})
	return cred, err
}

// TouchCredential sets the last-used timestamp.
func (s *SQLStore) TouchCredential(ctx context.Context, id string, at time.Time) error {
	return s.run(ctx, "touch_credential", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			s.dialect.rebind("UPDATE credentials SET last_used_at = ? WHERE id = ?"), at.UTC(), id)
		return err
	})
}

// DeactivateCredential marks an active credential inactive in one statement.
func (s *SQLStore) DeactivateCredential(ctx context.Context, id string) (bool, error) {
	var changed bool
	err := s.run(ctx, "deactivate_credential", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			s.dialect.rebind("UPDATE credentials SET active = FALSE WHERE id = ? AND active = TRUE"), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n > 0
		return nil
	})
	return changed, err
}

// ListCredentials returns a tenant's credentials, oldest first.
func (s *SQLStore) ListCredentials(ctx context.Context, tenantID string) ([]*Credential, error) {
	creds := make([]*Credential, 0)
	err := s.run(ctx, "list_credentials", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
			"SELECT "+credentialColumns+" FROM credentials WHERE tenant_id = ? ORDER BY created_at, id"), tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				c        Credential
				lastUsed sql.NullTime
			)
			if err := rows.Scan(credentialDest(&c, &lastUsed)...); err != nil {
				return err
			}
			creds = append(creds, finishCredential(&c, lastUsed))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return creds, nil
}

// UpsertVendorSecret inserts or replaces a vendor secret.
func (s *SQLStore) UpsertVendorSecret(ctx context.Context, secret *VendorSecret) error {
	now := time.Now().UTC()
	createdAt, updatedAt := secret.CreatedAt, secret.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return s.run(ctx, "upsert_vendor_secret", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			s.dialect.rebind("INSERT INTO vendor_secrets ("+secretColumns+") VALUES (?, ?, ?, TRUE, ?, ?)")+
				s.dialect.upsertSecret,
			secret.TenantID, secret.Vendor, secret.Ciphertext, createdAt.UTC(), updatedAt.UTC())
		if err != nil && s.dialect.isFKViolation(err) {
			return util.NewIntegrityError("vendor_secrets.tenant_id", err)
		}
		return err
	})
}

// GetVendorSecret retrieves a vendor secret.
func (s *SQLStore) GetVendorSecret(ctx context.Context, tenantID, vendor string) (*VendorSecret, error) {
	var secret *VendorSecret
	err := s.run(ctx, "get_vendor_secret", func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, s.dialect.rebind(
			"SELECT "+secretColumns+" FROM vendor_secrets WHERE tenant_id = ? AND vendor = ?"), tenantID, vendor)
		var v VendorSecret
		if err := row.Scan(&v.TenantID, &v.Vendor, &v.Ciphertext, &v.Active, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return notFound(err)
		}
		secret = &v
		return nil
	})
	return secret, err
}

// DeleteVendorSecret removes a vendor secret.
func (s *SQLStore) DeleteVendorSecret(ctx context.Context, tenantID, vendor string) (bool, error) {
	var deleted bool
	err := s.run(ctx, "delete_vendor_secret", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, s.dialect.rebind(
			"DELETE FROM vendor_secrets WHERE tenant_id = ? AND vendor = ?"), tenantID, vendor)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// ListVendorSecrets returns a tenant's vendor secrets ordered by vendor.
func (s *SQLStore) ListVendorSecrets(ctx context.Context, tenantID string) ([]*VendorSecret, error) {
	secrets := make([]*VendorSecret, 0)
	err := s.run(ctx, "list_vendor_secrets", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
			"SELECT "+secretColumns+" FROM vendor_secrets WHERE tenant_id = ? ORDER BY vendor"), tenantID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var v VendorSecret
			if err := rows.Scan(&v.TenantID, &v.Vendor, &v.Ciphertext, &v.Active, &v.CreatedAt, &v.UpdatedAt); err != nil {
				return err
			}
			secrets = append(secrets, &v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return secrets, nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.run(ctx, "ping", func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
