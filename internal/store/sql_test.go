package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avakeys/internal/circuitbreaker"
	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

func newMockStore(t *testing.T, driver string, opts ...SQLOption) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLStore(db, driver, opts...)
	require.NoError(t, err)
	return s, mock
}

func TestDialect_Rebind(t *testing.T) {
	t.Parallel()

	pg, err := dialectFor(config.DriverPostgres)
	require.NoError(t, err)
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	my, err := dialectFor(config.DriverMySQL)
	require.NoError(t, err)
	assert.Equal(t, "a = ? AND b = ?", my.rebind("a = ? AND b = ?"))

	_, err = dialectFor("oracle")
	assert.Error(t, err)
}

func TestNormalizeMySQLDSN(t *testing.T) {
	t.Parallel()

	dsn, err := normalizeMySQLDSN("user:pw@tcp(localhost:3306)/keys")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")

	_, err = normalizeMySQLDSN("not a dsn")
	assert.Error(t, err)
}

func TestSQLStore_InsertCredential_UniqueViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		driver     string
		query      string
		dbErr      error
		wantErr    error
		constraint string
	}{
		{
			name:       "postgres duplicate hash",
			driver:     config.DriverPostgres,
			query:      "VALUES ($1, $2, $3, $4, $5, $6)",
			dbErr:      &pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "credentials_key_hash_key"`},
			wantErr:    util.ErrIntegrity,
			constraint: ConstraintCredentialHash,
		},
		{
			name:       "mysql duplicate hash",
			driver:     config.DriverMySQL,
			query:      "VALUES (?, ?, ?, ?, ?, ?)",
			dbErr:      &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'credentials.key_hash'"},
			wantErr:    util.ErrIntegrity,
			constraint: ConstraintCredentialHash,
		},
		{
			name:       "mysql duplicate id",
			driver:     config.DriverMySQL,
			query:      "VALUES (?, ?, ?, ?, ?, ?)",
			dbErr:      &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'x' for key 'PRIMARY'"},
			wantErr:    util.ErrIntegrity,
			constraint: ConstraintCredentialID,
		},
		{
			name:       "postgres missing tenant",
			driver:     config.DriverPostgres,
			query:      "VALUES ($1, $2, $3, $4, $5, $6)",
			dbErr:      &pq.Error{Code: "23503"},
			wantErr:    util.ErrIntegrity,
			constraint: ConstraintCredentialFK,
		},
		{
			name:    "connection failure",
			driver:  config.DriverPostgres,
			query:   "VALUES ($1, $2, $3, $4, $5, $6)",
			dbErr:   errors.New("connection refused"),
			wantErr: util.ErrDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, mock := newMockStore(t, tt.driver)
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credentials (id, tenant_id, key_hash, label, active, created_at) " + tt.query)).
				WithArgs("c1", "acme", "h1", "ci", true, sqlmock.AnyArg()).
				WillReturnError(tt.dbErr)

			err := s.InsertCredential(context.Background(), &Credential{
				ID: "c1", TenantID: "acme", Hash: "h1", Label: "ci", Active: true, CreatedAt: time.Now(),
			})
			assert.ErrorIs(t, err, tt.wantErr)

			var integrity *util.IntegrityError
			if tt.constraint != "" {
				require.ErrorAs(t, err, &integrity)
				assert.Equal(t, tt.constraint, integrity.Constraint)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_FindActiveCredential(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, config.DriverPostgres)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	used := created.Add(time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "name", "routing_name", "rate_limit_per_minute", "monthly_token_quota", "active", "created_at",
		"id", "tenant_id", "key_hash", "label", "active", "created_at", "last_used_at",
	}).AddRow("acme", "Acme", "acme-route", 120, int64(5_000_000), true, created,
		"c1", "acme", "h1", "ci", true, created, used)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.key_hash = $1 AND c.active = TRUE AND t.active = TRUE")).
		WithArgs("h1").
		WillReturnRows(rows)

	tenant, cred, err := s.FindActiveCredential(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", tenant.Name)
	assert.Equal(t, 120, tenant.RateLimitPerMinute)
	assert.Equal(t, int64(5_000_000), tenant.MonthlyTokenQuota)
	assert.Equal(t, "c1", cred.ID)
	require.NotNil(t, cred.LastUsedAt)
	assert.True(t, used.Equal(*cred.LastUsedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_FindActiveCredential_NotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, config.DriverMySQL)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.key_hash = ?")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, _, err := s.FindActiveCredential(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, util.ErrDependency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_DeactivateCredential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"active credential", 1, true},
		{"already inactive", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, mock := newMockStore(t, config.DriverPostgres)
			mock.ExpectExec(regexp.QuoteMeta("UPDATE credentials SET active = FALSE WHERE id = $1 AND active = TRUE")).
				WithArgs("c1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			changed, err := s.DeactivateCredential(context.Background(), "c1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, changed)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_UpsertVendorSecret(t *testing.T) {
	t.Parallel()

	tests := []struct {
		driver string
		clause string
	}{
		{config.DriverPostgres, "ON CONFLICT (tenant_id, vendor) DO UPDATE SET ciphertext = EXCLUDED.ciphertext"},
		{config.DriverMySQL, "ON DUPLICATE KEY UPDATE ciphertext = VALUES(ciphertext)"},
		{config.DriverSQLite, "ON CONFLICT (tenant_id, vendor) DO UPDATE SET ciphertext = excluded.ciphertext"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()

			s, mock := newMockStore(t, tt.driver)
			mock.ExpectExec(regexp.QuoteMeta(tt.clause)).
				WithArgs("acme", "openai", "blob", sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := s.UpsertVendorSecret(context.Background(), &VendorSecret{
				TenantID: "acme", Vendor: "openai", Ciphertext: "blob",
			})
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_ListCredentials(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, config.DriverPostgres)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "key_hash", "label", "active", "created_at", "last_used_at"}).
		AddRow("c1", "acme", "h1", "a", true, created, nil).
		AddRow("c2", "acme", "h2", "b", false, created.Add(time.Minute), created.Add(time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("FROM credentials WHERE tenant_id = $1 ORDER BY created_at, id")).
		WithArgs("acme").
		WillReturnRows(rows)

	creds, err := s.ListCredentials(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Nil(t, creds[0].LastUsedAt)
	assert.False(t, creds[1].Active)
	assert.NotNil(t, creds[1].LastUsedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_DeleteVendorSecret(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, config.DriverMySQL)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM vendor_secrets WHERE tenant_id = ? AND vendor = ?")).
		WithArgs("acme", "openai").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := s.DeleteVendorSecret(context.Background(), "acme", "openai")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_QueryTimeout(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t, config.DriverPostgres, WithQueryTimeout(10*time.Millisecond))
	mock.ExpectQuery(regexp.QuoteMeta("FROM tenants WHERE id = $1")).
		WithArgs("acme").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetTenant(context.Background(), "acme")
	assert.ErrorIs(t, err, util.ErrDependency)
}

func TestSQLStore_CircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	cbCfg := circuitbreaker.DefaultConfig().
		WithMinRequests(2).
		WithTimeout(time.Hour).
		WithIsSuccessful(IsExpectedError)
	breaker := circuitbreaker.New("store", cbCfg)

	metrics := NewMetrics("test")
	metrics.MustRegister(prometheus.NewRegistry())

	s, mock := newMockStore(t, config.DriverPostgres, WithCircuitBreaker(breaker), WithMetrics(metrics))

	// Not-found outcomes must not trip the breaker.
	for i := 0; i < 3; i++ {
		mock.ExpectQuery(regexp.QuoteMeta("FROM credentials WHERE id = $1")).WillReturnError(sql.ErrNoRows)
		_, err := s.GetCredential(context.Background(), "missing")
		require.ErrorIs(t, err, ErrNotFound)
	}

	for i := 0; i < 3; i++ {
		mock.ExpectQuery(regexp.QuoteMeta("FROM credentials WHERE id = $1")).WillReturnError(errors.New("down"))
		_, err := s.GetCredential(context.Background(), "c1")
		require.ErrorIs(t, err, util.ErrDependency)
	}

	_, err := s.GetCredential(context.Background(), "c1")
	assert.ErrorIs(t, err, util.ErrDependency)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("postgres", "get_credential", "not_found")))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("postgres", "get_credential", "error")))
}
