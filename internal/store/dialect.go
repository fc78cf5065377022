package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/vyrodovalexey/avakeys/internal/config"
)

// dialect captures the SQL differences between supported databases.
type dialect struct {
	name       string
	driverName string

	// numbered placeholders ($1, $2) instead of '?'
	numbered bool

	// upsert clause appended to the vendor secret and tenant inserts
	upsertSecret string
	upsertTenant string

	isUniqueViolation func(err error) bool
	isFKViolation     func(err error) bool
	normalizeDSN      func(dsn string) (string, error)
}

var dialects = map[string]*dialect{
	config.DriverPostgres: {
		name:       config.DriverPostgres,
		driverName: "postgres",
		numbered:   true,
		upsertSecret: ` ON CONFLICT (tenant_id, vendor) DO UPDATE SET ` +
			`ciphertext = EXCLUDED.ciphertext, active = TRUE, updated_at = EXCLUDED.updated_at`,
		upsertTenant: ` ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, ` +
			`routing_name = EXCLUDED.routing_name, rate_limit_per_minute = EXCLUDED.rate_limit_per_minute, ` +
			`monthly_token_quota = EXCLUDED.monthly_token_quota, active = EXCLUDED.active`,
		isUniqueViolation: func(err error) bool { return pqCode(err) == "23505" },
		isFKViolation:     func(err error) bool { return pqCode(err) == "23503" },
		normalizeDSN:      func(dsn string) (string, error) { return dsn, nil },
	},
	config.DriverMySQL: {
		name:       config.DriverMySQL,
		driverName: "mysql",
		upsertSecret: ` ON DUPLICATE KEY UPDATE ciphertext = VALUES(ciphertext), ` +
			`active = TRUE, updated_at = VALUES(updated_at)`,
		upsertTenant: ` ON DUPLICATE KEY UPDATE name = VALUES(name), routing_name = VALUES(routing_name), ` +
			`rate_limit_per_minute = VALUES(rate_limit_per_minute), ` +
			`monthly_token_quota = VALUES(monthly_token_quota), active = VALUES(active)`,
		isUniqueViolation: func(err error) bool { return mysqlNumber(err) == 1062 },
		isFKViolation:     func(err error) bool { return mysqlNumber(err) == 1452 },
		normalizeDSN:      normalizeMySQLDSN,
	},
	config.DriverSQLite: {
		name:       config.DriverSQLite,
		driverName: "sqlite",
		upsertSecret: ` ON CONFLICT (tenant_id, vendor) DO UPDATE SET ` +
			`ciphertext = excluded.ciphertext, active = TRUE, updated_at = excluded.updated_at`,
		upsertTenant: ` ON CONFLICT (id) DO UPDATE SET name = excluded.name, ` +
			`routing_name = excluded.routing_name, rate_limit_per_minute = excluded.rate_limit_per_minute, ` +
			`monthly_token_quota = excluded.monthly_token_quota, active = excluded.active`,
		isUniqueViolation: func(err error) bool {
			code := sqliteCode(err)
			return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
		},
		isFKViolation: func(err error) bool {
			return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
		},
		normalizeDSN: func(dsn string) (string, error) { return dsn, nil },
	},
}

func dialectFor(driver string) (*dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	return d, nil
}

// rebind rewrites '?' placeholders for dialects with numbered parameters.
func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func mysqlNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

func sqliteCode(err error) int {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()
	}
	return 0
}

// normalizeMySQLDSN forces parseTime so DATETIME columns scan into time.Time.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
