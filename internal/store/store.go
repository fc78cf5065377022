package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/avakeys/internal/util"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = fmt.Errorf("record %w", util.ErrNotFound)

var errStoreClosed = errors.New("store is closed")

// Constraint names reported in IntegrityError.
const (
	ConstraintCredentialHash = "credentials.key_hash"
	ConstraintCredentialID   = "credentials.id"
	ConstraintCredentialFK   = "credentials.tenant_id"
)

// Tenant is an isolated customer account.
type Tenant struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	RoutingName        string    `json:"routing_name,omitempty"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	MonthlyTokenQuota  int64     `json:"monthly_token_quota"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
}

// Credential is a stored tenant API key. Only the hash is persisted.
type Credential struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Hash       string     `json:"-"`
	Label      string     `json:"label,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// VendorSecret is an encrypted third-party credential owned by a tenant.
type VendorSecret struct {
	TenantID   string    `json:"tenant_id"`
	Vendor     string    `json:"vendor"`
	Ciphertext string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists tenants, credentials and vendor secrets.
type Store interface {
	// GetTenant returns a tenant by id.
	GetTenant(ctx context.Context, id string) (*Tenant, error)

	// PutTenant inserts or replaces a tenant.
	PutTenant(ctx context.Context, tenant *Tenant) error

	// InsertCredential stores a new credential. A duplicate hash or id
	// returns *util.IntegrityError.
	InsertCredential(ctx context.Context, cred *Credential) error

	// FindActiveCredential returns the owning tenant and credential for a
	// hash when both the credential and the tenant are active.
	FindActiveCredential(ctx context.Context, hash string) (*Tenant, *Credential, error)

	// GetCredential returns a credential by id regardless of state.
	GetCredential(ctx context.Context, id string) (*Credential, error)

	// TouchCredential sets the last-used timestamp.
	TouchCredential(ctx context.Context, id string, at time.Time) error

	// DeactivateCredential flips an active credential to inactive and
	// reports whether this call changed it.
	DeactivateCredential(ctx context.Context, id string) (bool, error)

	// ListCredentials returns a tenant's credentials, oldest first.
	ListCredentials(ctx context.Context, tenantID string) ([]*Credential, error)

	// UpsertVendorSecret inserts or replaces the secret for (tenant, vendor).
	UpsertVendorSecret(ctx context.Context, secret *VendorSecret) error

	// GetVendorSecret returns the secret for (tenant, vendor).
	GetVendorSecret(ctx context.Context, tenantID, vendor string) (*VendorSecret, error)

	// DeleteVendorSecret removes the secret and reports whether it existed.
	DeleteVendorSecret(ctx context.Context, tenantID, vendor string) (bool, error)

	// ListVendorSecrets returns a tenant's secrets ordered by vendor.
	ListVendorSecrets(ctx context.Context, tenantID string) ([]*VendorSecret, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// IsExpectedError reports whether err is a normal outcome that must not
// count against backend health, such as a missing row or a duplicate key.
func IsExpectedError(err error) bool {
	return err == nil ||
		errors.Is(err, util.ErrNotFound) ||
		errors.Is(err, util.ErrIntegrity) ||
		errors.Is(err, context.Canceled)
}

func cloneTenant(t *Tenant) *Tenant {
	c := *t
	return &c
}

func cloneCredential(c *Credential) *Credential {
	out := *c
	if c.LastUsedAt != nil {
		at := *c.LastUsedAt
		out.LastUsedAt = &at
	}
	return &out
}

func cloneVendorSecret(s *VendorSecret) *VendorSecret {
	c := *s
	return &c
}
