package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vyrodovalexey/avakeys/internal/util"
)

// MemoryStore is an in-memory implementation of the Store interface.
type MemoryStore struct {
	mu          sync.RWMutex
	tenants     map[string]*Tenant
	credentials map[string]*Credential
	byHash      map[string]string
	secrets     map[secretKey]*VendorSecret
	closed      bool
}

type secretKey struct {
	tenantID string
	vendor   string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[string]*Tenant),
		credentials: make(map[string]*Credential),
		byHash:      make(map[string]string),
		secrets:     make(map[secretKey]*VendorSecret),
	}
}

var _ Store = (*MemoryStore)(nil)

// GetTenant retrieves a tenant by id.
func (s *MemoryStore) GetTenant(_ context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTenant(t), nil
}

// PutTenant inserts or replaces a tenant.
func (s *MemoryStore) PutTenant(_ context.Context, tenant *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := cloneTenant(tenant)
	if existing, ok := s.tenants[t.ID]; ok && t.CreatedAt.IsZero() {
		t.CreatedAt = existing.CreatedAt
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.tenants[t.ID] = t
	return nil
}

// InsertCredential stores a new credential.
func (s *MemoryStore) InsertCredential(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[cred.TenantID]; !ok {
		return util.NewIntegrityError(ConstraintCredentialFK, ErrNotFound)
	}
	if _, ok := s.byHash[cred.Hash]; ok {
		return util.NewIntegrityError(ConstraintCredentialHash, nil)
	}
	if _, ok := s.credentials[cred.ID]; ok {
		return util.NewIntegrityError(ConstraintCredentialID, nil)
	}

	s.credentials[cred.ID] = cloneCredential(cred)
	s.byHash[cred.Hash] = cred.ID
	return nil
}

// FindActiveCredential returns the tenant and credential for an active hash.
func (s *MemoryStore) FindActiveCredential(_ context.Context, hash string) (*Tenant, *Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, nil, ErrNotFound
	}
	cred := s.credentials[id]
	if !cred.Active {
		return nil, nil, ErrNotFound
	}
	tenant, ok := s.tenants[cred.TenantID]
	if !ok || !tenant.Active {
		return nil, nil, ErrNotFound
	}
	return cloneTenant(tenant), cloneCredential(cred), nil
}

// GetCredential retrieves a credential by id.
func (s *MemoryStore) GetCredential(_ context.Context, id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneCredential(cred), nil
}

// TouchCredential sets the last-used timestamp.
func (s *MemoryStore) TouchCredential(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	cred.LastUsedAt = &at
	return nil
}

// DeactivateCredential marks an active credential inactive.
func (s *MemoryStore) DeactivateCredential(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[id]
	if !ok || !cred.Active {
		return false, nil
	}
	cred.Active = false
	return true, nil
}

// ListCredentials returns a tenant's credentials, oldest first.
func (s *MemoryStore) ListCredentials(_ context.Context, tenantID string) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := make([]*Credential, 0)
	for _, cred := range s.credentials {
		if cred.TenantID == tenantID {
			creds = append(creds, cloneCredential(cred))
		}
	}
	sort.Slice(creds, func(i, j int) bool {
		if creds[i].CreatedAt.Equal(creds[j].CreatedAt) {
			return creds[i].ID < creds[j].ID
		}
		return creds[i].CreatedAt.Before(creds[j].CreatedAt)
	})
	return creds, nil
}

// UpsertVendorSecret inserts or replaces a vendor secret.
func (s *MemoryStore) UpsertVendorSecret(_ context.Context, secret *VendorSecret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := secretKey{tenantID: secret.TenantID, vendor: secret.Vendor}
	next := cloneVendorSecret(secret)
	next.Active = true
	if existing, ok := s.secrets[key]; ok {
		next.CreatedAt = existing.CreatedAt
	}
	s.secrets[key] = next
	return nil
}

// GetVendorSecret retrieves a vendor secret.
func (s *MemoryStore) GetVendorSecret(_ context.Context, tenantID, vendor string) (*VendorSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[secretKey{tenantID: tenantID, vendor: vendor}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneVendorSecret(secret), nil
}

// DeleteVendorSecret removes a vendor secret.
func (s *MemoryStore) DeleteVendorSecret(_ context.Context, tenantID, vendor string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := secretKey{tenantID: tenantID, vendor: vendor}
	if _, ok := s.secrets[key]; !ok {
		return false, nil
	}
	delete(s.secrets, key)
	return true, nil
}

// ListVendorSecrets returns a tenant's vendor secrets ordered by vendor.
func (s *MemoryStore) ListVendorSecrets(_ context.Context, tenantID string) ([]*VendorSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secrets := make([]*VendorSecret, 0)
	for key, secret := range s.secrets {
		if key.tenantID == tenantID {
			secrets = append(secrets, cloneVendorSecret(secret))
		}
	}
	sort.Slice(secrets, func(i, j int) bool { return secrets[i].Vendor < secrets[j].Vendor })
	return secrets, nil
}

// Ping always succeeds until the store is closed.
func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return util.NewDependencyError("store", "ping", errStoreClosed)
	}
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Count returns the number of stored credentials.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.credentials)
}
