package health

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avakeys/internal/cache"
)

// DependencyType represents the type of dependency.
type DependencyType string

const (
	// DependencyTypeDatabase is the credential store.
	DependencyTypeDatabase DependencyType = "database"
	// DependencyTypeCache is the validation cache.
	DependencyTypeCache DependencyType = "cache"
	// DependencyTypeSecrets is the secret backend.
	DependencyTypeSecrets DependencyType = "secrets"
	// DependencyTypeCustom is a custom dependency.
	DependencyTypeCustom DependencyType = "custom"
)

// sentinelTTL keeps health sentinels from outliving a crashed check.
const sentinelTTL = 30 * time.Second

// DependencyCheck represents a dependency health check.
type DependencyCheck struct {
	name     string
	depType  DependencyType
	checkFn  func(ctx context.Context) error
	critical bool
}

// Name returns the name of the dependency check.
func (d *DependencyCheck) Name() string {
	return d.name
}

// IsCritical returns true if the dependency is critical.
func (d *DependencyCheck) IsCritical() bool {
	return d.critical
}

func (d *DependencyCheck) run(ctx context.Context) error {
	if d.checkFn == nil {
		return fmt.Errorf("%s: no check function", d.name)
	}
	return d.checkFn(ctx)
}

// DependencyCheckOption is a function that configures a DependencyCheck.
type DependencyCheckOption func(*DependencyCheck)

// WithCritical marks the dependency as critical.
func WithCritical(critical bool) DependencyCheckOption {
	return func(d *DependencyCheck) {
		d.critical = critical
	}
}

// WithName overrides the check name.
func WithName(name string) DependencyCheckOption {
	return func(d *DependencyCheck) {
		if name != "" {
			d.name = name
		}
	}
}

// NewDependencyCheck creates a new dependency check. Checks are critical
// unless configured otherwise.
func NewDependencyCheck(
	name string,
	depType DependencyType,
	checkFn func(ctx context.Context) error,
	opts ...DependencyCheckOption,
) *DependencyCheck {
	d := &DependencyCheck{
		name:     name,
		depType:  depType,
		checkFn:  checkFn,
		critical: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Pinger is implemented by the credential stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck pings the credential store.
func StoreCheck(p Pinger, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck("store", DependencyTypeDatabase, func(ctx context.Context) error {
		if p == nil {
			return errors.New("store is nil")
		}
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("store ping failed: %w", err)
		}
		return nil
	}, opts...)
}

// CacheCheck writes, reads back and deletes a sentinel entry.
func CacheCheck(c cache.Cache, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck("cache", DependencyTypeCache, func(ctx context.Context) error {
		if c == nil {
			return ErrDisabled
		}

		key := "health:sentinel:" + uuid.NewString()
		want := []byte(key)

		if err := c.Set(ctx, key, want, sentinelTTL); err != nil {
			return fmt.Errorf("cache set failed: %w", err)
		}
		defer func() { _ = c.Delete(context.WithoutCancel(ctx), key) }()

		got, err := c.Get(ctx, key)
		switch {
		case errors.Is(err, cache.ErrCacheDisabled):
			return ErrDisabled
		case err != nil:
			return fmt.Errorf("cache get failed: %w", err)
		case !bytes.Equal(got, want):
			return errors.New("cache returned a different value for the sentinel key")
		}
		return nil
	}, opts...)
}

// SecretsBackend is implemented by the Vault client.
type SecretsBackend interface {
	IsEnabled() bool
	Health(ctx context.Context) error
}

// VaultCheck queries the Vault server's health endpoint.
func VaultCheck(b SecretsBackend, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck("vault", DependencyTypeSecrets, func(ctx context.Context) error {
		if b == nil || !b.IsEnabled() {
			return ErrDisabled
		}
		return b.Health(ctx)
	}, opts...)
}

// CustomCheck creates a custom health check.
func CustomCheck(
	name string,
	checkFn func(ctx context.Context) error,
	opts ...DependencyCheckOption,
) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeCustom, checkFn, opts...)
}
