package secure

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// tenantSaltDomain prefixes the tenant id before hashing it into a salt.
const tenantSaltDomain = "avakeys/tenant-key/v1:"

// DefaultDerivedKeyCacheSize bounds the number of memoized tenant keys.
const DefaultDerivedKeyCacheSize = 1024

// Deriver derives per-tenant AES keys from the master secret.
type Deriver struct {
	master     *SecureBuffer
	iterations int
	maxKeys    int

	mu    sync.Mutex
	keys  map[string]*SecureBuffer
	order []string
}

// DeriverOption configures a Deriver.
type DeriverOption func(*Deriver)

// WithIterations sets the PBKDF2 iteration count.
func WithIterations(n int) DeriverOption {
	return func(d *Deriver) {
		d.iterations = n
	}
}

// WithKeyCacheSize bounds the memoized key map. Zero disables memoization.
func WithKeyCacheSize(n int) DeriverOption {
	return func(d *Deriver) {
		d.maxKeys = n
	}
}

// NewDeriver creates a Deriver over master.
func NewDeriver(master *SecureBuffer, opts ...DeriverOption) (*Deriver, error) {
	if master == nil {
		return nil, util.NewConfigError("security.masterSecret", "master secret is required")
	}

	d := &Deriver{
		master:     master,
		iterations: config.DefaultDerivationIterations,
		maxKeys:    DefaultDerivedKeyCacheSize,
		keys:       make(map[string]*SecureBuffer),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.iterations < config.MinIterations {
		return nil, util.NewConfigError("security.derivationIterations",
			fmt.Sprintf("must be at least %d", config.MinIterations))
	}
	return d, nil
}

// DeriveTenantKey returns the tenant's 32-byte key. The result is
// deterministic for a given master secret, tenant id and iteration count.
func (d *Deriver) DeriveTenantKey(tenantID string) ([KeySize]byte, error) {
	var out [KeySize]byte

	lb, err := d.TenantKey(tenantID)
	if err != nil {
		return out, err
	}
	defer lb.Destroy()

	copy(out[:], lb.Bytes())
	return out, nil
}

// TenantKey returns the tenant's key in a locked buffer. The caller must
// Destroy it.
func (d *Deriver) TenantKey(tenantID string) (*memguard.LockedBuffer, error) {
	if tenantID == "" {
		return nil, util.NewCryptoError("derive", errEmptyTenantID)
	}

	d.mu.Lock()
	cached, ok := d.keys[tenantID]
	d.mu.Unlock()
	if ok {
		// A concurrent eviction may destroy cached; derive again then.
		if lb, err := cached.Open(); err == nil {
			return lb, nil
		}
	}

	key, err := d.derive(tenantID)
	if err != nil {
		return nil, err
	}

	lb := memguard.NewBufferFromBytes(append([]byte(nil), key...))
	d.remember(tenantID, key)
	return lb, nil
}

func (d *Deriver) derive(tenantID string) ([]byte, error) {
	master, err := d.master.Open()
	if err != nil {
		return nil, err
	}
	defer master.Destroy()

	tenantSalt := sha256.Sum256([]byte(tenantSaltDomain + tenantID))
	masterHash := sha256.Sum256(master.Bytes())

	salt := make([]byte, 0, 2*sha256.Size)
	salt = append(salt, tenantSalt[:]...)
	salt = append(salt, masterHash[:]...)

	return pbkdf2.Key(master.Bytes(), salt, d.iterations, KeySize, sha256.New), nil
}

// remember memoizes key, evicting the oldest entry when full. key is wiped.
func (d *Deriver) remember(tenantID string, key []byte) {
	if d.maxKeys <= 0 {
		memguard.WipeBytes(key)
		return
	}

	buf, err := NewSecureBuffer(key)
	if err != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.keys[tenantID]; exists {
		buf.Destroy()
		return
	}
	for len(d.order) >= d.maxKeys {
		oldest := d.order[0]
		d.order = d.order[1:]
		if old, ok := d.keys[oldest]; ok {
			old.Destroy()
			delete(d.keys, oldest)
		}
	}
	d.keys[tenantID] = buf
	d.order = append(d.order, tenantID)
}

// CachedKeys returns the number of memoized tenant keys.
func (d *Deriver) CachedKeys() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}

// Destroy drops every memoized key.
func (d *Deriver) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, buf := range d.keys {
		buf.Destroy()
		delete(d.keys, id)
	}
	d.order = nil
}
