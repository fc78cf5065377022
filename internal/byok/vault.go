package byok

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avakeys/internal/cache"
	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/secure"
	"github.com/vyrodovalexey/avakeys/internal/store"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

const tracerName = "avakeys/byok"

// MaxSecretLength bounds the plaintext accepted by Store.
const MaxSecretLength = 4096

// Vault encrypts, persists and caches tenant vendor secrets.
type Vault struct {
	store        store.Store
	cache        cache.TaggedCache
	envelope     *secure.Envelope
	registry     *Registry
	logger       observability.Logger
	metrics      *Metrics
	cacheTTL     time.Duration
	cacheTimeout time.Duration
	now          func() time.Time
}

// Option is a functional option for the vault.
type Option func(*Vault)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(v *Vault) {
		v.metrics = metrics
	}
}

// WithRegistry sets the vendor format registry.
func WithRegistry(r *Registry) Option {
	return func(v *Vault) {
		v.registry = r
	}
}

// WithCacheTTL sets the TTL of cached ciphertext. Non-positive values keep the default.
func WithCacheTTL(ttl time.Duration) Option {
	return func(v *Vault) {
		if ttl > 0 {
			v.cacheTTL = ttl
		}
	}
}

// WithCacheTimeout bounds each cache call.
func WithCacheTimeout(d time.Duration) Option {
	return func(v *Vault) {
		v.cacheTimeout = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

// NewVault creates a Vault. A nil cache disables caching and a nil
// registry uses DefaultRegistry.
func NewVault(st store.Store, c cache.TaggedCache, envelope *secure.Envelope, opts ...Option) (*Vault, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if envelope == nil {
		return nil, errors.New("envelope is required")
	}

	v := &Vault{
		store:        st,
		cache:        c,
		envelope:     envelope,
		logger:       observability.NopLogger(),
		cacheTTL:     config.DefaultCacheTTL,
		cacheTimeout: config.DefaultCacheOpTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.cache == nil {
		v.cache, _ = cache.New(&config.CacheConfig{Enabled: false}, v.logger)
	}
	if v.registry == nil {
		v.registry = DefaultRegistry(WithRegistryLogger(v.logger))
	}
	if v.metrics == nil {
		v.metrics = NewMetrics("avakeys")
	}
	v.logger = v.logger.With(observability.String("component", "byok_vault"))

	return v, nil
}

// Store encrypts plaintext for the tenant and upserts it by vendor.
func (v *Vault) Store(ctx context.Context, tenantID, vendor, plaintext string) error {
	return v.put(ctx, opStore, tenantID, vendor, plaintext)
}

// Rotate replaces the tenant's secret for vendor. It shares the Store path.
func (v *Vault) Rotate(ctx context.Context, tenantID, vendor, plaintext string) error {
	return v.put(ctx, opRotate, tenantID, vendor, plaintext)
}

func (v *Vault) put(ctx context.Context, op, tenantID, vendor, plaintext string) (err error) {
	ctx, span, finish := v.begin(ctx, op, tenantID, vendor)
	defer func() { finish(err) }()

	vendor, err = v.checkScope(tenantID, vendor)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("vendor", vendor))

	if err = checkPlaintext(plaintext); err != nil {
		return err
	}
	if err = v.registry.Check(vendor, plaintext); err != nil {
		return err
	}

	if _, err = v.store.GetTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("tenant %q: %w", tenantID, err)
	}

	ciphertext, err := v.envelope.Seal(tenantID, []byte(plaintext))
	if err != nil {
		return err
	}

	now := v.now().UTC()
	if err = v.store.UpsertVendorSecret(ctx, &store.VendorSecret{
		TenantID:   tenantID,
		Vendor:     vendor,
		Ciphertext: ciphertext,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return err
	}

	v.populateCache(ctx, tenantID, vendor, ciphertext)

	v.logger.Info("vendor secret stored",
		observability.String("operation", op),
		observability.String("tenant_id", tenantID),
		observability.String("vendor", vendor))
	return nil
}

// Get returns the tenant's decrypted secret for vendor. A missing or
// inactive secret returns ErrSecretNotFound; a blob that fails to decrypt
// returns *util.CryptoError.
func (v *Vault) Get(ctx context.Context, tenantID, vendor string) (plaintext string, err error) {
	ctx, span, finish := v.begin(ctx, opGet, tenantID, vendor)
	defer func() { finish(err) }()

	vendor, err = v.checkScope(tenantID, vendor)
	if err != nil {
		return "", err
	}
	key := cache.VendorSecretKey(tenantID, vendor)

	ciphertext, cached := v.lookupCache(ctx, key)
	span.SetAttributes(attribute.Bool("cache.hit", cached))

	if !cached {
		secret, getErr := v.store.GetVendorSecret(ctx, tenantID, vendor)
		switch {
		case errors.Is(getErr, util.ErrNotFound):
			return "", ErrSecretNotFound
		case getErr != nil:
			if !errors.Is(getErr, util.ErrDependency) {
				getErr = util.NewDependencyError("store", "get_vendor_secret", getErr)
			}
			return "", getErr
		case !secret.Active:
			return "", ErrSecretNotFound
		}
		ciphertext = secret.Ciphertext
	}

	raw, err := v.envelope.Open(tenantID, ciphertext)
	if err != nil {
		v.metrics.RecordDecryptFailure()
		v.logger.WithContext(ctx).Error("vendor secret failed to decrypt",
			observability.String("tenant_id", tenantID),
			observability.String("vendor", vendor),
			observability.Bool("cached", cached),
			observability.Error(err))
		if cached {
			v.evict(ctx, key)
		}
		return "", err
	}
	if !utf8.Valid(raw) {
		v.metrics.RecordDecryptFailure()
		if cached {
			v.evict(ctx, key)
		}
		return "", util.NewCryptoError("decrypt", errNotUTF8)
	}

	if !cached {
		v.populateCache(ctx, tenantID, vendor, ciphertext)
	}
	return string(raw), nil
}

// Delete removes the tenant's secret for vendor and evicts its cache entry.
// It reports whether a secret existed.
func (v *Vault) Delete(ctx context.Context, tenantID, vendor string) (deleted bool, err error) {
	ctx, _, finish := v.begin(ctx, opDelete, tenantID, vendor)
	defer func() {
		if err == nil && !deleted {
			finish(ErrSecretNotFound)
			return
		}
		finish(err)
	}()

	vendor, err = v.checkScope(tenantID, vendor)
	if err != nil {
		return false, err
	}

	deleted, err = v.store.DeleteVendorSecret(ctx, tenantID, vendor)
	if err != nil {
		return false, err
	}

	// Evict even when nothing was deleted so an orphaned entry cannot linger.
	v.evict(ctx, cache.VendorSecretKey(tenantID, vendor))

	if deleted {
		v.logger.Info("vendor secret deleted",
			observability.String("tenant_id", tenantID),
			observability.String("vendor", vendor))
	}
	return deleted, nil
}

// List returns the tenant's vendor secrets without ciphertext.
func (v *Vault) List(ctx context.Context, tenantID string) (secrets []*store.VendorSecret, err error) {
	ctx, _, finish := v.begin(ctx, opList, tenantID, "")
	defer func() { finish(err) }()

	if err = util.ValidateIdentifier("tenant_id", tenantID); err != nil {
		return nil, err
	}

	secrets, err = v.store.ListVendorSecrets(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, s := range secrets {
		s.Ciphertext = ""
	}
	return secrets, nil
}

// Registry returns the vendor format registry.
func (v *Vault) Registry() *Registry {
	return v.registry
}

func (v *Vault) checkScope(tenantID, vendor string) (string, error) {
	if err := util.ValidateIdentifier("tenant_id", tenantID); err != nil {
		return "", err
	}
	vendor = NormalizeVendor(vendor)
	if err := util.ValidateIdentifier("vendor", vendor); err != nil {
		return "", err
	}
	return vendor, nil
}

func checkPlaintext(plaintext string) error {
	switch {
	case plaintext == "":
		return util.NewFormatError("vendor_secret", "must not be empty")
	case len(plaintext) > MaxSecretLength:
		return util.NewFormatError("vendor_secret", fmt.Sprintf("longer than %d bytes", MaxSecretLength))
	case !utf8.ValidString(plaintext):
		return util.NewFormatError("vendor_secret", "must be valid UTF-8")
	}
	return nil
}

// begin starts a span and returns a func that records the outcome.
func (v *Vault) begin(ctx context.Context, op, tenantID, vendor string) (context.Context, trace.Span, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "byok."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("vendor", vendor),
		),
	)
	start := time.Now()

	return ctx, span, func(err error) {
		result := resultOf(err)
		v.metrics.RecordOperation(op, result, time.Since(start))
		if result == resultError {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}
		span.End()
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case errors.Is(err, ErrSecretNotFound), errors.Is(err, util.ErrNotFound):
		return resultNotFound
	case errors.Is(err, util.ErrFormat):
		return resultRejected
	default:
		return resultError
	}
}

// lookupCache returns cached ciphertext. Any cache failure is a miss.
func (v *Vault) lookupCache(ctx context.Context, key string) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, v.cacheTimeout)
	defer cancel()

	data, err := v.cache.Get(cctx, key)
	switch {
	case err == nil && len(data) > 0:
		v.metrics.RecordCacheLookup(cacheHit)
		return string(data), true
	case err == nil, errors.Is(err, cache.ErrCacheMiss), errors.Is(err, cache.ErrCacheDisabled):
		v.metrics.RecordCacheLookup(cacheMiss)
	default:
		v.metrics.RecordCacheLookup(cacheError)
		v.logger.Warn("vendor secret cache read failed; falling back to store", observability.Error(err))
	}
	return "", false
}

func (v *Vault) populateCache(ctx context.Context, tenantID, vendor, ciphertext string) {
	cctx, cancel := context.WithTimeout(ctx, v.cacheTimeout)
	defer cancel()

	key := cache.VendorSecretKey(tenantID, vendor)
	if err := v.cache.SetWithTags(cctx, key, []byte(ciphertext), v.cacheTTL, cache.TenantTag(tenantID)); err != nil {
		v.logger.Warn("vendor secret cache write failed",
			observability.String("tenant_id", tenantID),
			observability.String("vendor", vendor),
			observability.Error(err))
	}
}

func (v *Vault) evict(ctx context.Context, key string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.cacheTimeout)
	defer cancel()

	if err := v.cache.Delete(cctx, key); err != nil {
		v.logger.Warn("vendor secret cache eviction failed; entry expires with the cache TTL",
			observability.String("key", key),
			observability.Error(err))
	}
}
