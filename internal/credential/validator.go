package credential

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avakeys/internal/cache"
	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/store"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

const tracerName = "avakeys/credential"

// Stats is a snapshot of validator counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	DBQueries int64 `json:"db_queries"`
	Errors    int64 `json:"errors"`
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// snapshot is the cached value for a credential hash.
type snapshot struct {
	CredentialID string        `json:"credential_id"`
	Tenant       *store.Tenant `json:"tenant"`
}

// Validator authenticates raw credentials.
type Validator struct {
	store        store.Store
	cache        cache.TaggedCache
	hasher       *Hasher
	logger       observability.Logger
	metrics      *Metrics
	cacheTTL     time.Duration
	cacheTimeout time.Duration
	touchTimeout time.Duration
	now          func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	dbQueries atomic.Int64
	errCount  atomic.Int64

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) ValidatorOption {
	return func(v *Validator) {
		v.metrics = metrics
	}
}

// WithCacheTTL sets the TTL of cached tenant snapshots. Non-positive values keep the default.
func WithCacheTTL(ttl time.Duration) ValidatorOption {
	return func(v *Validator) {
		if ttl > 0 {
			v.cacheTTL = ttl
		}
	}
}

// WithCacheTimeout bounds each cache call.
func WithCacheTimeout(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.cacheTimeout = d
	}
}

// WithTouchTimeout bounds the background last-used update.
func WithTouchTimeout(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.touchTimeout = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator creates a Validator. A nil cache disables caching.
func NewValidator(st store.Store, c cache.TaggedCache, hasher *Hasher, opts ...ValidatorOption) (*Validator, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if hasher == nil {
		return nil, errors.New("hasher is required")
	}

	v := &Validator{
		store:        st,
		cache:        c,
		hasher:       hasher,
		logger:       observability.NopLogger(),
		cacheTTL:     config.DefaultCredentialCacheTTL,
		cacheTimeout: config.DefaultCacheOpTimeout,
		touchTimeout: config.DefaultTouchTimeout,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(v)
	}

	if v.cache == nil {
		cfg := &config.CacheConfig{Enabled: false}
		v.cache, _ = cache.New(cfg, v.logger)
	}
	if v.metrics == nil {
		v.metrics = NewMetrics("avakeys")
	}
	v.logger = v.logger.With(observability.String("component", "credential_validator"))

	return v, nil
}

// Validate returns the tenant owning raw, or ErrInvalidCredential.
// A store failure returns *util.DependencyError; it never authenticates.
func (v *Validator) Validate(ctx context.Context, raw string) (*store.Tenant, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "credential.Validate",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	start := time.Now()
	tenant, err := v.validate(ctx, span, raw)

	switch {
	case err == nil:
		v.metrics.RecordValidation(resultValid, time.Since(start))
		span.SetAttributes(attribute.String("tenant.id", tenant.ID))
	case errors.Is(err, ErrInvalidCredential):
		v.metrics.RecordValidation(resultInvalid, time.Since(start))
	default:
		v.metrics.RecordValidation(resultError, time.Since(start))
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	return tenant, err
}

func (v *Validator) validate(ctx context.Context, span trace.Span, raw string) (*store.Tenant, error) {
	if !WellFormed(raw) {
		return nil, ErrInvalidCredential
	}

	hash, err := v.hasher.Hash(raw)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	key := cache.CredentialKey(hash)

	if snap, ok := v.lookupCache(ctx, key); ok {
		v.hits.Add(1)
		v.metrics.RecordCacheLookup(cacheHit)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		v.touchDetached(ctx, snap.CredentialID)
		return snap.Tenant, nil
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.dbQueries.Add(1)
	tenant, cred, err := v.store.FindActiveCredential(ctx, hash)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		v.errCount.Add(1)
		v.logger.WithContext(ctx).Error("credential lookup failed",
			observability.String("hash_prefix", hash[:8]),
			observability.Error(err))
		if !errors.Is(err, util.ErrDependency) {
			err = util.NewDependencyError("store", "find_active_credential", err)
		}
		return nil, err
	}
	// Misses count resolved credentials only; unknown ones show up in DBQueries.
	v.misses.Add(1)

	if err := v.store.TouchCredential(ctx, cred.ID, v.now()); err != nil {
		v.errCount.Add(1)
		v.metrics.RecordTouchFailure()
		v.logger.Warn("last-used update failed",
			observability.String("credential_id", cred.ID),
			observability.Error(err))
	}

	v.populateCache(ctx, key, &snapshot{CredentialID: cred.ID, Tenant: tenant})
	return tenant, nil
}

// lookupCache reads and decodes a snapshot. Any failure is a miss.
func (v *Validator) lookupCache(ctx context.Context, key string) (*snapshot, bool) {
	cctx, cancel := context.WithTimeout(ctx, v.cacheTimeout)
	defer cancel()

	data, err := v.cache.Get(cctx, key)
	switch {
	case err == nil:
	case errors.Is(err, cache.ErrCacheMiss), errors.Is(err, cache.ErrCacheDisabled):
		v.metrics.RecordCacheLookup(cacheMiss)
		return nil, false
	default:
		v.errCount.Add(1)
		v.metrics.RecordCacheLookup(cacheError)
		v.logger.Warn("credential cache read failed; falling back to store", observability.Error(err))
		return nil, false
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Tenant == nil || snap.CredentialID == "" {
		v.errCount.Add(1)
		v.metrics.RecordCacheLookup(cacheError)
		v.logger.Warn("undecodable credential cache entry; falling back to store")
		return nil, false
	}
	return &snap, true
}

func (v *Validator) populateCache(ctx context.Context, key string, snap *snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		v.logger.Warn("failed to encode credential snapshot", observability.Error(err))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, v.cacheTimeout)
	defer cancel()

	if err := v.cache.SetWithTags(cctx, key, data, v.cacheTTL, cache.TenantTag(snap.Tenant.ID)); err != nil {
		v.errCount.Add(1)
		v.logger.Warn("credential cache write failed",
			observability.String("tenant_id", snap.Tenant.ID),
			observability.Error(err))
	}
}

// touchDetached refreshes last-used without delaying the caller. It
// outlives the request context and is bounded by the touch timeout.
func (v *Validator) touchDetached(ctx context.Context, credentialID string) {
	v.mu.RLock()
	if v.closed {
		v.mu.RUnlock()
		return
	}
	v.inflight.Add(1)
	v.mu.RUnlock()

	at := v.now()
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.touchTimeout)

	go func() {
		defer v.inflight.Done()
		defer cancel()

		if err := v.store.TouchCredential(tctx, credentialID, at); err != nil {
			v.errCount.Add(1)
			v.metrics.RecordTouchFailure()
			v.logger.Warn("background last-used update failed",
				observability.String("credential_id", credentialID),
				observability.Error(err))
		}
	}()
}

// Stats returns a snapshot of the counters.
func (v *Validator) Stats() Stats {
	return Stats{
		Hits:      v.hits.Load(),
		Misses:    v.misses.Load(),
		DBQueries: v.dbQueries.Load(),
		Errors:    v.errCount.Load(),
	}
}

// Reset zeroes the counters.
func (v *Validator) Reset() {
	v.hits.Store(0)
	v.misses.Store(0)
	v.dbQueries.Store(0)
	v.errCount.Store(0)
}

// Close stops new background updates and waits for in-flight ones.
func (v *Validator) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()

	v.inflight.Wait()
	return nil
}
