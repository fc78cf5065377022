package credential

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avakeys/internal/cache"
	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/store"
)

// faultyStore injects failures into a MemoryStore.
type faultyStore struct {
	*store.MemoryStore

	mu       sync.Mutex
	findErr  error
	touchErr error
	finds    atomic.Int32
	touches  atomic.Int32
}

func (s *faultyStore) setFindErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findErr = err
}

func (s *faultyStore) FindActiveCredential(ctx context.Context, hash string) (*store.Tenant, *store.Credential, error) {
	s.finds.Add(1)
	s.mu.Lock()
	err := s.findErr
	s.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}
	return s.MemoryStore.FindActiveCredential(ctx, hash)
}

func (s *faultyStore) TouchCredential(ctx context.Context, id string, at time.Time) error {
	s.touches.Add(1)
	s.mu.Lock()
	err := s.touchErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.TouchCredential(ctx, id, at)
}

// faultyCache injects failures into a TaggedCache.
type faultyCache struct {
	cache.TaggedCache

	getErr        error
	invalidateErr error
}

func (c *faultyCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.TaggedCache.Get(ctx, key)
}

func (c *faultyCache) InvalidateTag(ctx context.Context, tag string) (int, error) {
	if c.invalidateErr != nil {
		return 0, c.invalidateErr
	}
	return c.TaggedCache.InvalidateTag(ctx, tag)
}

var errBackend = errors.New("backend unavailable")

type fixture struct {
	store     *faultyStore
	cache     *faultyCache
	hasher    *Hasher
	validator *Validator
	service   *Service
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher([]byte("test-salt"), config.MinIterations)
	require.NoError(t, err)
	return h
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()

	ctx := context.Background()
	st := &faultyStore{MemoryStore: store.NewMemoryStore()}
	require.NoError(t, st.PutTenant(ctx, &store.Tenant{ID: "acme", Name: "Acme", Active: true}))
	require.NoError(t, st.PutTenant(ctx, &store.Tenant{ID: "globex", Name: "Globex", Active: true}))

	inner, err := cache.New(&config.CacheConfig{
		Enabled:    true,
		Type:       config.CacheTypeMemory,
		TTL:        config.Duration(time.Minute),
		MaxEntries: 100,
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })
	c := &faultyCache{TaggedCache: inner}

	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	hasher := newTestHasher(t)
	metrics := NewMetrics("test")

	v, err := NewValidator(st, c, hasher,
		WithMetrics(metrics),
		WithClock(clock.Now),
		WithCacheTTL(time.Minute),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })

	svc, err := NewService(st, c, hasher, append([]ServiceOption{WithServiceMetrics(metrics)}, opts...)...)
	require.NoError(t, err)

	return &fixture{store: st, cache: c, hasher: hasher, validator: v, service: svc, clock: clock}
}
