package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/avakeys/internal/cache"
	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/store"
)

type fakeBackend struct {
	enabled bool
	err     error
}

func (f *fakeBackend) IsEnabled() bool                { return f.enabled }
func (f *fakeBackend) Health(_ context.Context) error { return f.err }

func newMemoryCache(t *testing.T) cache.TaggedCache {
	t.Helper()

	c, err := cache.New(&config.CacheConfig{
		Enabled:    true,
		Type:       config.CacheTypeMemory,
		TTL:        config.Duration(time.Minute),
		MaxEntries: 10,
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestChecker_AllHealthy(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	checker := NewChecker("1.2.3", WithClock(func() time.Time { return fixed }), WithMetrics(NewMetrics("test")))
	checker.Register(StoreCheck(store.NewMemoryStore()))
	checker.Register(CacheCheck(newMemoryCache(t)))
	checker.Register(VaultCheck(&fakeBackend{enabled: true}))

	report := checker.Run(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, "1.2.3", report.Version)
	assert.Equal(t, fixed, report.Timestamp)
	require.Len(t, report.Checks, 3)
	for name, res := range report.Checks {
		assert.Equal(t, StatusHealthy, res.Status, name)
		assert.Empty(t, res.Error, name)
	}
	assert.Equal(t, string(DependencyTypeDatabase), report.Checks["store"].Type)
	assert.Empty(t, report.Failed())
}

func TestChecker_Aggregation(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := []struct {
		name   string
		checks []*DependencyCheck
		want   Status
		failed []string
	}{
		{
			name:   "no checks",
			want:   StatusHealthy,
			failed: nil,
		},
		{
			name: "critical failure",
			checks: []*DependencyCheck{
				CustomCheck("a", func(context.Context) error { return nil }),
				CustomCheck("b", func(context.Context) error { return boom }),
			},
			want:   StatusUnhealthy,
			failed: []string{"b"},
		},
		{
			name: "non-critical failure degrades",
			checks: []*DependencyCheck{
				CustomCheck("a", func(context.Context) error { return nil }),
				CustomCheck("b", func(context.Context) error { return boom }, WithCritical(false)),
			},
			want:   StatusDegraded,
			failed: []string{"b"},
		},
		{
			name: "unhealthy wins over degraded",
			checks: []*DependencyCheck{
				CustomCheck("b", func(context.Context) error { return boom }, WithCritical(false)),
				CustomCheck("a", func(context.Context) error { return boom }),
			},
			want:   StatusUnhealthy,
			failed: []string{"a", "b"},
		},
		{
			name: "disabled is ignored",
			checks: []*DependencyCheck{
				VaultCheck(&fakeBackend{enabled: false}),
				CacheCheck(nil),
			},
			want: StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewChecker("dev", WithMetrics(NewMetrics("test")))
			for _, c := range tt.checks {
				checker.Register(c)
			}

			report := checker.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Equal(t, tt.failed, report.Failed())
		})
	}
}

func TestChecker_RegisterReplacesByName(t *testing.T) {
	t.Parallel()

	checker := NewChecker("dev")
	checker.Register(CustomCheck("x", func(context.Context) error { return errors.New("old") }))
	checker.Register(CustomCheck("x", func(context.Context) error { return nil }))

	report := checker.Run(context.Background())
	require.Len(t, report.Checks, 1)
	assert.Equal(t, StatusHealthy, report.Status)
}

func TestChecker_Timeout(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	checker := NewChecker("dev",
		WithTimeout(20*time.Millisecond),
		WithLogger(observability.NewLoggerFromZap(zap.New(core))),
	)
	checker.Register(CustomCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	report := checker.Run(context.Background())

	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks["slow"].Error, "timed out")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "slow", logs.All()[0].ContextMap()["check"])
}

func TestStoreCheck(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	check := StoreCheck(st)
	assert.Equal(t, "store", check.Name())
	assert.True(t, check.IsCritical())
	require.NoError(t, check.run(context.Background()))

	require.NoError(t, st.Close())
	assert.Error(t, check.run(context.Background()))

	assert.Error(t, StoreCheck(nil).run(context.Background()))
}

func TestCacheCheck(t *testing.T) {
	t.Parallel()

	c := newMemoryCache(t)
	require.NoError(t, CacheCheck(c).run(context.Background()))
	assert.Zero(t, c.Stats().Size)

	disabled, err := cache.New(&config.CacheConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, CacheCheck(disabled).run(context.Background()), ErrDisabled)
}

func TestCacheCheck_Redis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	c, err := cache.New(&config.CacheConfig{
		Enabled: true,
		Type:    config.CacheTypeRedis,
		TTL:     config.Duration(time.Minute),
		Redis:   &config.RedisConfig{URL: "redis://" + mr.Addr(), KeyPrefix: "test:"},
	}, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	check := CacheCheck(c, WithName("redis"))
	assert.Equal(t, "redis", check.Name())
	require.NoError(t, check.run(context.Background()))
	assert.Empty(t, mr.Keys())

	mr.Close()
	assert.Error(t, check.run(context.Background()))
}

func TestVaultCheck(t *testing.T) {
	t.Parallel()

	sealed := errors.New("sealed")
	assert.NoError(t, VaultCheck(&fakeBackend{enabled: true}).run(context.Background()))
	assert.ErrorIs(t, VaultCheck(&fakeBackend{enabled: true, err: sealed}).run(context.Background()), sealed)
	assert.ErrorIs(t, VaultCheck(&fakeBackend{enabled: false, err: sealed}).run(context.Background()), ErrDisabled)
	assert.ErrorIs(t, VaultCheck(nil).run(context.Background()), ErrDisabled)
}

func TestDependencyCheck_NilFunc(t *testing.T) {
	t.Parallel()

	assert.Error(t, NewDependencyCheck("x", DependencyTypeCustom, nil).run(context.Background()))
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := NewMetrics("test")
	checker := NewChecker("dev", WithMetrics(m))
	checker.Register(CustomCheck("ok", func(context.Context) error { return nil }))
	checker.Register(CustomCheck("bad", func(context.Context) error { return errors.New("x") }))
	checker.Run(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("ok", "healthy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checksTotal.WithLabelValues("bad", "unhealthy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkStatus.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.checkStatus.WithLabelValues("bad")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.NotPanics(t, func() {
		m.MustRegister(m.Registry())
	})
}
