package credential

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	const draws = 10000

	seen := make(map[string]struct{}, draws)
	for i := 0; i < draws; i++ {
		raw, err := Generate()
		require.NoError(t, err)
		assert.Len(t, raw, Length)
		assert.True(t, strings.HasPrefix(raw, Prefix))
		assert.True(t, WellFormed(raw))
		assert.NotContains(t, raw[len(Prefix):], "=")

		_, dup := seen[raw]
		require.False(t, dup, "duplicate credential generated")
		seen[raw] = struct{}{}
	}
	assert.Len(t, seen, draws)
}

func TestGenerateFrom(t *testing.T) {
	t.Parallel()

	t.Run("deterministic source", func(t *testing.T) {
		t.Parallel()

		a, err := GenerateFrom(bytes.NewReader(bytes.Repeat([]byte{0x01}, EntropyBytes)))
		require.NoError(t, err)
		b, err := GenerateFrom(bytes.NewReader(bytes.Repeat([]byte{0x01}, EntropyBytes)))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("short source", func(t *testing.T) {
		t.Parallel()

		_, err := GenerateFrom(bytes.NewReader(make([]byte, EntropyBytes-1)))
		assert.Error(t, err)
	})

	t.Run("failing source", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("entropy exhausted")
		_, err := GenerateFrom(iotest.ErrReader(boom))
		assert.ErrorIs(t, err, boom)
	})
}

func TestWellFormed(t *testing.T) {
	t.Parallel()

	valid, err := Generate()
	require.NoError(t, err)

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{name: "generated", raw: valid, want: true},
		{name: "empty", raw: "", want: false},
		{name: "prefix only", raw: Prefix, want: false},
		{name: "wrong prefix", raw: "sk_" + valid[3:], want: false},
		{name: "too long", raw: valid + "x", want: false},
		{name: "too short", raw: valid[:Length-1], want: false},
		{name: "uppercase prefix", raw: strings.ToUpper(Prefix) + valid[len(Prefix):], want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, WellFormed(tt.raw))
		})
	}
}

func TestNewHasher(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		salt       []byte
		iterations int
		wantErr    bool
	}{
		{name: "valid", salt: []byte("salt"), iterations: config.MinIterations},
		{name: "empty salt", salt: nil, iterations: config.MinIterations, wantErr: true},
		{name: "too few iterations", salt: []byte("salt"), iterations: config.MinIterations - 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, err := NewHasher(tt.salt, tt.iterations)
			if tt.wantErr {
				assert.ErrorIs(t, err, util.ErrConfigInvalid)
				assert.Nil(t, h)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, h)
		})
	}
}

func TestHasher_Hash(t *testing.T) {
	t.Parallel()

	h := newTestHasher(t)

	a, err := h.Hash("als_first")
	require.NoError(t, err)
	again, err := h.Hash("als_first")
	require.NoError(t, err)
	b, err := h.Hash("als_second")
	require.NoError(t, err)

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, hashSize*2)
	assert.Equal(t, strings.ToLower(a), a)

	other, err := NewHasher([]byte("other-salt"), config.MinIterations)
	require.NoError(t, err)
	salted, err := other.Hash("als_first")
	require.NoError(t, err)
	assert.NotEqual(t, a, salted)

	_, err = h.Hash("")
	assert.ErrorIs(t, err, ErrEmptyCredential)
}

func TestResolveSalt(t *testing.T) {
	t.Parallel()

	t.Run("configured", func(t *testing.T) {
		t.Parallel()

		salt, err := ResolveSalt("pepper", config.ProfileProduction, observability.NopLogger())
		require.NoError(t, err)
		assert.Equal(t, []byte("pepper"), salt)
	})

	t.Run("missing in production", func(t *testing.T) {
		t.Parallel()

		_, err := ResolveSalt("", config.ProfileProduction, observability.NopLogger())
		assert.ErrorIs(t, err, util.ErrConfigInvalid)
	})

	t.Run("missing in development", func(t *testing.T) {
		t.Parallel()

		core, logs := observer.New(zapcore.DebugLevel)
		logger := observability.NewLoggerFromZap(zap.New(core))

		a, err := ResolveSalt("", config.ProfileDevelopment, logger)
		require.NoError(t, err)
		b, err := ResolveSalt("", config.ProfileDevelopment, logger)
		require.NoError(t, err)

		assert.Len(t, a, generatedSaltSize)
		assert.NotEqual(t, a, b)
		assert.Equal(t, 2, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	})
}
