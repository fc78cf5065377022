package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avakeys/internal/config"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/retry"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// newFakeVault serves token lookup, approle login and a handful of KV paths.
func newFakeVault(t *testing.T, kvFailures *atomic.Int32) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/token/lookup-self", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{"errors": []string{"permission denied"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"id": "root"}})
	})
	mux.HandleFunc("/v1/auth/approle/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"auth": map[string]interface{}{"client_token": "root", "lease_duration": 3600},
		})
	})
	mux.HandleFunc("/v1/secret/data/avakeys/bootstrap", func(w http.ResponseWriter, _ *http.Request) {
		if kvFailures != nil && kvFailures.Add(-1) >= 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"errors": []string{"sealed"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{
				"data":     map[string]interface{}{"value": "master-secret", "salt": "pepper"},
				"metadata": map[string]interface{}{"version": 1},
			},
		})
	})
	mux.HandleFunc("/v1/kv1/legacy", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"password": "redis-pw"},
		})
	})
	mux.HandleFunc("/v1/sys/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"initialized": true, "sealed": false, "version": "1.17.0"})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"errors": []string{}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, cfg config.VaultConfig) Client {
	t.Helper()

	c, err := New(cfg, observability.NopLogger(),
		WithMetrics(NewMetrics("test")),
		WithRetryConfig(&retry.Config{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_TokenAuthAndReadField(t *testing.T) {
	t.Parallel()

	srv := newFakeVault(t, nil)
	c := newTestClient(t, config.VaultConfig{
		Enabled: true, Address: srv.URL, AuthMethod: config.VaultAuthToken, Token: "root", KVMount: "secret",
	})
	ctx := context.Background()

	_, err := c.ReadField(ctx, "secret/avakeys/bootstrap", "value")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	require.NoError(t, c.Authenticate(ctx))

	v, err := c.ReadField(ctx, "secret/avakeys/bootstrap", "value")
	require.NoError(t, err)
	assert.Equal(t, "master-secret", v)

	v, err = c.ReadField(ctx, "secret/avakeys/bootstrap#salt", "value")
	require.NoError(t, err)
	assert.Equal(t, "pepper", v)

	_, err = c.ReadField(ctx, "secret/avakeys/bootstrap", "missing")
	assert.ErrorIs(t, err, ErrFieldNotFound)

	_, err = c.ReadField(ctx, "secret/avakeys/absent", "value")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestClient_KVv1Fallback(t *testing.T) {
	t.Parallel()

	srv := newFakeVault(t, nil)
	c := newTestClient(t, config.VaultConfig{
		Enabled: true, Address: srv.URL, Token: "root",
	})
	ctx := context.Background()
	require.NoError(t, c.Authenticate(ctx))

	data, err := c.Read(ctx, "kv1/legacy")
	require.NoError(t, err)
	assert.Equal(t, "redis-pw", data["password"])
}

func TestClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var failures atomic.Int32
	failures.Store(2)
	srv := newFakeVault(t, &failures)
	c := newTestClient(t, config.VaultConfig{
		Enabled: true, Address: srv.URL, Token: "root", KVMount: "secret",
	})
	ctx := context.Background()
	require.NoError(t, c.Authenticate(ctx))

	v, err := c.ReadField(ctx, "secret/avakeys/bootstrap", "value")
	require.NoError(t, err)
	assert.Equal(t, "master-secret", v)
	assert.Less(t, failures.Load(), int32(0))
}

func TestClient_AuthFailures(t *testing.T) {
	t.Parallel()

	srv := newFakeVault(t, nil)
	ctx := context.Background()

	bad := newTestClient(t, config.VaultConfig{Enabled: true, Address: srv.URL, Token: "wrong"})
	err := bad.Authenticate(ctx)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.True(t, IsAuthError(err))

	approle := newTestClient(t, config.VaultConfig{
		Enabled: true, Address: srv.URL, AuthMethod: config.VaultAuthAppRole, RoleID: "r", SecretID: "s",
	})
	require.NoError(t, approle.Authenticate(ctx))

	_, err = New(config.VaultConfig{Enabled: true, Address: srv.URL, AuthMethod: config.VaultAuthAppRole}, nil)
	assert.ErrorIs(t, err, ErrInvalidAuthConfig)

	_, err = New(config.VaultConfig{Enabled: true, Address: srv.URL, AuthMethod: "kubernetes", Token: "x"}, nil)
	assert.ErrorIs(t, err, ErrInvalidAuthConfig)
}

func TestClient_Closed(t *testing.T) {
	t.Parallel()

	srv := newFakeVault(t, nil)
	c := newTestClient(t, config.VaultConfig{Enabled: true, Address: srv.URL, Token: "root"})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Authenticate(context.Background()), ErrClientClosed)
	_, err := c.ReadField(context.Background(), "secret/x", "value")
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_Health(t *testing.T) {
	t.Parallel()

	srv := newFakeVault(t, nil)
	c := newTestClient(t, config.VaultConfig{Enabled: true, Address: srv.URL, Token: "root"})
	assert.NoError(t, c.Health(context.Background()))

	sealed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 299, map[string]interface{}{"initialized": true, "sealed": true})
	}))
	t.Cleanup(sealed.Close)
	c = newTestClient(t, config.VaultConfig{Enabled: true, Address: sealed.URL, Token: "root"})
	assert.ErrorIs(t, c.Health(context.Background()), ErrSealed)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Health(context.Background()), ErrClientClosed)
}

func TestDisabledClient(t *testing.T) {
	t.Parallel()

	c, err := New(config.VaultConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
	assert.ErrorIs(t, c.Authenticate(context.Background()), ErrVaultDisabled)
	_, err = c.ReadField(context.Background(), "secret/x", "value")
	assert.ErrorIs(t, err, ErrVaultDisabled)
	_, err = c.Read(context.Background(), "secret/x")
	assert.ErrorIs(t, err, ErrVaultDisabled)
	assert.ErrorIs(t, c.Health(context.Background()), ErrVaultDisabled)
	assert.NoError(t, c.Close())
}

func TestParseSecretRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ref     string
		mount   string
		want    SecretRef
		wantErr bool
	}{
		{name: "mount and path", ref: "secret/avakeys/master", want: SecretRef{Mount: "secret", Path: "avakeys/master", Field: "value"}},
		{name: "field override", ref: "secret/app#salt", want: SecretRef{Mount: "secret", Path: "app", Field: "salt"}},
		{name: "default mount", ref: "master", mount: "kv", want: SecretRef{Mount: "kv", Path: "master", Field: "value"}},
		{name: "no mount", ref: "master", wantErr: true},
		{name: "empty", ref: " ", wantErr: true},
		{name: "traversal", ref: "secret/../sys", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseSecretRef(tt.ref, tt.mount, "value")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(NewVaultErrorWithCode("kv_read", "", ErrSecretNotFound, 503)))
	assert.True(t, IsRetryable(NewVaultErrorWithCode("kv_read", "", ErrSecretNotFound, 429)))
	assert.False(t, IsRetryable(NewVaultErrorWithCode("kv_read", "", ErrSecretNotFound, 403)))
	assert.Contains(t, NewVaultError("kv_read", "secret/x", ErrSecretNotFound).Error(), "secret/x")
}
