package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avakeys/internal/byok"
	"github.com/vyrodovalexey/avakeys/internal/credential"
	"github.com/vyrodovalexey/avakeys/internal/health"
	"github.com/vyrodovalexey/avakeys/internal/observability"
	"github.com/vyrodovalexey/avakeys/internal/store"
	"github.com/vyrodovalexey/avakeys/internal/util"
)

const testConfigTemplate = `profile: development
security:
  masterSecret: "0123456789abcdef0123456789abcdef"
  hashSalt: "cli-test-salt"
store:
  driver: sqlite
  dsn: %q
  autoMigrate: true
cache:
  enabled: true
  type: memory
logging:
  level: error
`

const openAIKey = "sk-proj-abcdefghijklmnopqrstuvwxyz0123456789"

// writeTestConfig writes a config backed by a fresh sqlite file.
func writeTestConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "avakeys.yaml")
	content := fmt.Sprintf(testConfigTemplate, filepath.Join(dir, "keys.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, configPath, stdin string, args ...string) cliResult {
	t.Helper()

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", configPath}, args...))

	err := cmd.Execute()
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func mustRun(t *testing.T, configPath, stdin string, args ...string) string {
	t.Helper()
	res := runCLI(t, configPath, stdin, args...)
	require.NoError(t, res.err, "avakeys %v", args)
	return res.stdout
}

func decode[T any](t *testing.T, data string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(data), &v), data)
	return v
}

func TestCLI_CredentialLifecycle(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t)

	mustRun(t, cfg, "", "tenant", "put", "acme", "--name", "Acme Corp", "--rate-limit", "60")

	tenant := decode[map[string]any](t, mustRun(t, cfg, "", "tenant", "get", "acme"))
	assert.Equal(t, "Acme Corp", tenant["name"])
	assert.Equal(t, true, tenant["active"])

	issued := runCLI(t, cfg, "", "issue", "acme", "--label", "ci")
	require.NoError(t, issued.err)
	assert.Contains(t, issued.stderr, "will not be shown again")

	cred := decode[map[string]any](t, issued.stdout)
	secret, _ := cred["secret"].(string)
	id, _ := cred["id"].(string)
	require.True(t, credential.WellFormed(secret))
	require.NotEmpty(t, id)
	assert.Equal(t, "ci", cred["label"])

	validated := decode[map[string]any](t, mustRun(t, cfg, secret+"\n", "validate"))
	assert.Equal(t, "acme", validated["id"])

	validated = decode[map[string]any](t, mustRun(t, cfg, "", "validate", secret))
	assert.Equal(t, "acme", validated["id"])

	listed := mustRun(t, cfg, "", "list", "acme")
	creds := decode[[]map[string]any](t, listed)
	require.Len(t, creds, 1)
	assert.Equal(t, id, creds[0]["id"])
	assert.NotNil(t, creds[0]["last_used_at"])
	assert.NotContains(t, listed, secret)

	revoked := decode[map[string]any](t, mustRun(t, cfg, "", "revoke", id))
	assert.Equal(t, true, revoked["revoked"])

	res := runCLI(t, cfg, "", "validate", secret)
	assert.ErrorIs(t, res.err, credential.ErrInvalidCredential)
	assert.Equal(t, exitInvalid, exitCode(res.err))

	revoked = decode[map[string]any](t, mustRun(t, cfg, "", "revoke", id))
	assert.Equal(t, false, revoked["revoked"])
}

func TestCLI_InvalidCredentialsLookAlike(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t)
	mustRun(t, cfg, "", "tenant", "put", "acme")

	for _, raw := range []string{"garbage", "als_" + strings.Repeat("A", 43)} {
		res := runCLI(t, cfg, "", "validate", raw)
		assert.ErrorIs(t, res.err, credential.ErrInvalidCredential)
		assert.Equal(t, credential.ErrInvalidCredential.Error(), res.err.Error())
	}
}

func TestCLI_SuspendedTenant(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t)
	mustRun(t, cfg, "", "tenant", "put", "acme")
	cred := decode[map[string]any](t, mustRun(t, cfg, "", "issue", "acme"))
	secret, _ := cred["secret"].(string)

	mustRun(t, cfg, "", "tenant", "put", "acme", "--inactive")

	res := runCLI(t, cfg, "", "validate", secret)
	assert.ErrorIs(t, res.err, credential.ErrInvalidCredential)
}

func TestCLI_IssueUnknownTenant(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t)

	res := runCLI(t, cfg, "", "issue", "initech")
	assert.ErrorIs(t, res.err, util.ErrNotFound)
	assert.Equal(t, exitMissing, exitCode(res.err))
}

func TestCLI_VendorSecrets(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t)
	mustRun(t, cfg, "", "tenant", "put", "acme")

	mustRun(t, cfg, openAIKey+"\n", "vendor", "put", "acme", "openai")
	assert.Equal(t, openAIKey+"\n", mustRun(t, cfg, "", "vendor", "get", "acme", "openai"))

	rotated := "sk-proj-ZYXWVUTSRQPONMLKJIHGFEDCBA9876543210"
	mustRun(t, cfg, rotated, "vendor", "rotate", "acme", "openai")
	assert.Equal(t, rotated+"\n", mustRun(t, cfg, "", "vendor", "get", "acme", "openai"))

	listed := mustRun(t, cfg, "", "vendor", "list", "acme")
	secrets := decode[[]map[string]any](t, listed)
	require.Len(t, secrets, 1)
	assert.Equal(t, "openai", secrets[0]["vendor"])
	assert.NotContains(t, listed, rotated)
	assert.NotContains(t, secrets[0], "ciphertext")

	res := runCLI(t, cfg, "not-an-openai-key", "vendor", "put", "acme", "openai")
	assert.ErrorIs(t, res.err, util.ErrFormat)
	assert.Equal(t, exitUsage, exitCode(res.err))

	mustRun(t, cfg, "whatever-format", "vendor", "put", "acme", "brandnew")

	deleted := decode[map[string]any](t, mustRun(t, cfg, "", "vendor", "delete", "acme", "openai"))
	assert.Equal(t, true, deleted["deleted"])

	res = runCLI(t, cfg, "", "vendor", "get", "acme", "openai")
	assert.ErrorIs(t, res.err, byok.ErrSecretNotFound)
	assert.Equal(t, exitMissing, exitCode(res.err))

	res = runCLI(t, cfg, "", "vendor", "put", "acme", "openai")
	assert.ErrorIs(t, res.err, util.ErrFormat, "empty stdin")
}

func TestCLI_VendorFormats(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t)
	out := decode[map[string]any](t, mustRun(t, cfg, "", "vendor", "formats"))
	assert.Equal(t, "permissive", out["policy"])
	assert.Contains(t, out["vendors"], "anthropic")
}

func TestCLI_Stats(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t)
	mustRun(t, cfg, "", "tenant", "put", "acme")
	cred := decode[map[string]any](t, mustRun(t, cfg, "", "issue", "acme"))
	secret, _ := cred["secret"].(string)

	input := strings.Join([]string{secret, secret, "", "bogus", secret}, "\n")
	out := mustRun(t, cfg, input, "stats", "--metrics")

	dec := json.NewDecoder(strings.NewReader(out))
	var res statsResult
	require.NoError(t, dec.Decode(&res))

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 3, res.Valid)
	assert.Equal(t, 1, res.Invalid)
	assert.Equal(t, int64(2), res.Stats.Hits)
	assert.Equal(t, int64(1), res.Stats.Misses)
	assert.Equal(t, int64(1), res.Stats.DBQueries)
	assert.InDelta(t, 66.67, res.HitRate, 0.01)

	assert.Contains(t, out, `avakeys_credential_validation_total{result="valid"} 3`)
}

func TestCLI_Health(t *testing.T) {
	t.Parallel()

	cfg := writeTestConfig(t)
	report := decode[health.Report](t, mustRun(t, cfg, "", "health", "--timeout", "2s"))

	assert.Equal(t, health.StatusHealthy, report.Status)
	assert.Equal(t, health.StatusHealthy, report.Checks["store"].Status)
	assert.Equal(t, health.StatusHealthy, report.Checks["cache"].Status)
	assert.Equal(t, health.StatusDisabled, report.Checks["vault"].Status)
}

func TestHealthChecker_ClosedStore(t *testing.T) {
	t.Parallel()

	st := store.NewMemoryStore()
	require.NoError(t, st.Close())
	app := &application{
		logger:   observability.NopLogger(),
		store:    st,
		registry: prometheus.NewRegistry(),
	}

	report := newHealthChecker(app, time.Second).Run(context.Background())
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Equal(t, []string{"store"}, report.Failed())
	assert.Equal(t, health.StatusDisabled, report.Checks["cache"].Status)
}

func TestCLI_Version(t *testing.T) {
	t.Parallel()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "avakeys version dev")
}

func TestCLI_ProductionRequiresSecrets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "prod.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profile: production\nstore:\n  driver: memory\n"), 0o600))

	res := runCLI(t, path, "", "list", "acme")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, util.ErrConfigInvalid)
	assert.Contains(t, res.err.Error(), "security.masterSecret")
	assert.Contains(t, res.err.Error(), "security.hashSalt")
	assert.Contains(t, res.err.Error(), "store.driver")
	assert.Equal(t, exitUsage, exitCode(res.err))
}

func TestWriteMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ops_total", Help: "ops"}, []string{"b", "a"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "size", Help: "size"})
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "latency_seconds", Help: "latency"})
	reg.MustRegister(counter, gauge, hist)

	counter.WithLabelValues("x", "1").Add(2)
	gauge.Set(7)
	hist.Observe(0.5)

	families, err := reg.Gather()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeMetrics(&out, families))

	assert.Contains(t, out.String(), `ops_total{a="1",b="x"} 2`)
	assert.Contains(t, out.String(), "size 7\n")
	assert.Contains(t, out.String(), "latency_seconds_count 1\n")
	assert.Contains(t, out.String(), "latency_seconds_sum 0.5\n")
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("AVAKEYS_TEST_BOOL", "yes")
	assert.True(t, getEnvBool("AVAKEYS_TEST_BOOL", false))

	t.Setenv("AVAKEYS_TEST_BOOL", "off")
	assert.False(t, getEnvBool("AVAKEYS_TEST_BOOL", true))

	t.Setenv("AVAKEYS_TEST_BOOL", "maybe")
	assert.True(t, getEnvBool("AVAKEYS_TEST_BOOL", true))

	assert.Equal(t, "fallback", getEnvOrDefault("AVAKEYS_TEST_UNSET", "fallback"))
}
