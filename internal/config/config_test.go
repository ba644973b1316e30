// ABOUTME: Tests for configuration loading, env expansion and validation
// ABOUTME: Covers defaults, duration parsing and required-field failures

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:9090"
database:
  path: ":memory:"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, 120, cfg.RateLimit.Requests)
	assert.Equal(t, 8, cfg.Executor.MaxConcurrentPerTenant)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_Durations(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:9090"
database:
  path: ":memory:"
sessions:
  ttl: "2h"
  sweep_interval: "30s"
executor:
  sync_wait_budget: "5s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.Sessions.TTL)
	assert.Equal(t, 30*time.Second, cfg.Sessions.SweepInterval)
	assert.Equal(t, 5*time.Second, cfg.Executor.SyncWaitBudget)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("NEXUS_TEST_SECRET", "0123456789abcdef0123456789abcdef")
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:9090"
database:
  path: ":memory:"
auth:
  jwt_secret: "${NEXUS_TEST_SECRET}"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Auth.JWTSecret)
}

func TestLoad_ShortSecretRejected(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:9090"
database:
  path: ":memory:"
auth:
  jwt_secret: "short"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoad_MissingHTTPAddr(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: ""
database:
  path: ":memory:"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:9090"
database:
  path: ":memory:"
rate_limit:
  window: "not-a-duration"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit.window")
}
