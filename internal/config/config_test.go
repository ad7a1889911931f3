package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ZONECOURIER_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8053, cfg.Server.Port)
	assert.True(t, cfg.Backends.File.Enabled)
	assert.False(t, cfg.Backends.DB.Enabled)
	assert.Equal(t, []string{"30s", "2m", "5m", "15m", "30m"}, cfg.Retry.Backoff)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.NotEmpty(t, cfg.NodeID, "a node id is generated when unset")
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 5353

backends:
  file:
    enabled: true
    zones_dir: "test-zones"
  db:
    enabled: true
    dsn: "file:test.db"

upstream:
  servers:
    - hostname: da1
      base_url: "https://da1.example.com:2222"
      username: admin
      password: secret

logging:
  level: "DEBUG"
  structured: true
  structured_format: "text"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 5353, cfg.Server.Port)
	assert.True(t, cfg.Backends.File.Enabled)
	assert.Equal(t, "test-zones", cfg.Backends.File.ZonesDir)
	assert.True(t, cfg.Backends.DB.Enabled)
	require.Len(t, cfg.Upstream.Servers, 1)
	assert.Equal(t, "da1", cfg.Upstream.Servers[0].Hostname)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "text", cfg.Logging.StructuredFormat)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidPort(t *testing.T) {
	content := `
server:
  port: 0
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeRequiresABackend(t *testing.T) {
	content := `
backends:
  file:
    enabled: false
  db:
    enabled: false
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeRejectsIncompleteUpstream(t *testing.T) {
	content := `
upstream:
  servers:
    - hostname: da1
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ZONECOURIER_SERVER_HOST", "192.168.1.1")
	t.Setenv("ZONECOURIER_SERVER_PORT", "9090")
	t.Setenv("ZONECOURIER_BACKENDS_DB_ENABLED", "true")
	t.Setenv("ZONECOURIER_RECONCILER_DRY_RUN", "true")
	t.Setenv("ZONECOURIER_LOGGING_LEVEL", "debug")
	t.Setenv("ZONECOURIER_LOGGING_CONSOLE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Backends.DB.Enabled)
	assert.True(t, cfg.Reconciler.DryRun)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console)
}
