package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0:8080", cfg.APIAddress())
	assert.Equal(t, "0.0.0.0:8081", cfg.MCPAddress())
	assert.True(t, cfg.MCP.Enabled)
	assert.Equal(t, "http://localhost:8123", cfg.ClickHouse.URL)
	assert.Equal(t, 10, cfg.ClickHouse.PoolSize)
	assert.Equal(t, 10*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Query.AcquireTimeout)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "otel_logs", cfg.Query.LogsTable)
	assert.Equal(t, 30, cfg.Retention.LogsDays)
	assert.Equal(t, 90, cfg.Retention.MetricsDays)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Zero(t, cfg.HealthCacheTTL)
	assert.Empty(t, cfg.Validate())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ARCHIVES_API_PORT", "9090")
	t.Setenv("ARCHIVES_MCP_ENABLED", "false")
	t.Setenv("ARCHIVES_QUERY_TIMEOUT", "2s")
	t.Setenv("ARCHIVES_HEALTH_CACHE_TTL", "30s")
	t.Setenv("ARCHIVES_CORS_ALLOW_ORIGINS", "http://a.local, http://b.local")
	t.Setenv("CLICKHOUSE_URL", "clickhouse://ch:9000")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.API.Port)
	assert.False(t, cfg.MCP.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Query.Timeout)
	assert.Equal(t, 30*time.Second, cfg.HealthCacheTTL)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.CORSOrigins)
	assert.Equal(t, "clickhouse://ch:9000", cfg.ClickHouse.URL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_PrefixedWinsOverLegacy(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CLICKHOUSE_URL", "http://legacy:8123")
	t.Setenv("ARCHIVES_CLICKHOUSE_URL", "http://prefixed:8123")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://prefixed:8123", cfg.ClickHouse.URL)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archives.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
clickhouse:
  url: https://ch.internal:8443
  database: telemetry
  pool_size: 4
query:
  max_limit: 500
tail:
  poll_interval: 5s
cors:
  allow_origins:
    - http://console.local
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "telemetry", cfg.ClickHouse.Database)
	assert.Equal(t, 4, cfg.ClickHouse.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.Tail.PollInterval)
	assert.Equal(t, []string{"http://console.local"}, cfg.CORSOrigins)

	bc := cfg.BuilderConfig()
	assert.Equal(t, "telemetry", bc.Database)
	assert.Equal(t, 500, bc.MaxLimit)

	sc := cfg.StoreConnection()
	assert.Equal(t, "https://ch.internal:8443", sc.URL)
	assert.Equal(t, 4, sc.MaxOpenConns)
}

func TestStoreBreaker(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	bc := cfg.StoreBreaker()
	require.NotNil(t, bc)
	assert.Equal(t, "store", bc.Name)
	assert.Equal(t, 5, bc.MaxFailures)
	assert.Equal(t, 30*time.Second, bc.Cooldown)

	cfg.Query.BreakerFailures = 0
	assert.Nil(t, cfg.StoreBreaker())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"Bad API port", func(c *Config) { c.API.Port = 0 }, "api.port must be between 1 and 65535, got 0"},
		{"Port clash", func(c *Config) { c.MCP.Port = c.API.Port }, "mcp.port must differ from api.port"},
		{"Log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level must be one of: debug, info, warn, error"},
		{"Log format", func(c *Config) { c.LogFormat = "xml" }, "log_format must be one of: json, text"},
		{"Table identifier", func(c *Config) { c.Query.LogsTable = "logs; DROP TABLE x" }, `query.logs_table must be a plain identifier, got "logs; DROP TABLE x"`},
		{"Pool size", func(c *Config) { c.ClickHouse.PoolSize = 0 }, "clickhouse.pool_size must be positive, got 0"},
		{"Query timeout", func(c *Config) { c.Query.Timeout = 0 }, "query.timeout must be positive, got 0s"},
		{"Tail interval", func(c *Config) { c.Tail.PollInterval = time.Millisecond }, "tail.poll_interval must be at least 100ms"},
		{"Breaker failures", func(c *Config) { c.Query.BreakerFailures = -1 }, "query.breaker_failures must not be negative"},
		{"Breaker cooldown", func(c *Config) { c.Query.BreakerCooldown = 0 }, "query.breaker_cooldown must be positive when the breaker is enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Contains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidate_DisabledToolSurfaceSkipsPortChecks(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.MCP.Enabled = false
	cfg.MCP.Port = cfg.API.Port
	assert.Empty(t, cfg.Validate())
}
