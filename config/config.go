package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/archives-observability/archives/query"
	"github.com/archives-observability/archives/store"
	"github.com/archives-observability/archives/utils"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. ARCHIVES_API_PORT.
const EnvPrefix = "ARCHIVES"

// Config holds all configuration for the application
type Config struct {
	Environment string
	LogLevel    string
	LogFormat   string

	API        ServerConfig
	MCP        MCPConfig
	ClickHouse ClickHouseConfig
	Query      QueryConfig
	Tail       TailConfig
	Retention  RetentionConfig

	// HealthCacheTTL caches system health snapshots when positive.
	HealthCacheTTL time.Duration
	CORSOrigins    []string
}

// ServerConfig is the REST listener.
type ServerConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// MCPConfig is the tool surface listener.
type MCPConfig struct {
	Host      string
	Port      int
	Enabled   bool
	RateLimit float64
	RateBurst int
}

// ClickHouseConfig locates the store.
type ClickHouseConfig struct {
	URL         string
	Database    string
	Username    string
	Password    string
	PoolSize    int
	DialTimeout time.Duration
}

// QueryConfig bounds query execution.
type QueryConfig struct {
	Timeout        time.Duration
	AcquireTimeout time.Duration
	MaxLimit       int
	LogsTable      string
	MetricsTable   string
	// BreakerFailures consecutive unavailable errors open the store
	// circuit for BreakerCooldown. Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
}

// TailConfig drives the websocket live tail.
type TailConfig struct {
	Enabled      bool
	PollInterval time.Duration
}

// RetentionConfig is reported by /v1/status and never enforced here.
type RetentionConfig struct {
	LogsDays    int
	MetricsDays int
}

// legacyEnv lists unprefixed variable names honoured for compatibility.
var legacyEnv = map[string][]string{
	"environment":         {"ENVIRONMENT"},
	"log_level":           {"LOG_LEVEL"},
	"log_format":          {"LOG_FORMAT"},
	"clickhouse.url":      {"CLICKHOUSE_URL"},
	"clickhouse.database": {"CLICKHOUSE_DATABASE"},
	"clickhouse.username": {"CLICKHOUSE_USERNAME"},
	"clickhouse.password": {"CLICKHOUSE_PASSWORD"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.timeout", "30s")

	v.SetDefault("mcp.host", "0.0.0.0")
	v.SetDefault("mcp.port", 8081)
	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.rate_limit", 20.0)
	v.SetDefault("mcp.rate_burst", 40)

	v.SetDefault("clickhouse.url", "http://localhost:8123")
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("clickhouse.username", "")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("clickhouse.pool_size", 10)
	v.SetDefault("clickhouse.dial_timeout", "5s")

	v.SetDefault("query.timeout", "10s")
	v.SetDefault("query.acquire_timeout", "5s")
	v.SetDefault("query.max_limit", 1000)
	v.SetDefault("query.logs_table", "otel_logs")
	v.SetDefault("query.metrics_table", "otel_metrics_gauge")
	v.SetDefault("query.breaker_failures", 5)
	v.SetDefault("query.breaker_cooldown", "30s")

	v.SetDefault("tail.enabled", true)
	v.SetDefault("tail.poll_interval", "2s")

	v.SetDefault("retention.logs_days", 30)
	v.SetDefault("retention.metrics_days", 90)

	v.SetDefault("health_cache_ttl", "0s")
	v.SetDefault("cors.allow_origins", []string{"*"})
}

// Load reads defaults, then an optional YAML file, then environment
// variables. An empty configFile looks for config.yaml in the working
// directory and /etc/archives; a missing file there is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		args := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, err
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/archives")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Environment: strings.ToLower(v.GetString("environment")),
		LogLevel:    strings.ToLower(v.GetString("log_level")),
		LogFormat:   strings.ToLower(v.GetString("log_format")),
		API: ServerConfig{
			Host:    v.GetString("api.host"),
			Port:    v.GetInt("api.port"),
			Timeout: v.GetDuration("api.timeout"),
		},
		MCP: MCPConfig{
			Host:      v.GetString("mcp.host"),
			Port:      v.GetInt("mcp.port"),
			Enabled:   v.GetBool("mcp.enabled"),
			RateLimit: v.GetFloat64("mcp.rate_limit"),
			RateBurst: v.GetInt("mcp.rate_burst"),
		},
		ClickHouse: ClickHouseConfig{
			URL:         v.GetString("clickhouse.url"),
			Database:    v.GetString("clickhouse.database"),
			Username:    v.GetString("clickhouse.username"),
			Password:    v.GetString("clickhouse.password"),
			PoolSize:    v.GetInt("clickhouse.pool_size"),
			DialTimeout: v.GetDuration("clickhouse.dial_timeout"),
		},
		Query: QueryConfig{
			Timeout:         v.GetDuration("query.timeout"),
			AcquireTimeout:  v.GetDuration("query.acquire_timeout"),
			MaxLimit:        v.GetInt("query.max_limit"),
			LogsTable:       v.GetString("query.logs_table"),
			MetricsTable:    v.GetString("query.metrics_table"),
			BreakerFailures: v.GetInt("query.breaker_failures"),
			BreakerCooldown: v.GetDuration("query.breaker_cooldown"),
		},
		Tail: TailConfig{
			Enabled:      v.GetBool("tail.enabled"),
			PollInterval: v.GetDuration("tail.poll_interval"),
		},
		Retention: RetentionConfig{
			LogsDays:    v.GetInt("retention.logs_days"),
			MetricsDays: v.GetInt("retention.metrics_days"),
		},
		HealthCacheTTL: v.GetDuration("health_cache_ttl"),
		CORSOrigins:    splitList(v.GetStringSlice("cors.allow_origins")),
	}
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// APIAddress returns the REST listen address.
func (c *Config) APIAddress() string {
	return net.JoinHostPort(c.API.Host, strconv.Itoa(c.API.Port))
}

// MCPAddress returns the tool surface listen address.
func (c *Config) MCPAddress() string {
	return net.JoinHostPort(c.MCP.Host, strconv.Itoa(c.MCP.Port))
}

// StoreConnection returns the pool settings for store.Open.
func (c *Config) StoreConnection() store.ConnectionConfig {
	return store.ConnectionConfig{
		URL:          c.ClickHouse.URL,
		Database:     c.ClickHouse.Database,
		Username:     c.ClickHouse.Username,
		Password:     c.ClickHouse.Password,
		MaxOpenConns: c.ClickHouse.PoolSize,
		DialTimeout:  c.ClickHouse.DialTimeout,
	}
}

// StoreBreaker returns the executor circuit breaker settings, or nil when
// the breaker is disabled.
func (c *Config) StoreBreaker() *utils.CircuitBreakerConfig {
	if c.Query.BreakerFailures <= 0 {
		return nil
	}
	return &utils.CircuitBreakerConfig{
		Name:        "store",
		MaxFailures: c.Query.BreakerFailures,
		Cooldown:    c.Query.BreakerCooldown,
	}
}

// BuilderConfig returns the table layout and limits for query.NewBuilder.
func (c *Config) BuilderConfig() query.Config {
	qc := query.DefaultConfig()
	qc.Database = c.ClickHouse.Database
	qc.LogsTable = c.Query.LogsTable
	qc.MetricsTable = c.Query.MetricsTable
	qc.MaxLimit = c.Query.MaxLimit
	return qc
}

// Validate validates the configuration and returns any errors
func (c *Config) Validate() []string {
	var errs []string

	if !validPort(c.API.Port) {
		errs = append(errs, fmt.Sprintf("api.port must be between 1 and 65535, got %d", c.API.Port))
	}
	if c.MCP.Enabled {
		if !validPort(c.MCP.Port) {
			errs = append(errs, fmt.Sprintf("mcp.port must be between 1 and 65535, got %d", c.MCP.Port))
		}
		if c.MCP.Port == c.API.Port && c.MCP.Host == c.API.Host {
			errs = append(errs, "mcp.port must differ from api.port")
		}
		if c.MCP.RateLimit < 0 {
			errs = append(errs, "mcp.rate_limit must not be negative")
		}
	}

	if !contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		errs = append(errs, "log_level must be one of: debug, info, warn, error")
	}
	if !contains([]string{"json", "text"}, c.LogFormat) {
		errs = append(errs, "log_format must be one of: json, text")
	}
	if !contains([]string{"development", "staging", "production"}, c.Environment) {
		errs = append(errs, "environment must be one of: development, staging, production")
	}

	if c.ClickHouse.URL == "" {
		errs = append(errs, "clickhouse.url is required")
	}
	for key, name := range map[string]string{
		"clickhouse.database": c.ClickHouse.Database,
		"query.logs_table":    c.Query.LogsTable,
		"query.metrics_table": c.Query.MetricsTable,
	} {
		if !query.ValidIdentifier(name) {
			errs = append(errs, fmt.Sprintf("%s must be a plain identifier, got %q", key, name))
		}
	}

	for key, n := range map[string]int{
		"clickhouse.pool_size": c.ClickHouse.PoolSize,
		"query.max_limit":      c.Query.MaxLimit,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got %d", key, n))
		}
	}
	for key, d := range map[string]time.Duration{
		"api.timeout":           c.API.Timeout,
		"query.timeout":         c.Query.Timeout,
		"query.acquire_timeout": c.Query.AcquireTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got %s", key, d))
		}
	}
	if c.Tail.Enabled && c.Tail.PollInterval < 100*time.Millisecond {
		errs = append(errs, "tail.poll_interval must be at least 100ms")
	}
	if c.Query.BreakerFailures < 0 {
		errs = append(errs, "query.breaker_failures must not be negative")
	}
	if c.Query.BreakerFailures > 0 && c.Query.BreakerCooldown <= 0 {
		errs = append(errs, "query.breaker_cooldown must be positive when the breaker is enabled")
	}
	if c.HealthCacheTTL < 0 {
		errs = append(errs, "health_cache_ttl must not be negative")
	}

	return errs
}

// splitList accepts both YAML lists and comma separated environment values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
