package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/caseboard/pkg/observability"
	"github.com/platinummonkey/caseboard/pkg/storage/postgres"
	"github.com/robfig/cron/v3"
)

// Cache backends
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
	CacheBackendNone   = "none"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Postgres configuration
	Postgres postgres.ConnectionConfig

	// Cache configuration
	Cache CacheConfig

	// Access rules
	Access AccessConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// CacheConfig selects and tunes the permission and branch cache
type CacheConfig struct {
	Backend    string
	URL        string
	Token      string
	PoolSize   int
	Timeout    time.Duration
	TTL        time.Duration
	MemorySize int

	// FlushSchedule is an optional cron spec for periodic bulk invalidation
	FlushSchedule string
}

// AccessConfig holds permission evaluation switches
type AccessConfig struct {
	StrictScopeContext bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  observability.LogLevel
	LogFormat string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Postgres:      loadPostgresConfig(),
		Cache:         loadCacheConfig(),
		Access:        AccessConfig{StrictScopeContext: getEnvBool("CASEBOARD_STRICT_SCOPE_CONTEXT", false)},
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CASEBOARD_HOST", "0.0.0.0"),
		Port:            getEnv("CASEBOARD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CASEBOARD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CASEBOARD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CASEBOARD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CASEBOARD_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// loadPostgresConfig loads database configuration from environment
func loadPostgresConfig() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  getEnv("CASEBOARD_POSTGRES_URL", ""),
		ReplicaURLs: postgres.ParseReplicaURLs(getEnv("CASEBOARD_POSTGRES_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("CASEBOARD_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("CASEBOARD_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("CASEBOARD_POSTGRES_TIMEOUT", 10*time.Second),
	}
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:       strings.ToLower(getEnv("CASEBOARD_CACHE_BACKEND", CacheBackendRedis)),
		URL:           getEnv("CASEBOARD_CACHE_URL", ""),
		Token:         getEnv("CASEBOARD_CACHE_TOKEN", ""),
		PoolSize:      getEnvInt("CASEBOARD_CACHE_POOL_SIZE", 10),
		Timeout:       getEnvDuration("CASEBOARD_CACHE_TIMEOUT", 2*time.Second),
		TTL:           getEnvDuration("CASEBOARD_CACHE_TTL", 5*time.Minute),
		MemorySize:    getEnvInt("CASEBOARD_CACHE_MEMORY_SIZE", 10000),
		FlushSchedule: getEnv("CASEBOARD_CACHE_FLUSH_SCHEDULE", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("CASEBOARD_LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("CASEBOARD_LOG_FORMAT", "json")),
		MetricsEnabled:     getEnvBool("CASEBOARD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CASEBOARD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CASEBOARD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CASEBOARD_OTEL_SERVICE_NAME", "caseboard"),
		OTelServiceVersion: getEnv("CASEBOARD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CASEBOARD_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Postgres.PrimaryURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("postgres max conns must be positive")
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns {
		return fmt.Errorf("postgres min conns (%d) exceeds max conns (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}

	switch c.Cache.Backend {
	case CacheBackendRedis, CacheBackendNone:
	case CacheBackendMemory:
		if c.Cache.MemorySize <= 0 {
			return fmt.Errorf("memory cache size must be positive")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be redis, memory, or none)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	if c.Cache.FlushSchedule != "" {
		if _, err := cron.ParseStandard(c.Cache.FlushSchedule); err != nil {
			return fmt.Errorf("invalid cache flush schedule %q: %w", c.Cache.FlushSchedule, err)
		}
	}

	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Address returns the host:port the API listens on
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
