package config

import (
	"testing"
	"time"

	"github.com/platinummonkey/caseboard/pkg/observability"
	"github.com/platinummonkey/caseboard/pkg/storage/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	t.Setenv("CASEBOARD_TEST_VAR", "custom")

	assert.Equal(t, "custom", getEnv("CASEBOARD_TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("CASEBOARD_TEST_VAR_NOT_SET", "default"))
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"returns true for 'true'", "true", false, true},
		{"returns true for 'TRUE'", "TRUE", false, true},
		{"returns true for '1'", "1", false, true},
		{"returns false for 'false'", "false", true, false},
		{"returns false for garbage", "yes please", true, false},
		{"returns default when unset", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CASEBOARD_TEST_BOOL", tt.envValue)
			assert.Equal(t, tt.want, getEnvBool("CASEBOARD_TEST_BOOL", tt.defaultValue))
		})
	}
}

// TestGetEnvInt tests the getEnvInt helper function
func TestGetEnvInt(t *testing.T) {
	t.Setenv("CASEBOARD_TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("CASEBOARD_TEST_INT", 7))

	t.Setenv("CASEBOARD_TEST_INT", "forty-two")
	assert.Equal(t, 7, getEnvInt("CASEBOARD_TEST_INT", 7))
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	t.Setenv("CASEBOARD_TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, getEnvDuration("CASEBOARD_TEST_DURATION", time.Second))

	t.Setenv("CASEBOARD_TEST_DURATION", "90")
	assert.Equal(t, time.Second, getEnvDuration("CASEBOARD_TEST_DURATION", time.Second))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CASEBOARD_POSTGRES_URL", "postgres://localhost:5432/caseboard?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, 20, cfg.Postgres.MaxConns)
	assert.Equal(t, 2, cfg.Postgres.MinConns)
	assert.Empty(t, cfg.Postgres.ReplicaURLs)

	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 10000, cfg.Cache.MemorySize)
	assert.Empty(t, cfg.Cache.FlushSchedule)

	assert.False(t, cfg.Access.StrictScopeContext)

	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
	assert.Equal(t, "caseboard", cfg.Observability.OTelServiceName)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("CASEBOARD_POSTGRES_URL", "postgres://primary:5432/caseboard")
	t.Setenv("CASEBOARD_POSTGRES_REPLICA_URLS", "postgres://r1:5432/caseboard, postgres://r2:5432/caseboard")
	t.Setenv("CASEBOARD_PORT", "9000")
	t.Setenv("CASEBOARD_CACHE_BACKEND", "Memory")
	t.Setenv("CASEBOARD_CACHE_MEMORY_SIZE", "500")
	t.Setenv("CASEBOARD_CACHE_TTL", "30s")
	t.Setenv("CASEBOARD_CACHE_FLUSH_SCHEDULE", "*/15 * * * *")
	t.Setenv("CASEBOARD_STRICT_SCOPE_CONTEXT", "true")
	t.Setenv("CASEBOARD_LOG_LEVEL", "debug")
	t.Setenv("CASEBOARD_LOG_FORMAT", "console")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"postgres://r1:5432/caseboard", "postgres://r2:5432/caseboard"}, cfg.Postgres.ReplicaURLs)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 500, cfg.Cache.MemorySize)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "*/15 * * * *", cfg.Cache.FlushSchedule)
	assert.True(t, cfg.Access.StrictScopeContext)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, "console", cfg.Observability.LogFormat)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: "8080"},
			Cache:  CacheConfig{Backend: CacheBackendRedis, TTL: time.Minute, MemorySize: 10},
			Observability: ObservabilityConfig{
				LogFormat: "json",
			},
			Postgres: postgres.ConnectionConfig{
				PrimaryURL: "postgres://localhost/caseboard",
				MaxConns:   20,
				MinConns:   2,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"missing postgres", func(c *Config) { c.Postgres.PrimaryURL = "" }, "postgres URL is required"},
		{"min above max", func(c *Config) { c.Postgres.MinConns = 50 }, "exceeds max conns"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"memory without size", func(c *Config) {
			c.Cache.Backend = CacheBackendMemory
			c.Cache.MemorySize = 0
		}, "memory cache size must be positive"},
		{"none backend", func(c *Config) { c.Cache.Backend = CacheBackendNone }, ""},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache TTL must be positive"},
		{"bad schedule", func(c *Config) { c.Cache.FlushSchedule = "every tuesday" }, "invalid cache flush schedule"},
		{"good schedule", func(c *Config) { c.Cache.FlushSchedule = "@hourly" }, ""},
		{"bad log format", func(c *Config) { c.Observability.LogFormat = "xml" }, "invalid log format"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "caseboard"
		}, "OpenTelemetry endpoint is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_ValidationError(t *testing.T) {
	t.Setenv("CASEBOARD_POSTGRES_URL", "")

	cfg, err := LoadConfig()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}
