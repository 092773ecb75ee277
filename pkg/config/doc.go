// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// defaults for everything except the database URL.
//
// # Configuration Structure
//
// Server settings:
//
//	CASEBOARD_HOST="0.0.0.0"
//	CASEBOARD_PORT="8080"
//	CASEBOARD_READ_TIMEOUT="15s"
//	CASEBOARD_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	CASEBOARD_POSTGRES_URL="postgres://localhost/caseboard"  # required
//	CASEBOARD_POSTGRES_REPLICA_URLS="postgres://replica1/caseboard,postgres://replica2/caseboard"
//	CASEBOARD_POSTGRES_MAX_CONNS="20"
//
// Cache settings:
//
//	CASEBOARD_CACHE_BACKEND="redis"  # redis, memory, none
//	CASEBOARD_CACHE_URL="redis://localhost:6379"
//	CASEBOARD_CACHE_TOKEN=""
//	CASEBOARD_CACHE_TTL="5m"
//	CASEBOARD_CACHE_FLUSH_SCHEDULE="@every 1h"  # optional cron spec
//
// Access settings:
//
//	CASEBOARD_STRICT_SCOPE_CONTEXT="false"
//
// Observability settings:
//
//	CASEBOARD_LOG_LEVEL="info"  # debug, info, warn, error
//	CASEBOARD_LOG_FORMAT="json" # json, console
//	CASEBOARD_METRICS_ENABLED="true"
//	CASEBOARD_OTEL_ENABLED="true"
//	CASEBOARD_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Listening on %s\n", cfg.Server.Address())
//
// # Related Packages
//
//   - pkg/storage/postgres: Uses database configuration
//   - pkg/cache: Uses cache configuration
//   - pkg/observability: Uses observability configuration
package config
