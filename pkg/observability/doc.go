// Package observability provides structured logging, Prometheus metrics, health
// checks, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Create the process logger:
//
//	logger := observability.NewLogger(observability.ParseLogLevel("info"), "json", os.Stdout)
//	logger.WithField("port", 8080).Info("Server started")
//
// Request-scoped logging:
//
//	observability.FromContext(ctx, logger).Warn("cache unavailable")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("clients", "read", true)
//
// A nil *Metrics is accepted everywhere and records nothing. Metrics also
// satisfies cache.Recorder, so it can be passed to cache.WithRecorder.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisCache, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// The database is required for readiness. The cache is optional and only
// degrades the reported status.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "caseboard",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/middleware: request id and identity propagation
package observability
