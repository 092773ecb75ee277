package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platinummonkey/caseboard/pkg/api"
	"github.com/platinummonkey/caseboard/pkg/assignments"
	"github.com/platinummonkey/caseboard/pkg/cache"
	"github.com/platinummonkey/caseboard/pkg/config"
	"github.com/platinummonkey/caseboard/pkg/maintenance"
	"github.com/platinummonkey/caseboard/pkg/observability"
	"github.com/platinummonkey/caseboard/pkg/permissions"
	"github.com/platinummonkey/caseboard/pkg/storage/postgres"
	"github.com/platinummonkey/caseboard/pkg/territory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

var version = "dev"

const usage = `Usage: caseboard <command> [flags]

Commands:
  serve              run the access API
  migrate            apply pending database migrations
  seed -f FILE       load a YAML permission catalog

Configuration is read from CASEBOARD_* environment variables.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	switch os.Args[1] {
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "serve":
		err = serve(ctx, cfg, log)
	case "migrate":
		err = migrate(ctx, cfg, log)
	case "seed":
		err = seed(ctx, cfg, log, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		log.WithError(err).Fatal("Command failed")
	}
}

func serve(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.ShutdownOTel(shutdownCtx, otelProviders, log); err != nil {
			log.WithError(err).Warn("OpenTelemetry shutdown failed")
		}
	}()

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	conns, err := postgres.NewConnectionManager(cfg.Postgres, log)
	if err != nil {
		return err
	}
	defer conns.Close()
	conns.StartHealthCheckRoutine(ctx, 30*time.Second)

	backend, pinger, closeCache, err := openCache(cfg.Cache, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCache(); err != nil {
			log.WithError(err).Warn("Failed to close cache")
		}
	}()
	var accessCache cache.Cache = backend
	if metrics != nil {
		accessCache = cache.WithRecorder(backend, metrics)
	}

	permStore := postgres.NewPermissionStore(conns)
	branchStore := postgres.NewBranchStore(conns)
	assignStore := postgres.NewAssignmentStore(conns)

	permEngine := permissions.NewEngine(permStore, accessCache, permissions.Config{
		TTL:                cfg.Cache.TTL,
		StrictScopeContext: cfg.Access.StrictScopeContext,
	}, log, metrics)
	territoryEngine := territory.NewEngine(branchStore, permEngine, accessCache, cfg.Cache.TTL, log, metrics)
	service := assignments.NewService(permStore, assignStore, permEngine, territoryEngine, log)

	if cfg.Cache.FlushSchedule != "" {
		flusher, err := maintenance.NewCacheFlusher(cfg.Cache.FlushSchedule, permEngine, territoryEngine, log)
		if err != nil {
			return err
		}
		flusher.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			flusher.Stop(stopCtx)
		}()
	}

	handler := api.NewServer(api.Dependencies{
		Permissions: permEngine,
		Territory:   territoryEngine,
		Branches:    branchStore,
		Assignments: service,
		Health:      observability.NewHealthChecker(conns.Primary(), pinger, version),
		Metrics:     metrics,
		Registry:    registry,
		Logger:      log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":          srv.Addr,
			"version":       version,
			"cache_backend": cfg.Cache.Backend,
			"strict_scope":  cfg.Access.StrictScopeContext,
		}).Info("Starting caseboard access API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

// openCache builds the configured backend. The Pinger is nil unless the
// backend is remote; the returned close func is always safe to call.
func openCache(cfg config.CacheConfig, log *logrus.Logger) (cache.Cache, observability.Pinger, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.CacheBackendMemory:
		log.WithField("size", cfg.MemorySize).Info("Using in-memory cache")
		return cache.NewMemoryCache(cfg.MemorySize), nil, noop, nil
	case config.CacheBackendNone:
		log.Warn("Cache disabled, every lookup goes to the database")
		return cache.NewNullCache(), nil, noop, nil
	}

	if cfg.URL == "" {
		log.Warn("CASEBOARD_CACHE_URL not set, running without cache")
		return cache.NewNullCache(), nil, noop, nil
	}

	redisCache, err := cache.NewRedisCache(cache.RedisConfig{
		URL:      cfg.URL,
		Token:    cfg.Token,
		PoolSize: cfg.PoolSize,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("Connected to redis cache")
	return redisCache, redisCache, redisCache.Close, nil
}

func migrate(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	conns, err := postgres.NewConnectionManager(cfg.Postgres, log)
	if err != nil {
		return err
	}
	defer conns.Close()

	applied, err := postgres.ApplyMigrations(ctx, conns.Primary(), log)
	if err != nil {
		return err
	}
	log.WithField("applied", applied).Info("Migrations complete")
	return nil
}

func seed(ctx context.Context, cfg *config.Config, log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	file := fs.String("f", "", "path to a YAML permission catalog")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("seed requires -f FILE")
	}

	catalog, err := permissions.LoadCatalogFile(*file)
	if err != nil {
		return err
	}

	conns, err := postgres.NewConnectionManager(cfg.Postgres, log)
	if err != nil {
		return err
	}
	defer conns.Close()

	n, err := postgres.NewPermissionStore(conns).UpsertPermissions(ctx, catalog.Permissions)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"file": *file, "permissions": n}).Info("Permission catalog seeded")
	return nil
}
