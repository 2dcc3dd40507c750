package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/authsvc/pkg/accounts"
	"github.com/platinummonkey/authsvc/pkg/api"
	"github.com/platinummonkey/authsvc/pkg/audit"
	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/config"
	"github.com/platinummonkey/authsvc/pkg/jobs"
	"github.com/platinummonkey/authsvc/pkg/middleware"
	"github.com/platinummonkey/authsvc/pkg/observability"
	"github.com/platinummonkey/authsvc/pkg/rbac"
	"github.com/platinummonkey/authsvc/pkg/sso"
	"github.com/platinummonkey/authsvc/pkg/storage/blob"
	"github.com/platinummonkey/authsvc/pkg/storage/postgres"
	redisstore "github.com/platinummonkey/authsvc/pkg/storage/redis"
)

var version = "dev"

const (
	roleCacheSize = 16
	roleCacheTTL  = 5 * time.Minute
)

func main() {
	skipMigrations := flag.Bool("skip-migrations", false, "Do not apply schema migrations on startup")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "authsvc").
		WithField("version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *skipMigrations); err != nil {
		logger.WithError(err).Error("authsvc exited with error")
		os.Exit(1)
	}
	logger.Info("authsvc stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger, skipMigrations bool) error {
	// Tracing
	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	// Postgres
	conns, err := postgres.NewConnectionManager(postgres.ConnectionConfigFrom(cfg.Storage), logger)
	if err != nil {
		return err
	}
	db := conns.Primary()
	conns.StartHealthCheckRoutine(ctx, 30*time.Second)

	if !skipMigrations {
		// users.role_id references roles, so the role tables go first
		if err := rbac.RunMigrations(ctx, db); err != nil {
			return err
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			return err
		}
	}

	roleStore := rbac.NewStore(db)
	if err := roleStore.EnsureCatalogue(ctx); err != nil {
		return err
	}
	roles := rbac.NewCachedStore(roleStore, roleCacheSize, roleCacheTTL)
	store := postgres.NewStore(conns)

	// Redis
	rdb, err := redisstore.NewClient(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	invalidations := redisstore.NewInvalidationStore(rdb, cfg.Storage.RedisKeyPrefix)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// Identity providers
	providers, err := sso.LoadRegistry(ctx, cfg.SSO.ProvidersFile, cfg.SSO.ExchangeTimeout, logger)
	if err != nil {
		return err
	}

	tokens := auth.NewJWTHandler(
		auth.NewHMACEncoder(auth.NewSHA256KeyDeriver(cfg.Auth.JWTSecret)),
		auth.WithLifetimes(cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL),
	)

	auditLogger := newAuditLogger(cfg, rdb, logger)

	svc := accounts.NewService(store, invalidations, tokens, roles,
		accounts.WithIdentityExchanger(providers),
		accounts.WithAuditLogger(auditLogger),
		accounts.WithMetrics(metrics),
		accounts.WithLogger(logger),
		accounts.WithBcryptCost(cfg.Auth.BcryptCost),
	)

	limiter, limiterProbe := newRateLimiter(cfg, rdb, metrics)

	server := api.NewServer(svc, providers, roleStore)
	apiServer := api.NewHTTPServer(cfg.Server, server.Handler(api.StackOptions{
		Logger:           logger,
		RateLimiter:      limiter,
		RequireRequestID: cfg.Auth.RequireRequestID,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		Tracing:          cfg.Observability.OTelEnabled,
		Metrics:          metrics,
		Audit:            auditLogger,
	}))

	// Probes and metrics live on their own port
	deps := []observability.Dependency{
		{Name: "postgres", Probe: store, Critical: true},
		{Name: "invalidations", Probe: invalidations, Critical: true},
	}
	if limiterProbe != nil {
		deps = append(deps, observability.Dependency{Name: "rate_limiter", Probe: limiterProbe})
	}

	// Background jobs
	scheduler := jobs.NewScheduler(logger)
	if err := scheduler.Add("purge-refresh-tokens", cfg.Maintenance.TokenPurgeSchedule,
		jobs.NewPurgeJob(store, cfg.Maintenance.TokenPurgeAge, logger, metrics)); err != nil {
		return err
	}
	if err := scheduler.Add("record-db-stats", "@every 15s", jobs.JobFunc(func(context.Context) error {
		metrics.RecordDBStats(db.Stats())
		return nil
	})); err != nil {
		return err
	}
	if cfg.ArchiveEnabled() {
		bucket, err := blob.NewS3Bucket(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		archiver := audit.NewArchiver(rdb, cfg.Audit.StreamKey, bucket, cfg.Audit.ArchivePrefix, cfg.Audit.ArchiveBatch, logger)
		if err := scheduler.Add("archive-audit-stream", cfg.Audit.ArchiveSchedule, archiver); err != nil {
			return err
		}
		deps = append(deps, observability.Dependency{Name: "audit_archive", Probe: bucket})
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(version, deps...))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.Register("audit", func(context.Context) error { return auditLogger.Close() })
	shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	shutdown.Register("postgres", func(context.Context) error { return conns.Close() })
	shutdown.Register("otel", otelProviders.Shutdown)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		return serve(apiServer)
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		return serve(healthServer)
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	if cfg.SSO.ProvidersFile != "" && cfg.SSO.WatchProviders {
		g.Go(func() error {
			// the loaded providers keep serving without the watcher
			if err := providers.Watch(gctx, cfg.SSO.ProvidersFile, logger); err != nil {
				logger.WithError(err).Warn("Identity provider file will not be reloaded")
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return shutdown.Shutdown(context.Background())
	})

	return g.Wait()
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newAuditLogger writes to the service log, and also to a redis stream when one is configured
func newAuditLogger(cfg *config.Config, rdb *goredis.Client, logger *observability.Logger) audit.Logger {
	structured := audit.NewStructuredLogger(logger)
	if cfg.Audit.StreamKey == "" {
		return structured
	}
	logger.WithField("stream", cfg.Audit.StreamKey).Info("Audit events are also written to redis")
	return audit.NewMultiLogger(structured, audit.NewStreamLogger(rdb, cfg.Audit.StreamKey, cfg.Audit.StreamMaxLen))
}

// newRateLimiter also returns the redis bucket as a probe; the in-memory
// bucket has nothing to probe.
func newRateLimiter(cfg *config.Config, rdb *goredis.Client, metrics *observability.Metrics) (*middleware.RateLimitMiddleware, observability.Probe) {
	bucket := &middleware.TokenBucketConfig{
		Capacity:   cfg.RateLimit.Capacity,
		RefillRate: cfg.RateLimit.RefillRate,
	}

	var (
		limiter middleware.Admitter
		probe   observability.Probe
	)
	if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
		distributed := middleware.NewDistributedTokenBucket(rdb, bucket, cfg.Storage.RedisKeyPrefix)
		limiter, probe = distributed, distributed
	} else {
		limiter = middleware.NewTokenBucket(bucket)
	}

	return middleware.NewRateLimitMiddleware(limiter,
		middleware.WithRejectCounter(metrics.RateLimitRejections),
		middleware.WithFailOpen(cfg.RateLimit.FailOpen),
	), probe
}
