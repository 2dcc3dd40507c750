// Package observability provides structured logging, Prometheus metrics, health
// probes and OpenTelemetry setup for the auth service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
//	logger.WithField("provider", "yandex").Info("provider registered")
//
// FromContext picks up the request id, user id and trace ids stored by the HTTP middleware:
//
//	observability.FromContext(r.Context()).WithError(err).Error("login failed")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	defer metrics.ObserveAuth("login", time.Now(), err)
//
// HTTPMetricsMiddleware labels requests by gorilla/mux route template, so it must be
// installed with router.Use.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version,
//		observability.Dependency{Name: "postgres", Probe: store, Critical: true},
//		observability.Dependency{Name: "rate_limiter", Probe: limiter},
//	)
//	observability.RegisterHealthRoutes(adminMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer providers.Shutdown(ctx)
package observability
