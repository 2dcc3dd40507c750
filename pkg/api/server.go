package api

import (
	"net"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/authsvc/pkg/audit"
	"github.com/platinummonkey/authsvc/pkg/config"
	"github.com/platinummonkey/authsvc/pkg/httputil"
	"github.com/platinummonkey/authsvc/pkg/middleware"
	"github.com/platinummonkey/authsvc/pkg/observability"
)

// StackOptions configures the middleware wrapped around the API router
type StackOptions struct {
	Logger           *observability.Logger
	RateLimiter      *middleware.RateLimitMiddleware
	RequireRequestID bool
	MaxBodyBytes     int64
	Tracing          bool
	// Metrics records per-route request counts and latency when set
	Metrics *observability.Metrics
	// Audit receives access denials and role assignments
	Audit audit.Logger
}

// Handler wraps the router in the request pipeline. Panics are recovered
// outermost; the rate limiter runs before the request id check and before
// routing, so a rejected request never reaches a handler.
func (s *Server) Handler(opts StackOptions) http.Handler {
	if opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}

	var h http.Handler = s.router
	if opts.Tracing {
		h = otelhttp.NewHandler(h, "authsvc")
	}

	stack := []func(http.Handler) http.Handler{
		httputil.RecoveryMiddleware(opts.Logger),
		httputil.LoggingMiddleware(opts.Logger),
	}
	if opts.RateLimiter != nil {
		stack = append(stack, opts.RateLimiter.Handler)
	}
	stack = append(stack, httputil.RequestIDMiddleware(opts.RequireRequestID))
	if opts.Audit != nil {
		stack = append(stack, audit.Middleware(opts.Audit))
	}
	if opts.MaxBodyBytes > 0 {
		stack = append(stack, httputil.MaxBytesMiddleware(opts.MaxBodyBytes))
	}
	stack = append(stack, httputil.ContentTypeMiddleware)

	return httputil.Chain(stack...)(h)
}

// NewHTTPServer creates the API listener with the configured timeouts
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
