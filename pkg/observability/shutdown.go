package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager stops HTTP servers and then runs cleanup hooks in registration order
type ShutdownManager struct {
	logger  *Logger
	servers []*http.Server
	funcs   []namedShutdown
	timeout time.Duration
	mu      sync.Mutex
}

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager. A zero timeout means 30s.
func NewShutdownManager(logger *Logger, timeout time.Duration, servers ...*http.Server) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		servers: servers,
		timeout: timeout,
	}
}

// Register adds a named cleanup hook. Hooks run after the servers drain so that
// in-flight requests can still reach the database and Redis.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdown{name: name, fn: fn})
}

// drainServers shuts the listeners down concurrently so a slow API drain does
// not eat into the health server's share of the timeout
func (sm *ShutdownManager) drainServers(ctx context.Context) error {
	var g errgroup.Group
	for _, srv := range sm.servers {
		srv := srv
		g.Go(func() error {
			sm.logger.Infof("Shutting down HTTP server on %s", srv.Addr)
			if err := srv.Shutdown(ctx); err != nil {
				sm.logger.WithError(err).Error("HTTP server shutdown error")
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown drains the servers then runs every hook, returning the joined errors
func (sm *ShutdownManager) Shutdown(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, sm.timeout)
	defer cancel()

	var errs []error
	if err := sm.drainServers(ctx); err != nil {
		errs = append(errs, err)
	}

	sm.mu.Lock()
	funcs := append([]namedShutdown(nil), sm.funcs...)
	sm.mu.Unlock()

	for _, f := range funcs {
		if err := f.fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown of %s failed", f.name)
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		sm.logger.Debugf("Shutdown of %s complete", f.name)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
