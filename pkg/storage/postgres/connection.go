package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/authsvc/pkg/observability"
	"github.com/platinummonkey/authsvc/pkg/storage"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultProbeInterval  = 30 * time.Second
	replicaProbeTimeout   = 5 * time.Second
)

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ConnectionConfigFrom converts storage settings into a connection config
func ConnectionConfigFrom(cfg storage.Config) ConnectionConfig {
	return ConnectionConfig{
		PrimaryURL:  cfg.PostgresURL,
		ReplicaURLs: ParseReplicaURLs(cfg.PostgresReplicaURLs),
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     cfg.PostgresTimeout,
		MaxLifetime: cfg.PostgresMaxLifetime,
		MaxIdleTime: cfg.PostgresMaxIdleTime,
	}
}

// replica is a read-only pool plus the outcome of its last probe
type replica struct {
	name string
	db   *sql.DB
	up   atomic.Bool
}

// ConnectionManager owns the primary pool and any read replicas. Account
// writes and refresh-token locks always use the primary; only device history
// reads go to a replica. A replica that fails a probe leaves the rotation
// until a later probe succeeds.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*replica
	next     atomic.Uint32
	config   ConnectionConfig
	logger   *observability.Logger
}

// NewConnectionManager opens and pings the primary. A replica that cannot be
// reached at startup is kept out of rotation and retried by the probe loop.
func NewConnectionManager(config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	cm := &ConnectionManager{config: config, logger: logger}

	primary, err := cm.open(config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}
	if err := cm.ping(primary); err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to reach primary: %w", err)
	}
	cm.primary = primary

	replicaConns := config.MaxConns / 2
	if replicaConns < 2 {
		replicaConns = 2
	}
	for i, url := range config.ReplicaURLs {
		db, err := cm.open(url, replicaConns)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("skipping postgres replica with invalid URL")
			continue
		}
		r := &replica{name: fmt.Sprintf("replica-%d", i), db: db}
		if err := cm.ping(db); err != nil {
			logger.WithError(err).WithField("replica", r.name).Warn("postgres replica unreachable, out of rotation")
		} else {
			r.up.Store(true)
		}
		cm.replicas = append(cm.replicas, r)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("postgres connection manager initialized")
	return cm, nil
}

// NewConnectionManagerFromDB wraps already open handles, all replicas starting in rotation
func NewConnectionManagerFromDB(primary *sql.DB, logger *observability.Logger, replicas ...*sql.DB) *ConnectionManager {
	cm := &ConnectionManager{primary: primary, logger: logger}
	for i, db := range replicas {
		r := &replica{name: fmt.Sprintf("replica-%d", i), db: db}
		r.up.Store(true)
		cm.replicas = append(cm.replicas, r)
	}
	return cm
}

func (cm *ConnectionManager) open(url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cm.config.MinConns)
	db.SetConnMaxLifetime(cm.config.MaxLifetime)
	db.SetConnMaxIdleTime(cm.config.MaxIdleTime)
	return db, nil
}

func (cm *ConnectionManager) ping(db *sql.DB) error {
	timeout := cm.config.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return db.PingContext(ctx)
}

// Primary returns the primary database connection
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica picks the next replica in rotation, or the primary when none is up
func (cm *ConnectionManager) Replica() *sql.DB {
	n := len(cm.replicas)
	if n == 0 {
		return cm.primary
	}
	start := int(cm.next.Add(1) % uint32(n))
	for i := 0; i < n; i++ {
		if r := cm.replicas[(start+i)%n]; r.up.Load() {
			return r.db
		}
	}
	return cm.primary
}

// HealthCheck pings the primary. Replica state is reported by ProbeReplicas
// and never fails the check, since reads fall back to the primary.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}
	return nil
}

// ProbeReplicas pings every replica, moving it in or out of rotation, and
// returns the names of those that are down
func (cm *ConnectionManager) ProbeReplicas(ctx context.Context) []string {
	var down []string
	for _, r := range cm.replicas {
		err := r.db.PingContext(ctx)
		wasUp := r.up.Swap(err == nil)
		switch {
		case err != nil:
			down = append(down, r.name)
			if wasUp {
				cm.logger.WithError(err).WithField("replica", r.name).Warn("postgres replica left rotation")
			}
		case !wasUp:
			cm.logger.WithField("replica", r.name).Info("postgres replica rejoined rotation")
		}
	}
	return down
}

// StartHealthCheckRoutine probes the replicas every interval until ctx is done
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if len(cm.replicas) == 0 {
		return
	}
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	go func() {
		defer observability.RecoverPanic(cm.logger, "postgres replica probe")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, replicaProbeTimeout)
				cm.ProbeReplicas(probeCtx)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close closes the primary and every replica
func (cm *ConnectionManager) Close() error {
	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary: %w", err))
	}
	for _, r := range cm.replicas {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.name, err))
		}
	}
	return errors.Join(errs...)
}

// ParseReplicaURLs splits a comma-separated list, dropping blanks
func ParseReplicaURLs(s string) []string {
	var urls []string
	for _, url := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}
