package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/observability"
	"github.com/platinummonkey/authsvc/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	Storage       storage.Config
	SSO           SSOConfig
	Superuser     SuperuserConfig
	Maintenance   MaintenanceConfig
	Audit         AuditConfig
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
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds token policy
type AuthConfig struct {
	JWTSecret        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	RequireRequestID bool
	BcryptCost       int
}

// Rate limiter backends
const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// RateLimitConfig configures the token bucket in front of the router
type RateLimitConfig struct {
	Capacity   int64
	RefillRate float64
	Backend    string
	// FailOpen admits requests when the redis backend is unreachable
	FailOpen bool
}

// SSOConfig points at the identity provider registry file
type SSOConfig struct {
	ProvidersFile   string
	ExchangeTimeout time.Duration
	// WatchProviders reloads the providers file when it changes
	WatchProviders bool
}

// SuperuserConfig holds the bootstrap account used by cmd/createsuperuser
type SuperuserConfig struct {
	Email    string
	Username string
	Password string
}

// MaintenanceConfig schedules the refresh token purge
type MaintenanceConfig struct {
	TokenPurgeSchedule string
	TokenPurgeAge      time.Duration
}

// AuditConfig selects the optional redis stream copy of the audit trail and
// its archive to S3
type AuditConfig struct {
	// StreamKey enables the stream when set
	StreamKey    string
	StreamMaxLen int64

	// The archive runs only when both the stream and Storage.S3Bucket are set
	ArchiveSchedule string
	ArchivePrefix   string
	ArchiveBatch    int64
}

// ArchiveEnabled reports whether stream entries are shipped to S3
func (c *Config) ArchiveEnabled() bool {
	return c.Audit.StreamKey != "" && c.Storage.S3Bucket != ""
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Auth:          loadAuthConfig(),
		RateLimit:     loadRateLimitConfig(),
		Storage:       loadStorageConfig(),
		SSO:           loadSSOConfig(),
		Superuser:     loadSuperuserConfig(),
		Maintenance:   loadMaintenanceConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("AUTHSVC_HOST", "0.0.0.0"),
		Port:            getEnv("AUTHSVC_PORT", "8000"),
		ReadTimeout:     getEnvDuration("AUTHSVC_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("AUTHSVC_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("AUTHSVC_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("AUTHSVC_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("AUTHSVC_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("AUTHSVC_HEALTH_PORT", "9090"),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:        getEnv("AUTHSVC_JWT_SECRET", ""),
		AccessTokenTTL:   getEnvDuration("AUTHSVC_ACCESS_TOKEN_TTL", auth.AccessTokenLifetime),
		RefreshTokenTTL:  getEnvDuration("AUTHSVC_REFRESH_TOKEN_TTL", auth.RefreshTokenLifetime),
		RequireRequestID: getEnvBool("AUTHSVC_REQUIRE_REQUEST_ID", true),
		BcryptCost:       getEnvInt("AUTHSVC_BCRYPT_COST", 12),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Capacity:   getEnvInt64("AUTHSVC_TOKEN_BUCKET_CAPACITY", 10),
		RefillRate: getEnvFloat("AUTHSVC_TOKEN_BUCKET_RATE", 1),
		Backend:    strings.ToLower(getEnv("AUTHSVC_RATE_LIMIT_BACKEND", RateLimitBackendMemory)),
		FailOpen:   getEnvBool("AUTHSVC_RATE_LIMIT_FAIL_OPEN", true),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("AUTHSVC_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("AUTHSVC_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("AUTHSVC_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("AUTHSVC_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("AUTHSVC_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("AUTHSVC_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("AUTHSVC_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("AUTHSVC_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("AUTHSVC_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("AUTHSVC_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}
	cfg.RedisKeyPrefix = getEnv("AUTHSVC_REDIS_KEY_PREFIX", "")

	cfg.S3Endpoint = getEnv("AUTHSVC_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("AUTHSVC_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("AUTHSVC_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("AUTHSVC_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("AUTHSVC_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("AUTHSVC_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	return cfg
}

func loadSSOConfig() SSOConfig {
	return SSOConfig{
		ProvidersFile:   getEnv("AUTHSVC_SSO_PROVIDERS_FILE", ""),
		ExchangeTimeout: getEnvDuration("AUTHSVC_SSO_EXCHANGE_TIMEOUT", 10*time.Second),
		WatchProviders:  getEnvBool("AUTHSVC_SSO_WATCH", true),
	}
}

func loadSuperuserConfig() SuperuserConfig {
	return SuperuserConfig{
		Email:    getEnv("AUTHSVC_SUPERUSER_EMAIL", ""),
		Username: getEnv("AUTHSVC_SUPERUSER_USERNAME", "admin"),
		Password: getEnv("AUTHSVC_SUPERUSER_PASSWORD", ""),
	}
}

func loadMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		TokenPurgeSchedule: getEnv("AUTHSVC_TOKEN_PURGE_SCHEDULE", "@hourly"),
		TokenPurgeAge:      getEnvDuration("AUTHSVC_TOKEN_PURGE_AGE", auth.RefreshTokenLifetime),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		StreamKey:    getEnv("AUTHSVC_AUDIT_STREAM", ""),
		StreamMaxLen: getEnvInt64("AUTHSVC_AUDIT_STREAM_MAXLEN", 100000),

		ArchiveSchedule: getEnv("AUTHSVC_AUDIT_ARCHIVE_SCHEDULE", "@every 5m"),
		ArchivePrefix:   getEnv("AUTHSVC_AUDIT_ARCHIVE_PREFIX", "audit"),
		ArchiveBatch:    getEnvInt64("AUTHSVC_AUDIT_ARCHIVE_BATCH", 1000),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("AUTHSVC_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("AUTHSVC_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("AUTHSVC_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("AUTHSVC_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("AUTHSVC_OTEL_SERVICE_NAME", "auth-api"),
		OTelServiceVersion: getEnv("AUTHSVC_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("AUTHSVC_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("AUTHSVC_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("AUTHSVC_JWT_SECRET is required")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Auth.AccessTokenTTL >= c.Auth.RefreshTokenTTL {
		return errors.New("access token lifetime must be shorter than refresh token lifetime")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost %d is out of range", c.Auth.BcryptCost)
	}

	if c.RateLimit.Capacity < 1 {
		return errors.New("token bucket capacity must be at least 1")
	}
	if c.RateLimit.RefillRate < 0 {
		return errors.New("token bucket rate must not be negative")
	}
	switch c.RateLimit.Backend {
	case RateLimitBackendMemory, RateLimitBackendRedis:
	default:
		return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.RateLimit.Backend)
	}

	if c.Storage.PostgresURL == "" {
		return errors.New("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return errors.New("redis URL is required")
	}

	if c.SSO.ExchangeTimeout <= 0 {
		return errors.New("SSO exchange timeout must be positive")
	}

	if c.Maintenance.TokenPurgeSchedule != "" {
		if _, err := cron.ParseStandard(c.Maintenance.TokenPurgeSchedule); err != nil {
			return fmt.Errorf("invalid token purge schedule: %w", err)
		}
	}

	if c.Audit.StreamKey != "" && c.Audit.StreamMaxLen < 1 {
		return errors.New("audit stream max length must be at least 1")
	}

	if c.ArchiveEnabled() {
		if _, err := cron.ParseStandard(c.Audit.ArchiveSchedule); err != nil {
			return fmt.Errorf("invalid audit archive schedule: %w", err)
		}
		if c.Audit.ArchiveBatch < 1 {
			return errors.New("audit archive batch must be at least 1")
		}
		if c.Storage.S3Region == "" {
			return errors.New("S3 region is required for the audit archive")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ValidateSuperuser checks the bootstrap account settings
func (c *Config) ValidateSuperuser() error {
	if c.Superuser.Email == "" || c.Superuser.Password == "" {
		return errors.New("AUTHSVC_SUPERUSER_EMAIL and AUTHSVC_SUPERUSER_PASSWORD are required")
	}
	return nil
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
