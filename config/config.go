// Package config reads service settings from the environment, optionally
// seeded from a .env file, and validates them once at startup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Environment is the deployment stage from APP_ENV.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
	EnvTest        Environment = "test"
)

// Config is the full service configuration shared by cmd/api and cmd/worker.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	HTTP          HTTPConfig
	Auth          AuthConfig
	Certificate   CertificateConfig
	Progress      ProgressConfig
	Catalog       CatalogConfig
	Scheduler     SchedulerConfig
	Features      *FeatureFlags
	Observability ObservabilityConfig
}

type AppConfig struct {
	Name            string
	Environment     Environment
	Debug           bool
	Version         string
	ShutdownTimeout time.Duration
}

// DatabaseConfig is empty (URL == "") when the service should run on
// in-memory storage.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
	AutoMigrate     bool
}

// RedisConfig backs the distributed lock and the snapshot cache.
// Disabled falls back to process-local equivalents.
type RedisConfig struct {
	URL          string
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Disabled     bool
}

type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	AllowedOrigins  []string
	RateLimitPerMin int
}

// AuthConfig verifies HS256 bearer tokens issued by the identity service.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// CertificateConfig shapes certificate ids (PREFIX-...) and signs their
// verification codes.
type CertificateConfig struct {
	Prefix          string
	VerificationKey string
}

type ProgressConfig struct {
	LockTTL          time.Duration
	LockAttempts     int
	SnapshotCacheTTL time.Duration
}

// CatalogConfig points at *.course.yaml files seeded on startup.
type CatalogConfig struct {
	Dir string
}

type SchedulerConfig struct {
	Enabled            bool
	ReconcileSpec      string // standard 5-field cron
	ReconcileBatchSize int
	JobTimeout         time.Duration
}

type ObservabilityConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, console
}

// Load builds and validates the configuration. A missing .env is fine;
// a malformed one is not. Unparseable numbers and durations are reported
// together with the validation errors instead of silently defaulting.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var r envReader
	env := Environment(r.str("APP_ENV", string(EnvDevelopment)))

	cfg := &Config{
		App: AppConfig{
			Name:            r.str("APP_NAME", "lms-backend"),
			Environment:     env,
			Debug:           env == EnvDevelopment || r.boolean("APP_DEBUG", false),
			Version:         r.str("APP_VERSION", "0.1.0"),
			ShutdownTimeout: r.duration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:             databaseURL(&r),
			MaxOpenConns:    r.integer("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    r.integer("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: r.duration("DB_CONN_MAX_IDLE_TIME", time.Minute),
			QueryTimeout:    r.duration("DB_QUERY_TIMEOUT", 30*time.Second),
			AutoMigrate:     r.boolean("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			Host:         r.str("REDIS_HOST", "localhost"),
			Port:         r.integer("REDIS_PORT", 6379),
			Password:     r.str("REDIS_PASSWORD", ""),
			DB:           r.integer("REDIS_DB", 0),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			Disabled:     r.boolean("REDIS_DISABLED", false),
		},
		HTTP: HTTPConfig{
			Host:            r.str("HTTP_HOST", "0.0.0.0"),
			Port:            r.integer("HTTP_PORT", 8080),
			ReadTimeout:     r.duration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    r.duration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     r.duration("HTTP_IDLE_TIMEOUT", time.Minute),
			AllowedOrigins:  r.list("HTTP_ALLOWED_ORIGINS", "http://localhost:5173"),
			RateLimitPerMin: r.integer("HTTP_RATE_LIMIT_PER_MIN", 120),
		},
		Auth: AuthConfig{
			JWTSecret: r.str("JWT_SECRET", ""),
			Issuer:    r.str("JWT_ISSUER", ""),
		},
		Certificate: CertificateConfig{
			Prefix:          strings.ToUpper(r.str("CERTIFICATE_PREFIX", "CERT")),
			VerificationKey: r.str("CERTIFICATE_VERIFICATION_KEY", ""),
		},
		Progress: ProgressConfig{
			LockTTL:          r.duration("PROGRESS_LOCK_TTL", 10*time.Second),
			LockAttempts:     r.integer("PROGRESS_LOCK_ATTEMPTS", 5),
			SnapshotCacheTTL: r.duration("PROGRESS_SNAPSHOT_TTL", 2*time.Minute),
		},
		Catalog: CatalogConfig{Dir: r.str("CATALOG_DIR", "")},
		Scheduler: SchedulerConfig{
			Enabled:            r.boolean("SCHEDULER_ENABLED", true),
			ReconcileSpec:      r.str("SCHEDULER_RECONCILE_SPEC", "*/15 * * * *"),
			ReconcileBatchSize: r.integer("SCHEDULER_RECONCILE_BATCH", 200),
			JobTimeout:         r.duration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
		},
		Features: LoadFeatureFlags(),
		Observability: ObservabilityConfig{
			LogLevel:  r.str("LOG_LEVEL", "info"),
			LogFormat: r.str("LOG_FORMAT", "json"),
		},
	}

	if err := errors.Join(r.err, cfg.Validate()); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from DB_*
// parts. Without DB_HOST and DB_USER it stays empty.
func databaseURL(r *envReader) string {
	if raw := r.str("DATABASE_URL", ""); raw != "" {
		return raw
	}
	host, user := r.str("DB_HOST", ""), r.str("DB_USER", "")
	if host == "" || user == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, r.str("DB_PASSWORD", "")),
		Host:     net.JoinHostPort(host, r.str("DB_PORT", "5432")),
		Path:     "/" + r.str("DB_NAME", "lms"),
		RawQuery: "sslmode=" + url.QueryEscape(r.str("DB_SSLMODE", "disable")),
	}
	return u.String()
}

var certificatePrefixPattern = regexp.MustCompile(`^[A-Z0-9]{2,8}$`)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.App.Environment != EnvDevelopment && c.App.Environment != EnvTest {
		if c.Auth.JWTSecret == "" {
			fail("JWT_SECRET is required in %s", c.App.Environment)
		}
		if c.Certificate.VerificationKey == "" {
			fail("CERTIFICATE_VERIFICATION_KEY is required in %s", c.App.Environment)
		}
	}
	if c.IsProduction() && c.Database.URL == "" {
		fail("DATABASE_URL is required in production")
	}

	if !certificatePrefixPattern.MatchString(c.Certificate.Prefix) {
		fail("CERTIFICATE_PREFIX %q must be 2-8 uppercase letters or digits", c.Certificate.Prefix)
	}
	if len(c.Certificate.VerificationKey) > 64 {
		fail("CERTIFICATE_VERIFICATION_KEY must be at most 64 bytes")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		fail("HTTP_PORT %d is out of range", c.HTTP.Port)
	}
	if c.Progress.LockTTL <= 0 {
		fail("PROGRESS_LOCK_TTL must be positive")
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.ReconcileSpec); err != nil {
			fail("SCHEDULER_RECONCILE_SPEC %q: %v", c.Scheduler.ReconcileSpec, err)
		}
		if c.Scheduler.ReconcileBatchSize <= 0 {
			fail("SCHEDULER_RECONCILE_BATCH must be positive")
		}
	}

	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool { return c.App.Environment == EnvDevelopment }
func (c *Config) IsProduction() bool  { return c.App.Environment == EnvProduction }

// envReader reads typed variables and remembers the ones that did not parse.
type envReader struct {
	err error
}

func (r *envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (r *envReader) parse(key string, parse func(string) error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if err := parse(v); err != nil {
		r.err = errors.Join(r.err, fmt.Errorf("%s=%q: %w", key, v, err))
	}
}

func (r *envReader) integer(key string, def int) int {
	out := def
	r.parse(key, func(v string) (err error) {
		out, err = strconv.Atoi(v)
		return err
	})
	return out
}

func (r *envReader) boolean(key string, def bool) bool {
	out := def
	r.parse(key, func(v string) (err error) {
		out, err = strconv.ParseBool(v)
		return err
	})
	return out
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	out := def
	r.parse(key, func(v string) (err error) {
		out, err = time.ParseDuration(v)
		return err
	})
	return out
}

// list splits a comma-separated value, dropping blanks.
func (r *envReader) list(key, def string) []string {
	var out []string
	for _, part := range strings.Split(r.str(key, def), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
