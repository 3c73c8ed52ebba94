package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Notification drivers.
const (
	NotifyDriverLog   = "log"
	NotifyDriverRedis = "redis"
	NotifyDriverNATS  = "nats"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	NATS         NATSConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Assignment   AssignmentConfig
	Scheduler    SchedulerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	StoreDriver           string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig holds NATS connection values.
type NATSConfig struct {
	URL string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig selects the notification transport.
type NotificationConfig struct {
	Driver        string
	SubjectPrefix string
}

// AssignmentConfig holds the admission and reclaim rules.
type AssignmentConfig struct {
	Timeout       time.Duration
	MaxConcurrent int
	UrgentWindow  time.Duration
	QuotaLocation *time.Location
}

// SchedulerConfig controls the background reclaim sweep.
type SchedulerConfig struct {
	Enabled      bool
	Interval     time.Duration
	MaxDuration  time.Duration
	BatchSize    int
	DrainTimeout time.Duration
	LockKey      string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	assignment, err := loadAssignment()
	if err != nil {
		return nil, err
	}
	scheduler, err := loadScheduler()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "video-assignment-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			StoreDriver:           getEnv("STORE_DRIVER", StoreDriverPostgres),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		NATS: NATSConfig{
			URL: os.Getenv("NATS_URL"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			Driver:        getEnv("NOTIFY_DRIVER", NotifyDriverLog),
			SubjectPrefix: getEnv("NOTIFY_SUBJECT_PREFIX", "notifications"),
		},
		Assignment: assignment,
		Scheduler:  scheduler,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAssignment() (AssignmentConfig, error) {
	timeout, err := getEnvAsDuration("ASSIGNMENT_TIMEOUT", 15*time.Minute)
	if err != nil {
		return AssignmentConfig{}, err
	}
	urgentWindow, err := getEnvAsDuration("ASSIGNMENT_URGENT_WINDOW", 24*time.Hour)
	if err != nil {
		return AssignmentConfig{}, err
	}
	maxConcurrent, err := strconv.Atoi(getEnv("ASSIGNMENT_MAX_CONCURRENT", "3"))
	if err != nil {
		return AssignmentConfig{}, fmt.Errorf("invalid ASSIGNMENT_MAX_CONCURRENT: %w", err)
	}
	loc, err := time.LoadLocation(getEnv("ASSIGNMENT_QUOTA_TIMEZONE", "UTC"))
	if err != nil {
		return AssignmentConfig{}, fmt.Errorf("invalid ASSIGNMENT_QUOTA_TIMEZONE: %w", err)
	}
	return AssignmentConfig{
		Timeout:       timeout,
		MaxConcurrent: maxConcurrent,
		UrgentWindow:  urgentWindow,
		QuotaLocation: loc,
	}, nil
}

func loadScheduler() (SchedulerConfig, error) {
	interval, err := getEnvAsDuration("SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return SchedulerConfig{}, err
	}
	maxDuration, err := getEnvAsDuration("SWEEP_MAX_DURATION", 45*time.Second)
	if err != nil {
		return SchedulerConfig{}, err
	}
	drain, err := getEnvAsDuration("SHUTDOWN_DRAIN_TIMEOUT", 30*time.Second)
	if err != nil {
		return SchedulerConfig{}, err
	}
	return SchedulerConfig{
		Enabled:      getEnvAsBool("SWEEP_ENABLED", true),
		Interval:     interval,
		MaxDuration:  maxDuration,
		BatchSize:    getEnvAsInt("SWEEP_BATCH_SIZE", 500),
		DrainTimeout: drain,
		LockKey:      getEnv("SWEEP_LOCK_KEY", "video-assignment:sweep-lock"),
	}, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Assignment.Timeout <= 0 {
		errs = append(errs, errors.New("ASSIGNMENT_TIMEOUT must be positive"))
	}
	if c.Assignment.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("ASSIGNMENT_MAX_CONCURRENT must be positive"))
	}
	if c.Assignment.UrgentWindow < 0 {
		errs = append(errs, errors.New("ASSIGNMENT_URGENT_WINDOW must not be negative"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.Scheduler.MaxDuration <= 0 || c.Scheduler.MaxDuration >= c.Scheduler.Interval {
		errs = append(errs, errors.New("SWEEP_MAX_DURATION must be positive and shorter than SWEEP_INTERVAL"))
	}
	if c.Scheduler.BatchSize <= 0 {
		errs = append(errs, errors.New("SWEEP_BATCH_SIZE must be positive"))
	}
	switch c.App.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.App.StoreDriver))
	}
	switch c.Notification.Driver {
	case NotifyDriverLog, NotifyDriverRedis, NotifyDriverNATS:
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFY_DRIVER %q", c.Notification.Driver))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
