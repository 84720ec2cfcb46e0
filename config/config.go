package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Progress ProgressConfig `mapstructure:"progress"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`

	Features *FeatureFlags `mapstructure:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string      `mapstructure:"name"`
	Env     Environment `mapstructure:"env"`
	Version string      `mapstructure:"version"`

	// Timezone defines calendar days for streaks (default: Asia/Jerusalem).
	Timezone string         `mapstructure:"timezone"`
	Location *time.Location `mapstructure:"-"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimit    string        `mapstructure:"body_limit"`
	Debug        bool          `mapstructure:"debug"`
}

// StorageConfig selects and configures the progress store.
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	// URL is a full connection string; when set the other fields are ignored.
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// SQLiteConfig holds the embedded store settings.
type SQLiteConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`

	// LockTTL bounds how long a per-user lock survives a crashed holder.
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	// OverviewTTL is the lifetime of a cached overview.
	OverviewTTL time.Duration `mapstructure:"overview_ttl"`
}

// KafkaConfig holds the event forwarder settings.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	ClientID    string   `mapstructure:"client_id"`
}

// WorkerConfig holds background job settings.
type WorkerConfig struct {
	ExpireStreaksInterval time.Duration `mapstructure:"expire_streaks_interval"`
	ExpireGoalsInterval   time.Duration `mapstructure:"expire_goals_interval"`
	BatchSize             int           `mapstructure:"batch_size"`

	// MetricsPort serves /metrics from the worker; 0 disables it.
	MetricsPort int `mapstructure:"metrics_port"`
}

// ProgressConfig tunes the progress flow.
type ProgressConfig struct {
	// RecentActivity is the size of the overview feed window.
	RecentActivity int `mapstructure:"recent_activity"`

	// MaxAttempts includes the first attempt; 2 means one retry on conflict.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// MetricsConfig configures Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads .env files, then the environment, on top of the defaults.
// Keys map to variables by upper-casing and replacing dots: app.timezone -> APP_TIMEZONE.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config validation: APP_TIMEZONE: %w", err)
	}
	cfg.App.Location = loc
	cfg.Features = LoadFeatureFlags(v)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// loadDotEnv loads .env and config/.env.<APP_ENV> when they exist.
// Variables already set in the environment win.
func loadDotEnv() error {
	env := strings.ToLower(os.Getenv("APP_ENV"))
	if env == "" {
		env = string(EnvDevelopment)
	}

	for _, path := range []string{".env", filepath.Join("config", ".env."+env)} {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "progress-hub")
	v.SetDefault("app.env", string(EnvDevelopment))
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.timezone", "Asia/Jerusalem")
	v.SetDefault("app.shutdown_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.body_limit", "1M")
	v.SetDefault("http.debug", false)

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.database", "progress")
	v.SetDefault("storage.postgres.user", "postgres")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.ssl_mode", "disable")
	v.SetDefault("storage.postgres.max_conns", 10)
	v.SetDefault("storage.postgres.min_conns", 2)
	v.SetDefault("storage.postgres.max_conn_lifetime", "60m")
	v.SetDefault("storage.postgres.max_conn_idle_time", "30m")
	v.SetDefault("storage.sqlite.path", "data/progress.db")
	v.SetDefault("storage.sqlite.busy_timeout", "5s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.lock_ttl", "10s")
	v.SetDefault("redis.overview_ttl", "5m")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "ivrit")
	v.SetDefault("kafka.client_id", "progress-hub")

	v.SetDefault("worker.expire_streaks_interval", "1h")
	v.SetDefault("worker.expire_goals_interval", "15m")
	v.SetDefault("worker.batch_size", 200)
	v.SetDefault("worker.metrics_port", 9091)

	v.SetDefault("progress.recent_activity", 5)
	v.SetDefault("progress.max_attempts", 2)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "progress")
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.App.Env {
	case EnvDevelopment, EnvTest, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV %q is not one of development, test, staging, production", c.App.Env))
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.Postgres.URL == "" && c.Storage.Postgres.Host == "" {
			errs = append(errs, errors.New("STORAGE_POSTGRES_URL or STORAGE_POSTGRES_HOST is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, errors.New("STORAGE_SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("the memory driver cannot be used in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q is not one of postgres, sqlite, memory", c.Storage.Driver))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("HTTP_PORT %d is out of range", c.HTTP.Port))
	}
	if c.Redis.Enabled && c.Redis.LockTTL <= 0 {
		errs = append(errs, errors.New("REDIS_LOCK_TTL must be positive"))
	}
	if c.Features != nil && c.Features.IsEnabled(FeatureEventForwarding, nil) && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when event forwarding is enabled"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, errors.New("WORKER_BATCH_SIZE must be positive"))
	}
	if c.Progress.RecentActivity <= 0 {
		errs = append(errs, errors.New("PROGRESS_RECENT_ACTIVITY must be positive"))
	}
	if c.Progress.MaxAttempts < 1 {
		errs = append(errs, errors.New("PROGRESS_MAX_ATTEMPTS must be at least 1"))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Address returns the HTTP listen address.
func (c HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
