package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Config struct {
	// Service
	App AppConfig `mapstructure:"app"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// MongoDB
	Mongo MongoConfig `mapstructure:"mongo"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Backend selection
	Storage StorageConfig `mapstructure:"storage"`

	// Dashboard and per-user query tuning
	Analytics AnalyticsConfig `mapstructure:"analytics"`

	// Read endpoint throttling
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Production reports whether the service runs with production defaults.
func (c AppConfig) Production() bool {
	return c.Env == "production"
}

// Addr is the listen address of the HTTP server.
func (c AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

type PostgresConfig struct {
	Host              string        `mapstructure:"host"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Port              int           `mapstructure:"port"`
	SSLMode           string        `mapstructure:"sslmode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ReadPool serves dashboard aggregates from a pgx pool instead of gorm.
	ReadPool bool `mapstructure:"read_pool"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// Listen subscribes to the ingest subject in addition to publishing.
	Listen bool `mapstructure:"listen"`
}

type PrometheusConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	// Events selects the event store: postgres, mongo or memory.
	Events string `mapstructure:"events"`
	// KV selects the counter and dashboard cache store: redis or memory.
	KV string `mapstructure:"kv"`
}

type AnalyticsConfig struct {
	DashboardTTL       time.Duration `mapstructure:"dashboard_ttl"`
	DashboardDays      int           `mapstructure:"dashboard_days"`
	UserDays           int           `mapstructure:"user_days"`
	TopUsers           int           `mapstructure:"top_users"`
	RecentEvents       int           `mapstructure:"recent_events"`
	MemoryCacheEntries int           `mapstructure:"memory_cache_entries"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Events {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage.events driver %q", c.Storage.Events)
	}
	switch c.Storage.KV {
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage.kv driver %q", c.Storage.KV)
	}
	if c.Analytics.DashboardTTL <= 0 {
		return fmt.Errorf("config: analytics.dashboard_ttl must be positive")
	}
	if c.Analytics.DashboardDays <= 0 || c.Analytics.UserDays <= 0 {
		return fmt.Errorf("config: analytics default windows must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("config: rate_limit needs a positive limit and window")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "analytics-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 5003)
	v.SetDefault("app.shutdown_timeout", 10*time.Second)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.database", "analyticsdb")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 1)
	v.SetDefault("postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("postgres.max_conn_idle_time", 30*time.Minute)
	v.SetDefault("postgres.health_check_period", time.Minute)
	v.SetDefault("postgres.read_pool", true)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017/analyticsdb")
	v.SetDefault("mongo.database", "analyticsdb")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.host", "localhost")
	v.SetDefault("nats.port", 4222)
	v.SetDefault("nats.listen", true)

	v.SetDefault("prometheus.port", 9090)

	v.SetDefault("storage.events", DriverPostgres)
	v.SetDefault("storage.kv", DriverRedis)

	v.SetDefault("analytics.dashboard_ttl", 300*time.Second)
	v.SetDefault("analytics.dashboard_days", 7)
	v.SetDefault("analytics.user_days", 30)
	v.SetDefault("analytics.top_users", 10)
	v.SetDefault("analytics.recent_events", 100)
	v.SetDefault("analytics.memory_cache_entries", 128)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.limit", 120)
	v.SetDefault("rate_limit.window", time.Minute)
}

func bindEnvVars(v *viper.Viper) {
	// Service
	v.BindEnv("app.port", "PORT")
	v.BindEnv("app.env", "APP_ENV")
	v.BindEnv("app.log_level", "LOG_LEVEL")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// MongoDB
	v.BindEnv("mongo.uri", "MONGO_URL")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")

	// Backends
	v.BindEnv("storage.events", "EVENT_STORE")
	v.BindEnv("storage.kv", "KV_STORE")
}
