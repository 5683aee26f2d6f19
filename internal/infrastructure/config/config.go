package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Metering  MeteringConfig
	Billing   BillingConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// MeteringConfig holds usage metering pipeline configuration
type MeteringConfig struct {
	Enabled       bool
	BufferSize    int           // capacity of the async delta channel
	FlushInterval time.Duration // how long a worker batch may linger
	BatchSize     int           // max deltas applied per batch
}

// BillingConfig holds billing ledger configuration: per-field dollar rates,
// the fixed platform charge, self-billing overhead and the platform owner
// account.
type BillingConfig struct {
	PlatformOwnerID   string
	CurrencyRate      float64
	Rates             map[string]float64 // metered field name -> dollar rate per unit
	BaseServiceRate   float64
	SelfBillBaseOps   int64
	SelfBillCreateOps int64
	FreemiumDays      int
}

// OwnerID parses the configured platform owner organization ID.
func (b *BillingConfig) OwnerID() (uuid.UUID, error) {
	id, err := uuid.Parse(b.PlatformOwnerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("billing.platform_owner_id is not a valid UUID: %w", err)
	}
	return id, nil
}

// SchedulerConfig holds the monthly billing run configuration
type SchedulerConfig struct {
	Enabled       bool
	CheckInterval time.Duration // how often to check whether a period needs closing
	RunHourUTC    int           // hour of day (UTC) the close-out may start
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with EDUSUITE_ prefix (e.g., EDUSUITE_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("EDUSUITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Metering: MeteringConfig{
			Enabled:       v.GetBool("metering.enabled"),
			BufferSize:    v.GetInt("metering.buffer_size"),
			FlushInterval: v.GetDuration("metering.flush_interval"),
			BatchSize:     v.GetInt("metering.batch_size"),
		},
		Billing: BillingConfig{
			PlatformOwnerID:   v.GetString("billing.platform_owner_id"),
			CurrencyRate:      v.GetFloat64("billing.currency_rate"),
			Rates:             asFloatMap(v.GetStringMap("billing.rates")),
			BaseServiceRate:   v.GetFloat64("billing.base_service_rate"),
			SelfBillBaseOps:   v.GetInt64("billing.self_bill_base_ops"),
			SelfBillCreateOps: v.GetInt64("billing.self_bill_create_ops"),
			FreemiumDays:      v.GetInt("billing.freemium_days"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			CheckInterval: v.GetDuration("scheduler.check_interval"),
			RunHourUTC:    v.GetInt("scheduler.run_hour_utc"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// asFloatMap narrows viper's untyped map values to float64 rates.
func asFloatMap(in map[string]interface{}) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, raw := range in {
		switch val := raw.(type) {
		case float64:
			out[strings.ToUpper(k)] = val
		case int:
			out[strings.ToUpper(k)] = float64(val)
		case int64:
			out[strings.ToUpper(k)] = float64(val)
		}
	}
	return out
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "edusuite-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "edusuite"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-Organization-ID"}
	}
	if cfg.Metering.BufferSize == 0 {
		cfg.Metering.BufferSize = 4096
	}
	if cfg.Metering.FlushInterval == 0 {
		cfg.Metering.FlushInterval = 2 * time.Second
	}
	if cfg.Metering.BatchSize == 0 {
		cfg.Metering.BatchSize = 64
	}
	if cfg.Billing.CurrencyRate == 0 {
		cfg.Billing.CurrencyRate = 1.0
	}
	if cfg.Billing.SelfBillBaseOps == 0 {
		cfg.Billing.SelfBillBaseOps = 2
	}
	if cfg.Billing.SelfBillCreateOps == 0 {
		cfg.Billing.SelfBillCreateOps = 2
	}
	if cfg.Billing.FreemiumDays == 0 {
		cfg.Billing.FreemiumDays = 30
	}
	if cfg.Scheduler.CheckInterval == 0 {
		cfg.Scheduler.CheckInterval = time.Hour
	}
	if cfg.Scheduler.RunHourUTC == 0 {
		cfg.Scheduler.RunHourUTC = 2
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "edusuite-backend"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Billing.PlatformOwnerID != "" {
		if _, err := c.Billing.OwnerID(); err != nil {
			return err
		}
	}
	for field, rate := range c.Billing.Rates {
		if rate < 0 {
			return fmt.Errorf("billing.rates.%s cannot be negative", field)
		}
	}
	if c.Billing.BaseServiceRate < 0 {
		return fmt.Errorf("billing.base_service_rate cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Billing.PlatformOwnerID == "" {
			return fmt.Errorf("billing.platform_owner_id is required in production")
		}
	}

	if c.Scheduler.RunHourUTC < 0 || c.Scheduler.RunHourUTC > 23 {
		return fmt.Errorf("scheduler.run_hour_utc must be between 0 and 23, got %d", c.Scheduler.RunHourUTC)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis connection address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
