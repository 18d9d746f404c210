// Package config loads the metering service configuration from config.toml
// and CLOUDMETER_* environment overrides. The loaded Config is an explicit
// value passed into component constructors; nothing reads configuration
// ambiently.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Billing  BillingConfig
	Backend  BackendConfig
	Account  AccountConfig
	Worker   WorkerConfig
	HTTP     HTTPConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string `validate:"required"`
	Port            int    `validate:"gt=0"`
	User            string
	Password        string
	DBName          string `validate:"required"`
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

// BillingConfig holds billing enforcement settings
type BillingConfig struct {
	// Enabled turns the whole enforcement layer on or off; when off every
	// request passes through unmetered.
	Enabled bool
	// MinBalance is the balance at or below which billable requests are
	// rejected, as a decimal string.
	MinBalance string
	// ExemptLevel is the account privilege level exempt from solvency checks
	ExemptLevel int `validate:"gte=0"`
	// StoppedPriceFactor scales unit price for stopped resources ("0" to "1")
	StoppedPriceFactor string
}

// BackendConfig holds the proxied backend API settings
type BackendConfig struct {
	URL     string `validate:"required,url"`
	Timeout time.Duration
}

// AccountConfig holds the account-balance collaborator settings
type AccountConfig struct {
	URL     string `validate:"required,url"`
	Timeout time.Duration
	// AuthURL issues service credentials for the balance API
	AuthURL  string
	User     string
	Password string
}

// WorkerConfig selects how the gateway reaches the order lifecycle:
// "local" for in-process calls, "remote" for a separate worker deployment.
type WorkerConfig struct {
	Mode    string `validate:"oneof=local remote"`
	URL     string
	Timeout time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load reads configuration from config.toml and environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CLOUDMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
		Billing: BillingConfig{
			Enabled:            v.GetBool("billing.enabled"),
			MinBalance:         v.GetString("billing.min_balance"),
			ExemptLevel:        v.GetInt("billing.exempt_level"),
			StoppedPriceFactor: v.GetString("billing.stopped_price_factor"),
		},
		Backend: BackendConfig{
			URL:     v.GetString("backend.url"),
			Timeout: v.GetDuration("backend.timeout"),
		},
		Account: AccountConfig{
			URL:      v.GetString("account.url"),
			Timeout:  v.GetDuration("account.timeout"),
			AuthURL:  v.GetString("account.auth_url"),
			User:     v.GetString("account.user"),
			Password: v.GetString("account.password"),
		},
		Worker: WorkerConfig{
			Mode:    v.GetString("worker.mode"),
			URL:     v.GetString("worker.url"),
			Timeout: v.GetDuration("worker.timeout"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers default values for optional settings
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cloudmeter")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.dbname", "cloudmeter")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.conn_max_idle_time", 10)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("billing.enabled", true)
	v.SetDefault("billing.min_balance", "0")
	v.SetDefault("billing.exempt_level", 9)
	v.SetDefault("billing.stopped_price_factor", "0")
	v.SetDefault("backend.url", "http://localhost:8774")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("account.url", "http://localhost:8089")
	v.SetDefault("account.timeout", 10*time.Second)
	v.SetDefault("worker.mode", "local")
	v.SetDefault("worker.timeout", 10*time.Second)
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 120*time.Second)
}

// Validate checks that loaded configuration is usable
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Worker.Mode == "remote" && c.Worker.URL == "" {
		return fmt.Errorf("invalid configuration: worker.url is required in remote mode")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Addr returns the Redis address in host:port form
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
