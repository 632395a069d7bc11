package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	App           AppConfig
	Cache         CacheConfig
	Resolver      ResolverConfig
	Clicks        ClicksConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" required:"true"`
	Host            string        `envconfig:"SERVER_HOST" required:"true"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" required:"true"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" required:"true"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" required:"true"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" required:"true"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Host        string `envconfig:"DB_HOST" required:"true"`
	Port        string `envconfig:"DB_PORT" required:"true"`
	User        string `envconfig:"DB_USER" required:"true"`
	Password    string `envconfig:"DB_PASSWORD" required:"true"`
	Name        string `envconfig:"DB_NAME" required:"true"`
	SSLMode     string `envconfig:"DB_SSLMODE" required:"true"`
	MaxConns    int32  `envconfig:"DB_MAX_CONNS" required:"true"`
	MinConns    int32  `envconfig:"DB_MIN_CONNS" required:"true"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.User == "" {
		return fmt.Errorf("user cannot be empty")
	}
	if c.Password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.MinConns <= 0 {
		return fmt.Errorf("min connections must be positive")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	}

	validSSLModes := map[string]bool{
		"disable":     true,
		"require":     true,
		"verify-ca":   true,
		"verify-full": true,
	}
	if !validSSLModes[c.SSLMode] {
		return fmt.Errorf("invalid SSL mode: %s (must be one of: disable, require, verify-ca, verify-full)", c.SSLMode)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the connection settings as a postgres:// URL, the form the
// migrator expects.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// AppConfig holds application-specific configuration.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" required:"true"`   // development, staging, production, test
	LogLevel    string `envconfig:"LOG_LEVEL" required:"true"` // debug, info, warn, error
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Environment)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}

// CacheConfig sizes the link cache and sets how long answers stay fresh.
type CacheConfig struct {
	MaxEntries    int           `envconfig:"CACHE_MAX_ENTRIES" default:"10000"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"1m"`
	ActiveTTL     time.Duration `envconfig:"CACHE_ACTIVE_TTL" default:"30s"`
	InactiveTTL   time.Duration `envconfig:"CACHE_INACTIVE_TTL" default:"5m"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("max entries must be positive")
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep interval cannot be negative")
	}
	if c.ActiveTTL <= 0 {
		return fmt.Errorf("active TTL must be positive")
	}
	if c.InactiveTTL <= 0 {
		return fmt.Errorf("inactive TTL must be positive")
	}
	return nil
}

// ResolverConfig holds settings for the redirect path.
type ResolverConfig struct {
	StoreTimeout      time.Duration `envconfig:"RESOLVE_STORE_TIMEOUT" default:"2s"`
	ErrorPageURL      string        `envconfig:"REDIRECT_ERROR_PAGE_URL"`
	TrustProxyHeaders bool          `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
}

// Validate validates the resolver configuration.
func (c *ResolverConfig) Validate() error {
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	if c.ErrorPageURL != "" {
		u, err := url.Parse(c.ErrorPageURL)
		if err != nil {
			return fmt.Errorf("invalid error page URL: %w", err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("error page URL must be an absolute http(s) URL, got %q", c.ErrorPageURL)
		}
	}
	return nil
}

// ClicksConfig controls batching of click writes.
type ClicksConfig struct {
	FlushInterval  time.Duration `envconfig:"CLICKS_FLUSH_INTERVAL" default:"10s"`
	FlushThreshold int           `envconfig:"CLICKS_FLUSH_THRESHOLD" default:"100"`
	MaxPending     int           `envconfig:"CLICKS_MAX_PENDING" default:"10000"`
	FlushTimeout   time.Duration `envconfig:"CLICKS_FLUSH_TIMEOUT" default:"5s"`
}

// Validate validates the clicks configuration.
func (c *ClicksConfig) Validate() error {
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive")
	}
	if c.FlushThreshold <= 0 {
		return fmt.Errorf("flush threshold must be positive")
	}
	if c.MaxPending < c.FlushThreshold {
		return fmt.Errorf("max pending (%d) cannot be less than flush threshold (%d)", c.MaxPending, c.FlushThreshold)
	}
	if c.FlushTimeout <= 0 {
		return fmt.Errorf("flush timeout must be positive")
	}
	return nil
}

// ObservabilityConfig holds configuration for metrics and service identity.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	ServiceName    string `envconfig:"SERVICE_NAME" default:"shortlink"`
	ServiceVersion string `envconfig:"SERVICE_VERSION" default:"dev"`
}

// Validate validates the observability configuration.
func (c *ObservabilityConfig) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	return nil
}

type section struct {
	name string
	cfg  interface{ Validate() error }
}

// Load loads configuration from environment variables only.
// (Do .env loading in internal/app for dev, not here.)
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []section{
		{"Server", &cfg.Server},
		{"Database", &cfg.Database},
		{"App", &cfg.App},
		{"Cache", &cfg.Cache},
		{"Resolver", &cfg.Resolver},
		{"Clicks", &cfg.Clicks},
		{"Observability", &cfg.Observability},
	}

	for _, s := range sections {
		if err := envconfig.Process("", s.cfg); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
		if err := s.cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}

	return cfg, nil
}

// LoadDatabase loads and validates only the database section, for tools such
// as the migrator that do not serve traffic.
func LoadDatabase() (*DatabaseConfig, error) {
	var c DatabaseConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("failed to load Database config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid Database config: %w", err)
	}
	return &c, nil
}
