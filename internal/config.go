package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server" envPrefix:"HTTP_"`
	Database      DatabaseConfig      `mapstructure:"database" envPrefix:"DB_"`
	Security      SecurityConfig      `mapstructure:"security" envPrefix:"SECURITY_"`
	Session       SessionConfig       `mapstructure:"session" envPrefix:"SESSION_"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" env:"PORT" envDefault:"8080"`
	BaseURL           string        `mapstructure:"base_url" env:"BASE_URL"`
	AllowedOrigins    string        `mapstructure:"allowed_origins" env:"ALLOWED_ORIGINS"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" env:"IDLE_TIMEOUT" envDefault:"60s"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"15s"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" env:"DRIVER" envDefault:"postgres"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
	Source          string        `mapstructure:"source" env:"SOURCE"`
}

type SecurityConfig struct {
	MaxLoginAttempts    int     `mapstructure:"max_login_attempts" env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	PasswordHasher      string  `mapstructure:"password_hasher" env:"PASSWORD_HASHER" envDefault:"argon2id"`
	BCryptCost          int     `mapstructure:"bcrypt_cost" env:"BCRYPT_COST" envDefault:"12"`
	AuditCSRFRejections bool    `mapstructure:"audit_csrf_rejections" env:"AUDIT_CSRF_REJECTIONS"`
	LoginRatePerMinute  float64 `mapstructure:"login_rate_per_minute" env:"LOGIN_RATE_PER_MINUTE" envDefault:"10"`
	LoginRateBurst      int     `mapstructure:"login_rate_burst" env:"LOGIN_RATE_BURST" envDefault:"5"`
}

type SessionConfig struct {
	CookieName        string        `mapstructure:"cookie_name" env:"COOKIE_NAME" envDefault:"HMS_SESSION"`
	CookieSecure      bool          `mapstructure:"cookie_secure" env:"COOKIE_SECURE"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout" env:"INACTIVITY_TIMEOUT" envDefault:"1800s"`
	AbsoluteLifetime  time.Duration `mapstructure:"absolute_lifetime" env:"ABSOLUTE_LIFETIME" envDefault:"28800s"`
	LoginPath         string        `mapstructure:"login_path" env:"LOGIN_PATH" envDefault:"/api/v1/auth/login"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval" env:"SWEEP_INTERVAL" envDefault:"5m"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics" envPrefix:"METRICS_"`
	Logging LoggingConfig `mapstructure:"logging" envPrefix:"LOG_"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" env:"ENABLED"`
	Path    string `mapstructure:"path" env:"PATH" envDefault:"/metrics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" env:"LEVEL" envDefault:"info"`
	Format string `mapstructure:"format" env:"FORMAT" envDefault:"json"`
}

// DefaultConfig holds the values used when neither the config file nor the environment sets them.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
			WriteTimeout:      15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Security: SecurityConfig{
			MaxLoginAttempts:   5,
			PasswordHasher:     "argon2id",
			BCryptCost:         12,
			LoginRatePerMinute: 10,
			LoginRateBurst:     5,
		},
		Session: SessionConfig{
			CookieName:        "HMS_SESSION",
			InactivityTimeout: 1800 * time.Second,
			AbsoluteLifetime:  28800 * time.Second,
			LoginPath:         "/api/v1/auth/login",
			SweepInterval:     5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Path: "/metrics"},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		},
	}
}

// LoadConfigFromEnv reads the whole configuration from environment variables (docker deployments).
func LoadConfigFromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("session config: %v", err))
	}

	if err := c.Observability.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AllowedOrigins != "" {
		for _, origin := range c.Origins() {
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *ServerConfig) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if c.MaxLoginAttempts < 1 {
		return errors.New("max_login_attempts must be at least 1")
	}
	switch c.PasswordHasher {
	case "argon2id":
	case "bcrypt":
		if c.BCryptCost < 10 || c.BCryptCost > 15 {
			return errors.New("bcrypt_cost must be between 10 and 15")
		}
	default:
		return fmt.Errorf("unsupported password_hasher %q", c.PasswordHasher)
	}
	if c.LoginRatePerMinute < 0 || c.LoginRateBurst < 0 {
		return errors.New("login rate settings must not be negative")
	}
	return nil
}

func (c *SessionConfig) Validate() error {
	if c.CookieName == "" {
		return errors.New("cookie_name is required")
	}
	if c.InactivityTimeout <= 0 {
		return errors.New("inactivity_timeout must be positive")
	}
	if c.AbsoluteLifetime <= 0 {
		return errors.New("absolute_lifetime must be positive")
	}
	if c.LoginPath == "" {
		return errors.New("login_path is required")
	}
	return nil
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level %q", c.Level)
	}
	switch c.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid format %q", c.Format)
	}
	return nil
}
