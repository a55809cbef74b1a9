package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Colorization service
	ServiceOrigin string        `mapstructure:"service-origin"`
	HTTPTimeout   time.Duration `mapstructure:"http-timeout"`

	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Where downloaded results go
	WorkDir string `mapstructure:"work-dir"`

	// S3 configuration for s3:// result locators
	S3Region string `mapstructure:"s3-region"`

	LogLevel string `mapstructure:"log-level"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("service-origin", "")
	v.SetDefault("http-timeout", 2*time.Minute)
	v.SetDefault("sqlite-path", ".colorlens/ledger.db")
	v.SetDefault("fsm-db-path", ".colorlens/fsm")
	v.SetDefault("work-dir", ".colorlens/results")
	v.SetDefault("s3-region", "us-east-1")
	v.SetDefault("log-level", "info")
	v.SetDefault("fsm-max-retries", 3)
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration through v
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Environment variables (COLORLENS_SERVICE_ORIGIN, etc.)
	v.SetEnvPrefix("COLORLENS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.colorlens")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ServiceOrigin = strings.TrimRight(cfg.ServiceOrigin, "/")

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir cannot be empty")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http-timeout must be non-negative")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// RequireOrigin rejects an empty service origin. A library caller may leave
// it empty to mean "same origin"; the CLI has no origin of its own.
func (c *Config) RequireOrigin() error {
	if c.ServiceOrigin == "" {
		return fmt.Errorf("service-origin is required (flag --service-origin or COLORLENS_SERVICE_ORIGIN)")
	}
	if !strings.HasPrefix(c.ServiceOrigin, "http://") && !strings.HasPrefix(c.ServiceOrigin, "https://") {
		return fmt.Errorf("service-origin must be an http or https URL: %q", c.ServiceOrigin)
	}
	return nil
}

// ParseLevel maps a log-level name to a slog level
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log-level %q", name)
	}
	return level, nil
}
