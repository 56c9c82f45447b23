// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	AdminAPIKey string `yaml:"admin_api_key"`
	// Session secret for the operator console JWT cookie.
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	// Public base URL used to build gateway return/cancel URLs.
	BaseURL string `yaml:"base_url"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PlanTTL  time.Duration `yaml:"plan_ttl"` // plan cache TTL
}

type PayPalConfig struct {
	ClientID string `yaml:"client_id"`
	Secret   string `yaml:"secret"`
	Sandbox  bool   `yaml:"sandbox"`
}

type TapConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type PaymentConfig struct {
	PayPal PayPalConfig `yaml:"paypal"`
	Tap    TapConfig    `yaml:"tap"`
}

type CallbackConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type SweeperConfig struct {
	Interval    time.Duration `yaml:"interval"`
	StaleAfter  time.Duration `yaml:"stale_after"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Payment  PaymentConfig  `yaml:"payment"`
	Callback CallbackConfig `yaml:"callback"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads and validates the YAML config at path.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.SessionTTL <= 0 {
		c.Server.SessionTTL = 30 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Redis.PlanTTL <= 0 {
		c.Redis.PlanTTL = time.Hour
	}
	if c.Callback.MaxAttempts <= 0 {
		c.Callback.MaxAttempts = 20
	}
	if c.Callback.BaseDelay <= 0 {
		c.Callback.BaseDelay = 2 * time.Second
	}
	if c.Callback.MaxDelay <= 0 {
		c.Callback.MaxDelay = 4 * time.Second
	}
	if c.Sweeper.Interval <= 0 {
		c.Sweeper.Interval = 5 * time.Minute
	}
	if c.Sweeper.StaleAfter <= 0 {
		c.Sweeper.StaleAfter = 24 * time.Hour
	}
	if c.Sweeper.BatchSize <= 0 {
		c.Sweeper.BatchSize = 200
	}
	if c.Sweeper.Concurrency <= 0 {
		c.Sweeper.Concurrency = 4
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if c.Payment.PayPal.ClientID == "" && c.Payment.Tap.SecretKey == "" {
		return errors.New("config: at least one payment provider must be configured")
	}
	if !c.Runtime.Dev && c.Server.AdminAPIKey == "" {
		return errors.New("config: server.admin_api_key is required outside dev mode")
	}
	return nil
}
