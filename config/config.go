// Package config loads service settings from an optional YAML file and the
// environment. A .env file in the working directory is loaded first when
// present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// PathEnv names the variable holding the YAML config path.
const PathEnv = "EARNINGS_CONFIG_PATH"

type Config struct {
	HTTP       HTTP       `yaml:"http"`
	DB         DB         `yaml:"db"`
	Commission Commission `yaml:"commission"`
	Kafka      Kafka      `yaml:"kafka"`
	SMS        SMS        `yaml:"sms"`
	Log        Log        `yaml:"log"`
	Scheduler  Scheduler  `yaml:"scheduler"`
	Tables     Tables     `yaml:"tables"`
}

type HTTP struct {
	Port           int      `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-default:"*"`
}

type DB struct {
	Path string `yaml:"path" env:"DB_PATH" env-default:"earnings.db"`
}

type Commission struct {
	// BaseRate seeds the platform base rate when none has been set yet.
	BaseRate string `yaml:"base_rate" env:"COMMISSION_BASE_RATE" env-default:"0.10"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"earnings.notifications"`
}

type SMS struct {
	APIURL   string `yaml:"api_url" env:"SMS_API_URL"`
	Username string `yaml:"username" env:"SMS_USERNAME"`
	Password string `yaml:"password" env:"SMS_PASSWORD"`
	SenderID string `yaml:"sender_id" env:"SMS_SENDER_ID" env-default:"Earnings"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

type Scheduler struct {
	Enabled           bool          `yaml:"enabled" env:"SCHEDULER_ENABLED" env-default:"true"`
	AdBillingInterval time.Duration `yaml:"ad_billing_interval" env:"SCHEDULER_AD_BILLING_INTERVAL" env-default:"1h"`
}

type Tables struct {
	// Path is an optional JSON rate-table file (see factory.ParseRateTables).
	Path string `yaml:"path" env:"TABLES_PATH"`
}

// Load reads .env (if any), then the YAML file named by PathEnv (if set),
// then the environment, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path := os.Getenv(PathEnv); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if _, err := c.BaseRate(); err != nil {
		return err
	}
	if c.Scheduler.Enabled && c.Scheduler.AdBillingInterval <= 0 {
		return fmt.Errorf("scheduler.ad_billing_interval must be positive")
	}
	return nil
}

// BaseRate parses Commission.BaseRate; it must lie in [0, 1).
func (c *Config) BaseRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.Commission.BaseRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("commission.base_rate: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("commission.base_rate %s must be in [0, 1)", rate)
	}
	return rate, nil
}

// Addr is the listen address.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.HTTP.Port) }
