package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Service struct {
		Name       string `yaml:"name"`
		HealthPort int    `yaml:"health_port"`
	} `yaml:"service"`

	Tally struct {
		URL                   string `yaml:"url"`
		Company               string `yaml:"company"`
		VoucherTimeoutSeconds int    `yaml:"voucher_timeout_seconds"`
		MasterTimeoutSeconds  int    `yaml:"master_timeout_seconds"`
	} `yaml:"tally"`

	Postgres struct {
		// DSN wins when set; otherwise the discrete fields are assembled.
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Database string `yaml:"database"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"postgres"`

	Ingest struct {
		BatchDays int `yaml:"batch_days"` // day-by-day batch size
	} `yaml:"ingest"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a YAML file, then applies
// environment overrides and defaults. A missing file is not an error
// when the environment carries the required settings.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment overrides
	if v := os.Getenv("TALLY_URL"); v != "" {
		cfg.Tally.URL = v
	}
	if v := os.Getenv("TALLY_COMPANY"); v != "" {
		cfg.Tally.Company = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("BATCH_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BATCH_DAYS %q: %w", v, err)
		}
		cfg.Ingest.BatchDays = n
	}
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HEALTH_PORT %q: %w", v, err)
		}
		cfg.Service.HealthPort = n
	}

	// Set defaults
	if cfg.Service.Name == "" {
		cfg.Service.Name = "tally-postgres-ingester"
	}
	if cfg.Tally.VoucherTimeoutSeconds == 0 {
		cfg.Tally.VoucherTimeoutSeconds = 60
	}
	if cfg.Tally.MasterTimeoutSeconds == 0 {
		cfg.Tally.MasterTimeoutSeconds = 300
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Ingest.BatchDays == 0 {
		cfg.Ingest.BatchDays = 15
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	return &cfg, nil
}

// Validate reports the configuration gaps that make any run impossible.
func (c *Config) Validate() error {
	if c.Tally.URL == "" {
		return fmt.Errorf("source URL not configured (tally.url or TALLY_URL)")
	}
	if c.Tally.Company == "" {
		return fmt.Errorf("source company not configured (tally.company or TALLY_COMPANY)")
	}
	if c.Postgres.DSN == "" && (c.Postgres.Host == "" || c.Postgres.Database == "") {
		return fmt.Errorf("warehouse connection not configured (postgres.dsn or DATABASE_URL)")
	}
	return nil
}

// GetPostgresConnectionString returns a connection string for PostgreSQL
func (c *Config) GetPostgresConnectionString() string {
	if c.Postgres.DSN != "" {
		return c.Postgres.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Database,
		c.Postgres.SSLMode,
	)
}
