// Package models defines configuration shared by the CLI and the
// harvest pipeline.
package models

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults mirror the rate the upstream API tolerates well: modest
// concurrency, a small delay between dispatches, and a generous retry
// budget so transient 5xx/429 responses do not cost data.
const (
	DefaultBaseURL      = "https://www.sreality.cz/api/cs/v2/estates"
	DefaultCategoryMain = 1  // flats
	DefaultCategoryType = 1  // for sale
	DefaultRegionID     = 10 // Prague
	DefaultPerPage      = 999
	DefaultWorkerCount  = 8
	DefaultMaxRetries   = 5
	DefaultTimeout      = 30 * time.Second
	DefaultDelay        = 250 * time.Millisecond
)

// Sink selection values accepted by RunConfig.Sink.
const (
	SinkCSV      = "csv"
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
)

// PostgresConfig holds connection settings for the relational sink.
// Credentials come from the environment (optionally via a .env file),
// never from the YAML config.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"-"`
	Password string `yaml:"-"`
	Database string `yaml:"-"`
}

// RunConfig holds runtime configuration for a harvest run. Values come
// from defaults, then an optional YAML file, then CLI flags.
type RunConfig struct {
	BaseURL      string `yaml:"base_url"`
	CategoryMain int    `yaml:"category_main_cb"`
	CategoryType int    `yaml:"category_type_cb"`
	RegionID     int    `yaml:"locality_region_id"`

	PerPage     int `yaml:"per_page"`
	WorkerCount int `yaml:"workers"`
	MaxRetries  int `yaml:"max_retries"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
	DelayMillis    int `yaml:"delay_ms"`

	Sink       string         `yaml:"sink"`
	CSVPath    string         `yaml:"csv_path"`
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
}

// DefaultRunConfig returns a RunConfig populated with defaults.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		BaseURL:        DefaultBaseURL,
		CategoryMain:   DefaultCategoryMain,
		CategoryType:   DefaultCategoryType,
		RegionID:       DefaultRegionID,
		PerPage:        DefaultPerPage,
		WorkerCount:    DefaultWorkerCount,
		MaxRetries:     DefaultMaxRetries,
		TimeoutSeconds: int(DefaultTimeout / time.Second),
		DelayMillis:    int(DefaultDelay / time.Millisecond),
		Sink:           SinkCSV,
		CSVPath:        "estates.csv",
		SQLitePath:     "estates.db",
		Postgres: PostgresConfig{
			Host: "localhost",
			Port: 5432,
		},
	}
}

// LoadConfig builds a RunConfig from defaults, an optional YAML file,
// and the environment. A missing config file is not an error; flags
// and defaults are enough to run.
func LoadConfig(path string) (*RunConfig, error) {
	cfg := DefaultRunConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to env/defaults
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// Best effort: a .env file is optional, the variables may already
	// be exported.
	_ = godotenv.Load()
	cfg.Postgres.applyEnv()

	return cfg, nil
}

// Timeout returns the per-request timeout as a duration.
func (c *RunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Delay returns the minimum delay between request dispatches.
func (c *RunConfig) Delay() time.Duration {
	return time.Duration(c.DelayMillis) * time.Millisecond
}

func (p *PostgresConfig) applyEnv() {
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		p.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			p.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		p.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		p.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		p.Database = v
	}
}
