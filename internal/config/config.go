package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

type Config struct {
	Version       string   `json:"version" mapstructure:"version"`
	CapturesPath  string   `json:"captures_path" mapstructure:"captures_path"`
	OverridesPath string   `json:"overrides_path" mapstructure:"overrides_path"`
	TableMapPath  string   `json:"table_map_path" mapstructure:"table_map_path"`
	OutputPath    string   `json:"output_path" mapstructure:"output_path"`
	OutputFormat  string   `json:"output_format" mapstructure:"output_format"`
	Workers       int      `json:"workers" mapstructure:"workers"`
	FetchDepth    int      `json:"fetch_depth" mapstructure:"fetch_depth"`
	Database      Database `json:"database" mapstructure:"database"`
}

type Database struct {
	Provider string `json:"provider" mapstructure:"provider"`
	URLEnv   string `json:"url_env" mapstructure:"url_env"`
}

func Load() (*Config, error) {
	var cfg Config

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.CapturesPath == "" {
		cfg.CapturesPath = "db/captures"
	}
	if cfg.OverridesPath == "" {
		cfg.OverridesPath = "db/mappings.yaml"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = "db/seed"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "json"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.FetchDepth <= 0 {
		cfg.FetchDepth = 10
	}
	if cfg.Database.Provider == "" {
		cfg.Database.Provider = "postgresql"
	}
	if cfg.Database.URLEnv == "" {
		cfg.Database.URLEnv = "DATABASE_URL"
	}

	return &cfg, nil
}

func (c *Config) GetDatabaseURL() (string, error) {
	dbURL := os.Getenv(c.Database.URLEnv)
	if dbURL == "" {
		return "", fmt.Errorf("database URL not found in environment variable %s", c.Database.URLEnv)
	}
	return dbURL, nil
}

func (c *Config) Validate() error {
	switch c.Database.Provider {
	case "postgresql", "postgres":
		return nil
	default:
		return fmt.Errorf("unsupported database provider: %s (only PostgreSQL captures can be replayed)", c.Database.Provider)
	}
}
