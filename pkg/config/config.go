// Package config loads the process-wide configuration: target credentials,
// endpoints, storage paths, and the optional run schedule. Values come from
// a YAML file layered under environment variables; a .env file is honored
// when present. Credentials are immutable for the process lifetime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration.
type Config struct {
	// Email and Password are the login identity for the target application.
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// BaseURL overrides the target host. Empty selects the production host.
	BaseURL string `yaml:"base_url"`

	// AuthStatePath is where the session blob is persisted.
	// Empty selects ~/.planpilot/auth.json.
	AuthStatePath string `yaml:"auth_state_path"`

	// HistoryDBPath is where the run log lives.
	// Empty selects ~/.planpilot/history.db.
	HistoryDBPath string `yaml:"history_db_path"`

	// Schedule is an optional cron expression that triggers runs
	// automatically, e.g. "0 7 * * *".
	Schedule string `yaml:"schedule"`

	// Headless controls browser visibility. Defaults to true.
	Headless bool `yaml:"headless"`
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, ".planpilot", "config.yaml"), nil
}

// Load reads the config file at path (missing file is fine), applies any
// .env file in the working directory, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{Headless: true}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// A local .env is a development convenience; absence is normal.
	_ = godotenv.Load()

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PLANPILOT_EMAIL"); v != "" {
		cfg.Email = v
	}
	if v := os.Getenv("PLANPILOT_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("PLANPILOT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("PLANPILOT_AUTH_STATE"); v != "" {
		cfg.AuthStatePath = v
	}
	if v := os.Getenv("PLANPILOT_HISTORY_DB"); v != "" {
		cfg.HistoryDBPath = v
	}
	if v := os.Getenv("PLANPILOT_SCHEDULE"); v != "" {
		cfg.Schedule = v
	}
	if v := os.Getenv("PLANPILOT_HEADLESS"); v != "" {
		if headless, err := strconv.ParseBool(v); err == nil {
			cfg.Headless = headless
		}
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Email == "" {
		return fmt.Errorf("config: email is required (set PLANPILOT_EMAIL or the email field)")
	}
	if c.Password == "" {
		return fmt.Errorf("config: password is required (set PLANPILOT_PASSWORD or the password field)")
	}
	return nil
}
