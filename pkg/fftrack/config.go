package fftrack

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fftrack/fftrack/pkg/fftrack/fingerprint"
	"github.com/fftrack/fftrack/pkg/fftrack/match"
	"github.com/fftrack/fftrack/pkg/logger"
)

// Config collects everything the service needs. There is no implicit
// process-wide state: components receive this (or a sub-config) explicitly.
type Config struct {
	DBPath      string             `json:"db_path"`
	TempDir     string             `json:"temp_dir"`
	Fingerprint fingerprint.Config `json:"fingerprint"`
	Match       match.Config       `json:"match"`

	Logger  *logger.Logger `json:"-"`
	Storage Storage        `json:"-"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		DBPath:      storageDefaultPath(),
		TempDir:     os.TempDir(),
		Fingerprint: fingerprint.DefaultConfig(),
		Match:       match.DefaultConfig(),
	}
}

func storageDefaultPath() string {
	if p := os.Getenv("FFTRACK_DB_PATH"); p != "" {
		return p
	}
	return "fftrack.sqlite3"
}

// Validate checks every numeric setting eagerly so a bad value fails at
// configuration time, never mid-pipeline.
func (c *Config) Validate() error {
	if err := c.Fingerprint.Validate(); err != nil {
		return fmt.Errorf("fingerprint config: %w", err)
	}
	if err := c.Match.Validate(); err != nil {
		return fmt.Errorf("match config: %w", err)
	}
	return nil
}

// LoadConfigFile reads a JSON config file over the defaults and validates it.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfigFile writes the configuration as indented JSON.
func (c *Config) SaveConfigFile(path string) error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) { c.DBPath = path }
}

func WithTempDir(dir string) Option {
	return func(c *Config) { c.TempDir = dir }
}

func WithFingerprintConfig(fc fingerprint.Config) Option {
	return func(c *Config) { c.Fingerprint = fc }
}

func WithMatchConfig(mc match.Config) Option {
	return func(c *Config) { c.Match = mc }
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Config) { c.Logger = log }
}

func WithStorage(store Storage) Option {
	return func(c *Config) { c.Storage = store }
}
