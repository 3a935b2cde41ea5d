package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mwantia/unifs"
	"github.com/mwantia/unifs/backend"
	"github.com/mwantia/unifs/log"
	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration of the shell.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Cache   CacheConfig   `yaml:"cache"`
	Backend BackendConfig `yaml:"backend"`

	// Location is used when no descriptor is passed on the command line.
	Location string `yaml:"location"`
}

type LogConfig struct {
	Level    string              `yaml:"level"`
	File     string              `yaml:"file"`
	JSON     bool                `yaml:"json"`
	NoColor  bool                `yaml:"no_color"`
	Rotation *log.LoggerRotation `yaml:"rotation"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// BackendConfig holds defaults applied to every backend. Zero values keep
// the backend's own defaults.
type BackendConfig struct {
	PageSize     int           `yaml:"page_size"`
	PartSize     int64         `yaml:"part_size"`
	Concurrency  int           `yaml:"concurrency"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`
}

func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "warn",
		},
		Cache: CacheConfig{
			TTL: backend.DefaultListingTTL,
		},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config '%s': %w", path, err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	return nil
}

// NewLogger writes to the configured file, or to stderr so that command
// output on stdout stays clean.
func (c *Config) NewLogger() (*log.Logger, error) {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	var logger *log.Logger
	if c.Log.File != "" {
		logger = log.NewLogger("unifs", level, c.Log.File, true)
		if c.Log.Rotation != nil {
			logger.Rotation = c.Log.Rotation
			logger.Reconfigure()
		}
	} else {
		logger = log.NewWriterLogger("unifs", level, os.Stderr)
	}

	logger.JSON = c.Log.JSON
	if c.Log.NoColor {
		logger.NoColor = true
	}
	return logger, nil
}

// Options maps the configuration onto library options.
func (c *Config) Options(logger *log.Logger) []unifs.Option {
	opts := []unifs.Option{
		unifs.WithLogger(logger),
		unifs.WithListingCache(backend.NewListingCache(c.Cache.TTL)),
	}

	if c.Backend.PageSize > 0 {
		opts = append(opts, unifs.WithPageSize(c.Backend.PageSize))
	}
	if c.Backend.PartSize > 0 {
		opts = append(opts, unifs.WithPartSize(c.Backend.PartSize))
	}
	if c.Backend.Concurrency > 0 {
		opts = append(opts, unifs.WithConcurrency(c.Backend.Concurrency))
	}
	if c.Backend.SignedURLTTL > 0 {
		opts = append(opts, unifs.WithSignedURLTTL(c.Backend.SignedURLTTL))
	}

	return opts
}
