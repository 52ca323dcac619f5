// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Server struct {
		Host string `yaml:"host" json:"host"`
		Port int    `yaml:"port" json:"port"`
	} `yaml:"server" json:"server"`

	Store struct {
		Backend      string `yaml:"backend" json:"backend"`             // file, badger
		CacheSize    int    `yaml:"cache_size" json:"cache_size"`       // reconstructed versions kept in memory
		ContextLines int    `yaml:"context_lines" json:"context_lines"` // diff output
	} `yaml:"store" json:"store"`

	Watch struct {
		Debounce time.Duration `yaml:"debounce" json:"debounce"`
	} `yaml:"watch" json:"watch"`

	Scheduler struct {
		PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	} `yaml:"scheduler" json:"scheduler"`

	Environment string `yaml:"environment" json:"environment"` // dev, prod
	LogLevel    string `yaml:"log_level" json:"log_level"`     // debug, info, warn, error
}

func Default() *Config {
	var c Config
	c.Server.Host = "127.0.0.1"
	c.Server.Port = 7420
	c.Store.Backend = "file"
	c.Store.CacheSize = 64
	c.Store.ContextLines = 3
	c.Watch.Debounce = 100 * time.Millisecond
	c.Scheduler.PollInterval = 50 * time.Millisecond
	c.Environment = "development"
	c.LogLevel = "info"
	return &c
}

// Load reads a YAML or JSON config file over the defaults. A missing file is
// not an error. SBVC_LOG_LEVEL and SBVC_STORE_BACKEND override the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if level := os.Getenv("SBVC_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if backend := os.Getenv("SBVC_STORE_BACKEND"); backend != "" {
		config.Store.Backend = backend
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file", "badger":
	default:
		return fmt.Errorf("invalid store backend %q", c.Store.Backend)
	}
	if c.Store.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
