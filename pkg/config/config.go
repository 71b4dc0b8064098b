// Package config holds application configuration for the bleio tools.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds tool-level settings. Zero values are filled from the
// `default` tags; a YAML file can override any field.
type Config struct {
	LogLevel          string        `yaml:"log_level" default:"info"`
	ScanDuration      time.Duration `yaml:"scan_duration" default:"10s"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"30s"`
	DeliveryQueueSize int           `yaml:"delivery_queue_size" default:"256"`
	OutputFormat      string        `yaml:"output_format" default:"table"` // table, json
}

// Default returns a Config populated from the default tags.
func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks field values that have a constrained domain.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output format %q (must be table or json)", c.OutputFormat)
	}
	if c.DeliveryQueueSize < 0 {
		return fmt.Errorf("delivery queue size must be non-negative, got %d", c.DeliveryQueueSize)
	}
	return nil
}

// NewLogger creates a logger configured from the config.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger
}
