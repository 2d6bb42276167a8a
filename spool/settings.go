package spool

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the file representation of the most used [Config] parameters. Zero fields keep the
// defaults.
type Settings struct {
	File         string        `yaml:"file"`
	Durable      bool          `yaml:"durable"`
	FlushSize    int           `yaml:"flush_size"`
	FlushTimeout time.Duration `yaml:"flush_timeout"`
	Workers      int           `yaml:"workers"`
	Batches      int           `yaml:"batches"`
	Capacity     int           `yaml:"capacity"`
}

// LoadSettings reads [Settings] from a YAML file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}

	return s, nil
}

// WithSettings returns a configuration function applying the non-zero fields of s. Invalid values
// panic like the corresponding [Config] setters.
func WithSettings[Item any](s Settings) func(*Config[Item]) {
	return func(c *Config[Item]) {
		if s.File != "" {
			c.File(File(s.File).Durable(s.Durable))
		}
		if s.FlushSize != 0 {
			c.FlushSize(s.FlushSize)
		}
		if s.FlushTimeout != 0 {
			c.FlushTimeout(s.FlushTimeout)
		}
		if s.Workers != 0 {
			c.Workers(s.Workers)
		}
		if s.Batches != 0 {
			c.Batches(s.Batches)
		}
		if s.Capacity != 0 {
			c.Capacity(s.Capacity)
		}
	}
}
