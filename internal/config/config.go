package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/attic/config.yaml"

// Config holds all attic configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Retention RetentionConfig `yaml:"retention"`
	Archival  ArchivalConfig  `yaml:"archival"`
	Daemon    DaemonConfig    `yaml:"daemon"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type StorageConfig struct {
	Dir         string `yaml:"dir"`
	MainFile    string `yaml:"main_file"`
	ArchiveFile string `yaml:"archive_file"`
	IconFile    string `yaml:"icon_file"`
}

type RetentionConfig struct {
	// Days is the rolling main-store window; visits older than this
	// are archived or discarded.
	Days int `yaml:"days"`
}

type ArchivalConfig struct {
	BatchSize        int `yaml:"batch_size"`
	FastDelaySeconds int `yaml:"fast_delay_seconds"`
	SlowDelayMinutes int `yaml:"slow_delay_minutes"`
}

type DaemonConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RetentionDuration returns the retention window as a duration.
func (c *Config) RetentionDuration() time.Duration {
	return time.Duration(c.Retention.Days) * 24 * time.Hour
}

// FastDelay returns the fast archival cadence as a duration.
func (c *Config) FastDelay() time.Duration {
	return time.Duration(c.Archival.FastDelaySeconds) * time.Second
}

// SlowDelay returns the slow archival cadence as a duration.
func (c *Config) SlowDelay() time.Duration {
	return time.Duration(c.Archival.SlowDelayMinutes) * time.Minute
}

// MainDBPath returns the resolved path of the main history database.
func (c *Config) MainDBPath() (string, error) {
	return c.dbPath(c.Storage.MainFile)
}

// ArchiveDBPath returns the resolved path of the archived history
// database.
func (c *Config) ArchiveDBPath() (string, error) {
	return c.dbPath(c.Storage.ArchiveFile)
}

// IconDBPath returns the resolved path of the favicon/thumbnail
// database.
func (c *Config) IconDBPath() (string, error) {
	return c.dbPath(c.Storage.IconFile)
}

func (c *Config) dbPath(file string) (string, error) {
	dir, err := expandPath(c.Storage.Dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, file), nil
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
