package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigDir returns the default client config directory (~/.quillbooks).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".quillbooks"), nil
}

// DefaultConfigPath returns the default client config file path (~/.quillbooks/config.yml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// ClientConfig holds the sync client's configuration.
type ClientConfig struct {
	ServerURL    string        `yaml:"server_url,omitempty"`
	TenantID     string        `yaml:"tenant_id,omitempty"`
	Email        string        `yaml:"email,omitempty"`
	SyncInterval time.Duration `yaml:"sync_interval,omitempty"`
	MaxRetries   int           `yaml:"max_retries,omitempty"`
	RetryBackoff time.Duration `yaml:"retry_backoff,omitempty"`
}

// Validate checks that the configuration has the fields required for sync.
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if c.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	return nil
}

// applyDefaults fills zero fields with workable values.
func (c *ClientConfig) applyDefaults() {
	if c.SyncInterval <= 0 {
		c.SyncInterval = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
}

// LoadClient reads the client configuration from the given path.
// If the file does not exist, a config with defaults is returned.
func LoadClient(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &ClientConfig{}
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// SaveClient writes the client configuration to the given path, creating the
// directory if needed. The file is written with owner-only permissions since
// it may sit next to cached credentials.
func SaveClient(path string, cfg *ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
