// Package config handles daemon configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

// Config is the daemon's on-disk configuration: where to listen, and the
// analysis parameter bundle it starts the pipeline with (spec.md §6:
// "the pipeline reads a parameter bundle at construction and on explicit
// reload").
type Config struct {
	// SocketPath is a Unix socket path stored with the config. cmd/blinkcored
	// does not read it: the IPC server listens on the -socket flag's path.
	SocketPath string `json:"socketPath"`

	// DataDir is a directory path stored with the config; nothing in the
	// daemon reads it.
	DataDir string `json:"dataDir"`

	// Params is the hot-reloadable analysis parameter bundle.
	Params params.Bundle `json:"params"`
}

// DefaultConfig returns the default configuration, including spec.md §6's
// default parameter bundle.
func DefaultConfig() *Config {
	return &Config{
		SocketPath: "/tmp/blinkcored.sock",
		DataDir:    "",
		Params:     params.Default(),
	}
}

// Manager handles loading, saving and safely swapping configuration.
type Manager struct {
	configDir  string
	configPath string

	mu     sync.RWMutex
	config *Config
}

// NewManager creates a new configuration manager rooted at configDir.
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk, creating a default file if none
// exists yet. A parameter bundle that fails Validate is rejected and the
// previously loaded (default) config is kept (spec.md §7: "configuration
// fault ... reject the reload as a whole; keep prior parameters").
func (m *Manager) Load() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.mu.Lock()
		m.config = DefaultConfig()
		m.mu.Unlock()
		return m.Save()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Params.Validate(); err != nil {
		return fmt.Errorf("config on disk has invalid params, keeping prior: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Save writes the current configuration to disk.
func (m *Manager) Save() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	m.mu.RLock()
	data, err := json.MarshalIndent(m.config, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// GetPath returns the config file path.
func (m *Manager) GetPath() string {
	return m.configPath
}

// Params returns the currently active parameter bundle.
func (m *Manager) Params() params.Bundle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Params
}

// ReloadParams validates the candidate bundle and, only if it passes,
// atomically swaps it in and persists the config (spec.md §7: whole-
// bundle accept/reject).
func (m *Manager) ReloadParams(b params.Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.config.Params = b
	m.mu.Unlock()

	return m.Save()
}
