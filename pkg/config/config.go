// Package config handles dispatch daemon configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./dispatch.yaml, ~/.config/dispatch/config.yaml, /etc/dispatch/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"dispatch.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "dispatch", "config.yaml"))
	}

	paths = append(paths, "/etc/dispatch/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// An empty path with no error means no config file was found and defaults apply.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// Config holds all dispatch daemon configuration.
type Config struct {
	Listen ListenConfig `yaml:"listen"`
	Gemini GeminiConfig `yaml:"gemini"`
	Engine EngineConfig `yaml:"engine"`
	// DBPath is the SQLite file for archived conversations.
	// Empty disables archiving.
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// GeminiConfig defines Gemini API settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
}

// EngineConfig defines conversation loop settings.
type EngineConfig struct {
	DefaultModel    string `yaml:"default_model"`
	DefaultMaxTurns int    `yaml:"default_max_turns"`
	// ToolTimeoutSec bounds each tool call (default 30).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// AllowUnsafeTools exposes write-capable tools to conversations.
	AllowUnsafeTools bool `yaml:"allow_unsafe_tools"`
	// WorkspaceDir is the root directory for file tools.
	WorkspaceDir string `yaml:"workspace_dir"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Gemini: GeminiConfig{APIKey: os.Getenv("GEMINI_API_KEY")},
		Engine: EngineConfig{
			DefaultModel:    "models/gemini-2.5-flash",
			DefaultMaxTurns: 20,
			ToolTimeoutSec:  30,
			WorkspaceDir:    ".",
		},
		LogLevel: "info",
	}
}
