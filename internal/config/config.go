package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models momtrack.yml.
type Config struct {
	Governance struct {
		// SingleActiveMOM blocks creating a second minutes document for a
		// meeting while another non-terminal one exists.
		SingleActiveMOM bool `yaml:"single_active_mom"`
		// ProtectDepartments blocks deleting a department that is still
		// referenced by meetings or tasks.
		ProtectDepartments bool `yaml:"protect_departments"`
	} `yaml:"governance"`
	Tasks struct {
		DefaultPriority string `yaml:"default_priority"`
	} `yaml:"tasks"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

var priorities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !priorities[c.Tasks.DefaultPriority] {
		return fmt.Errorf("config.tasks.default_priority must be one of low, medium, high, critical")
	}
	if c.Server.BasePath == "" || c.Server.BasePath[0] != '/' {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "momtrack.yml")
}

// Load reads config from the workspace, falling back to defaults when no
// momtrack.yml exists.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Fields missing
// from the document keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault writes the default momtrack.yml into the workspace. It
// refuses to overwrite an existing file.
func WriteDefault(workspace string) (string, error) {
	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(defaultTemplate), 0o644); err != nil {
		return path, err
	}
	return path, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `governance:
  single_active_mom: true
  protect_departments: true

tasks:
  default_priority: medium

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
