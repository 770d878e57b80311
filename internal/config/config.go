package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models rescueline.yml.
type Config struct {
	Poll struct {
		IntervalMS int `yaml:"interval_ms"`
	} `yaml:"poll"`
	ETA struct {
		MinMinutes int `yaml:"min_minutes"`
		MaxMinutes int `yaml:"max_minutes"`
	} `yaml:"eta"`
	Responder struct {
		// AccessCode is a demo shared secret, not a security boundary.
		AccessCode string `yaml:"access_code"`
	} `yaml:"responder"`
	Triage struct {
		Provider     string `yaml:"provider"`
		GeminiAPIKey string `yaml:"gemini_api_key"`
		GeminiModel  string `yaml:"gemini_model"`
	} `yaml:"triage"`
	Server struct {
		Addr              string `yaml:"addr"`
		BasePath          string `yaml:"base_path"`
		JWTSecret         string `yaml:"jwt_secret"`
		SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
	} `yaml:"server"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Poll.IntervalMS <= 0 {
		return fmt.Errorf("config.poll.interval_ms must be positive")
	}
	if c.ETA.MinMinutes <= 0 || c.ETA.MaxMinutes < c.ETA.MinMinutes {
		return fmt.Errorf("config.eta range [%d,%d] is invalid", c.ETA.MinMinutes, c.ETA.MaxMinutes)
	}
	if c.Responder.AccessCode == "" {
		return fmt.Errorf("config.responder.access_code is required")
	}
	switch c.Triage.Provider {
	case "auto", "gemini", "rules":
	default:
		return fmt.Errorf("config.triage.provider must be auto, gemini or rules")
	}
	if c.Triage.Provider == "gemini" && c.Triage.GeminiAPIKey == "" {
		return fmt.Errorf("config.triage.gemini_api_key required for provider gemini")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "rescueline.yml")
}

// Load reads and validates config from workspace, falling back to defaults
// when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted sections
// keep their default values.
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

// GenerateDefault returns the default config YAML for rl config init.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `poll:
  interval_ms: 2000

eta:
  min_minutes: 5
  max_minutes: 15

responder:
  # Demo shared secret shown on the role-selection screen. Not real auth.
  access_code: "1920"

triage:
  # auto picks gemini when an API key is set, rules otherwise.
  provider: auto
  gemini_api_key: ""
  gemini_model: gemini-2.5-flash

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""
  session_ttl_minutes: 60
`
