package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models orderline.yml.
type Config struct {
	Store    StoreConfig     `yaml:"store"`
	Engine   EngineConfig    `yaml:"engine"`
	Server   ServerConfig    `yaml:"server"`
	Auth     AuthConfig      `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"`
}

type EngineConfig struct {
	LockWaitMS       int `yaml:"lock_wait_ms"`
	ConflictAttempts int `yaml:"conflict_attempts"`
	RetryInitialMS   int `yaml:"retry_initial_ms"`
	RetryMaxMS       int `yaml:"retry_max_ms"`
	RetryMaxTries    int `yaml:"retry_max_tries"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
}

type AuthConfig struct {
	JWTSecret        string        `yaml:"jwt_secret"`
	AllowActorHeader bool          `yaml:"allow_actor_header"`
	Tokens           []TokenConfig `yaml:"tokens"`
}

type TokenConfig struct {
	Token   string `yaml:"token"`
	ActorID string `yaml:"actor_id"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

const (
	BackendSheetDB = "sheetdb"
	BackendMemory  = "memory"
)

// Load reads config from the workspace, falling back to defaults when
// no file exists.
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Absent
// engine knobs take the defaults.
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

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Backend: BackendSheetDB},
		Engine: EngineConfig{
			LockWaitMS:       2000,
			ConflictAttempts: 3,
			RetryInitialMS:   250,
			RetryMaxMS:       2000,
			RetryMaxTries:    4,
		},
		Server: ServerConfig{
			Addr:     "127.0.0.1:8080",
			BasePath: "/v0",
		},
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendSheetDB, BackendMemory:
	default:
		return fmt.Errorf("config.store.backend must be %q or %q", BackendSheetDB, BackendMemory)
	}
	if c.Engine.ConflictAttempts < 1 {
		return fmt.Errorf("config.engine.conflict_attempts must be at least 1")
	}
	if c.Engine.LockWaitMS < 0 || c.Engine.RetryInitialMS < 0 || c.Engine.RetryMaxMS < 0 {
		return fmt.Errorf("config.engine intervals must not be negative")
	}
	if c.Engine.RetryMaxTries < 1 {
		return fmt.Errorf("config.engine.retry_max_tries must be at least 1")
	}
	for i, tok := range c.Auth.Tokens {
		if tok.Token == "" {
			return fmt.Errorf("config.auth.tokens[%d] has empty token", i)
		}
		if tok.ActorID == "" {
			return fmt.Errorf("config.auth.tokens[%d] has empty actor_id", i)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d] has empty url", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "orderline.yml")
}

// GenerateDefault returns default config YAML for `config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `store:
  backend: sheetdb

engine:
  lock_wait_ms: 2000
  conflict_attempts: 3
  retry_initial_ms: 250
  retry_max_ms: 2000
  retry_max_tries: 4

server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  jwt_secret: ""
  allow_actor_header: true
  tokens: []

webhooks: []
`
