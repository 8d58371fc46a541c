// Package config loads and validates the engine configuration from a JSON or
// YAML file, with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/fieldserv/matchd/core/assign"
	"github.com/fieldserv/matchd/core/match"
	"github.com/fieldserv/matchd/core/metrics"
	"github.com/fieldserv/matchd/infra/notify"
)

type Config struct {
	API       APIConfig              `json:"api"`
	Matching  match.ScoringWeights   `json:"matching"`
	Timeouts  assign.TimeoutConfig   `json:"timeouts"`
	Automatic assign.AutomaticConfig `json:"automatic"`
	Store     StoreConfig            `json:"store"`
	Audit     AuditConfig            `json:"audit"`
	Metrics   metrics.Config         `json:"metrics"`
	MQTT      notify.Config          `json:"mqtt"`
}

// APIConfig configures the HTTP API listener. AuditToken, when set, guards
// the audit endpoint with a bearer token.
type APIConfig struct {
	Addr       string `json:"addr"`
	AuditToken string `json:"audit_token"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// StoreConfig selects the request store backend.
type StoreConfig struct {
	Backend  string `json:"backend"` // "memory" or "redis"
	RedisURL string `json:"redis_url"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis backend")
		}
		return nil
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Backend)
	}
}

// AuditConfig selects the audit trail backend.
type AuditConfig struct {
	Backend     string `json:"backend"` // "none", "jsonl" or "postgres"
	Path        string `json:"path"`
	PostgresDSN string `json:"postgres_dsn"`
}

func (c *AuditConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.Backend == "jsonl" && c.Path == "" {
		c.Path = "assignments.jsonl"
	}
}

func (c *AuditConfig) Validate() error {
	switch c.Backend {
	case "none", "jsonl":
		return nil
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("audit.postgres_dsn is required for the postgres backend")
		}
		return nil
	default:
		return fmt.Errorf("unsupported audit backend: %s", c.Backend)
	}
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("MATCHD_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "matchd_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Config{Matching: match.DefaultWeights()}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.API.SetDefaults()
	cfg.Timeouts.SetDefaults()
	cfg.Automatic.SetDefaults()
	cfg.Store.SetDefaults()
	cfg.Audit.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.MQTT.SetDefaults()
	if err := cfg.Matching.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Timeouts.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Automatic.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Audit.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
