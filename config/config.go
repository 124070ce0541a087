// Package config loads the service configuration from a YAML or JSON file
// with CHAIRLINK_ environment overrides.
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

	"github.com/kilianp07/chairlink/core/configpush"
	"github.com/kilianp07/chairlink/core/device"
	"github.com/kilianp07/chairlink/core/factory"
	"github.com/kilianp07/chairlink/core/metrics"
	"github.com/kilianp07/chairlink/core/session"
	"github.com/kilianp07/chairlink/infra/logger"
)

// EnvPrefix marks environment overrides; "__" separates nested keys, e.g.
// CHAIRLINK_SESSION__READY_TIMEOUT=3s.
const EnvPrefix = "CHAIRLINK_"

type Config struct {
	Session    session.Config       `json:"session"`
	Device     device.Config        `json:"device"`
	Hardware   factory.ModuleConfig `json:"hardware"`
	Transport  factory.ModuleConfig `json:"transport"`
	Discovery  factory.ModuleConfig `json:"discovery"`
	Announce   factory.ModuleConfig `json:"announce"`
	ConfigPush configpush.Config    `json:"config_push"`
	Metrics    metrics.Config       `json:"metrics"`
	Log        logger.Config        `json:"log"`
}

// SetDefaults applies sane defaults to every section.
func (c *Config) SetDefaults() {
	c.Session.SetDefaults()
	c.Device.SetDefaults()
	c.ConfigPush.SetDefaults()
	c.Log.SetDefaults()
	if c.Hardware.Type == "" {
		c.Hardware.Type = "sim"
	}
	if c.Transport.Type == "" {
		c.Transport.Type = "tcp"
	}
	if c.Discovery.Type == "" {
		c.Discovery.Type = "static"
	}
	if c.Announce.Type == "" {
		c.Announce.Type = "none"
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if err := c.ConfigPush.Validate(); err != nil {
		return fmt.Errorf("config_push: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Load reads path, applies environment overrides and defaults, and validates
// the result. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
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
	}
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
