// Package config loads FanRide's YAML configuration through the same
// Defaults -> EnvOverrides -> ResolvePaths -> Validate lifecycle the donor
// codebase applies to every subsystem's config struct, collapsed here onto
// one top-level Config since FanRide has no distributed deployment modes.
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of config.yml / config.local.yml.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	ChangeFeed ChangeFeedConfig `yaml:"change_feed"`
	AflFeed    AflFeedConfig    `yaml:"afl_feed"`
	Hub        HubConfig        `yaml:"hub"`
	HTTP       HTTPConfig       `yaml:"http"`
	Notify     NotifyConfig     `yaml:"notify"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServiceConfig is the lifecycle every nested config section implements.
type ServiceConfig interface {
	ApplyDefaults()
	ApplyEnvOverrides() error
	ResolvePaths(configDir string)
	Validate() error
}

// Load reads config.yml, overlays config.local.yml, then runs the
// Defaults -> EnvOverrides -> ResolvePaths -> Validate lifecycle over every
// section. configDir is used to resolve relative paths (e.g. logging.dir).
func Load(configDir string) (*Config, error) {
	cfg := &Config{
		Store:      DefaultStoreConfig(),
		ChangeFeed: DefaultChangeFeedConfig(),
		AflFeed:    DefaultAflFeedConfig(),
		Hub:        DefaultHubConfig(),
		HTTP:       DefaultHTTPConfig(),
		Notify:     DefaultNotifyConfig(),
		Logging:    DefaultLoggingConfig(),
	}

	loadFile(configDir+"/config.yml", cfg)
	loadFile(configDir+"/config.local.yml", cfg)

	sections := []ServiceConfig{&cfg.Store, &cfg.ChangeFeed, &cfg.AflFeed, &cfg.Hub, &cfg.HTTP, &cfg.Notify, &cfg.Logging}
	for _, s := range sections {
		s.ApplyDefaults()
		if err := s.ApplyEnvOverrides(); err != nil {
			return nil, err
		}
		s.ResolvePaths(configDir)
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Printf("config: warning: error reading %s: %v", path, err)
		return
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("config: warning: error parsing %s: %v", path, err)
	}
}

// ErrRequiredSecret reports a required env: indirection that did not
// resolve, a fatal startup error per the base spec's config-validation
// language.
type ErrRequiredSecret struct {
	Field string
	Ref   string
}

func (e *ErrRequiredSecret) Error() string {
	return fmt.Sprintf("config: %s references %q which did not resolve to a value", e.Field, e.Ref)
}
