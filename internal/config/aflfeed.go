package config

import (
	"fmt"
	"time"
)

// AflFeedConfig configures the ingestion worker's optional external sports
// feed. Disabled by default: most deployments ingest match state through
// the HTTP append routes instead.
type AflFeedConfig struct {
	Enabled             bool   `yaml:"enabled"`
	StreamID            string `yaml:"stream_id"`
	Endpoint            string `yaml:"endpoint"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	APIKeyHeader        string `yaml:"api_key_header"`
	APIKey              string `yaml:"api_key"`
}

func DefaultAflFeedConfig() AflFeedConfig {
	return AflFeedConfig{
		Enabled:             false,
		PollIntervalSeconds: 5,
	}
}

func (c *AflFeedConfig) ApplyDefaults() {
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = 5
	}
}

func (c *AflFeedConfig) ApplyEnvOverrides() error {
	if c.APIKey == "" {
		return nil
	}
	resolved, err := resolveSecret(c.APIKey)
	if err != nil {
		if c.Enabled {
			return &ErrRequiredSecret{Field: "afl_feed.api_key", Ref: c.APIKey}
		}
		return nil
	}
	c.APIKey = resolved
	return nil
}

func (c *AflFeedConfig) ResolvePaths(_ string) {}

func (c *AflFeedConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.StreamID == "" {
		return fmt.Errorf("afl_feed.stream_id is required when afl_feed.enabled is true")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("afl_feed.endpoint is required when afl_feed.enabled is true")
	}
	return nil
}

// PollInterval returns the configured poll interval as a time.Duration.
func (c *AflFeedConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
