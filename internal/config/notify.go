package config

import "fmt"

// NotifyConfig selects the message-bus provider the projector uses to
// fan out derived-state notifications to hub instances. memory keeps
// everything in-process (single binary, tests); nats lets the projector
// and hub run as separate processes sharing one JetStream subject space.
type NotifyConfig struct {
	Provider string `yaml:"provider"`
	NatsURL  string `yaml:"nats_url"`
}

func DefaultNotifyConfig() NotifyConfig {
	return NotifyConfig{Provider: "memory", NatsURL: "nats://localhost:4222"}
}

func (c *NotifyConfig) ApplyDefaults() {
	d := DefaultNotifyConfig()
	if c.Provider == "" {
		c.Provider = d.Provider
	}
	if c.NatsURL == "" {
		c.NatsURL = d.NatsURL
	}
}

func (c *NotifyConfig) ApplyEnvOverrides() error { return nil }

func (c *NotifyConfig) ResolvePaths(_ string) {}

func (c *NotifyConfig) Validate() error {
	switch c.Provider {
	case "memory", "nats":
	default:
		return fmt.Errorf("notify.provider must be memory or nats, got %q", c.Provider)
	}
	if c.Provider == "nats" && c.NatsURL == "" {
		return fmt.Errorf("notify.nats_url is required when notify.provider is nats")
	}
	return nil
}
