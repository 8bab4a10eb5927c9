package config

import (
	"fmt"
	"strings"
)

// ChangeFeedConfig selects where the projector's change-feed subscription
// starts. "startfrombeginning" is accepted as an alias for "rebuild",
// matching the spec's wording for the one-shot replay trigger.
type ChangeFeedConfig struct {
	Mode string `yaml:"mode"`
}

func DefaultChangeFeedConfig() ChangeFeedConfig {
	return ChangeFeedConfig{Mode: "live"}
}

func (c *ChangeFeedConfig) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "live"
	}
}

func (c *ChangeFeedConfig) ApplyEnvOverrides() error { return nil }

func (c *ChangeFeedConfig) ResolvePaths(_ string) {}

func (c *ChangeFeedConfig) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "live", "rebuild", "startfrombeginning":
		return nil
	default:
		return fmt.Errorf("change_feed.mode must be live, rebuild, or startfrombeginning, got %q", c.Mode)
	}
}

// Rebuild reports whether this mode triggers a lease purge and full replay.
func (c *ChangeFeedConfig) Rebuild() bool {
	m := strings.ToLower(c.Mode)
	return m == "rebuild" || m == "startfrombeginning"
}
