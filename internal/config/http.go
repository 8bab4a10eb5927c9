package config

import (
	"fmt"
	"time"
)

// HTTPConfig configures the process's single HTTP listener, serving both
// the JSON API routes and the hub's websocket upgrade.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (c *HTTPConfig) ApplyDefaults() {
	d := DefaultHTTPConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
}

func (c *HTTPConfig) ApplyEnvOverrides() error { return nil }

func (c *HTTPConfig) ResolvePaths(_ string) {}

func (c *HTTPConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}
