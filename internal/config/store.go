package config

import "fmt"

// StoreConfig configures the partitioned document store backend.
type StoreConfig struct {
	MongoURI         string            `yaml:"mongo_uri"`
	Database         string            `yaml:"database"`
	Collections      map[string]string `yaml:"collections"`
	ConsistencyLevel string            `yaml:"consistency_level"`
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MongoURI: "mongodb://localhost:27017",
		Database: "fanride",
		Collections: map[string]string{
			"es":             "es",
			"leases":         "leases",
			"rm_match_state": "rm_match_state",
			"rm_tes_history": "rm_tes_history",
			"rm_leaderboard": "rm_leaderboard",
		},
		ConsistencyLevel: "strong",
	}
}

func (c *StoreConfig) ApplyDefaults() {
	d := DefaultStoreConfig()
	if c.MongoURI == "" {
		c.MongoURI = d.MongoURI
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.Collections == nil {
		c.Collections = d.Collections
	}
	if c.ConsistencyLevel == "" {
		c.ConsistencyLevel = d.ConsistencyLevel
	}
}

func (c *StoreConfig) ApplyEnvOverrides() error {
	resolved, err := resolveSecret(c.MongoURI)
	if err != nil {
		return &ErrRequiredSecret{Field: "store.mongo_uri", Ref: c.MongoURI}
	}
	c.MongoURI = resolved
	return nil
}

func (c *StoreConfig) ResolvePaths(_ string) {}

func (c *StoreConfig) Validate() error {
	if c.ConsistencyLevel != "strong" {
		return fmt.Errorf("store.consistency_level must be \"strong\", got %q", c.ConsistencyLevel)
	}
	if c.Database == "" {
		return fmt.Errorf("store.database is required")
	}
	for _, name := range []string{"es", "leases", "rm_match_state", "rm_tes_history", "rm_leaderboard"} {
		if c.Collections[name] == "" {
			return fmt.Errorf("store.collections.%s is required", name)
		}
	}
	return nil
}
