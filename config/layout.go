package config

import "fmt"

// LayoutConfig selects where the board column layout is kept.
type LayoutConfig struct {
	// Backend is "memory", "file" or "redis".
	Backend string      `json:"backend"`
	Path    string      `json:"path"`
	Redis   RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// SetDefaults applies sane defaults.
func (c *LayoutConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "file"
	}
	if c.Path == "" {
		c.Path = "layout.json"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "fleetdispatch:"
	}
}

// Validate checks mandatory fields.
func (c LayoutConfig) Validate() error {
	switch c.Backend {
	case "memory", "redis":
	case "file":
		if c.Path == "" {
			return fmt.Errorf("path is required")
		}
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	return nil
}
