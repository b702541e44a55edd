package config

import "fmt"

// APIConfig configures the HTTP surface of the board.
type APIConfig struct {
	// Addr is the listen address. Empty disables the API.
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on /api/dispatch routes.
	Token string `json:"token"`
	// CORSOrigin is echoed in Access-Control-Allow-Origin when set.
	CORSOrigin string `json:"cors_origin"`
	// ShutdownSeconds bounds graceful shutdown.
	ShutdownSeconds int `json:"shutdown_seconds"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.ShutdownSeconds <= 0 {
		c.ShutdownSeconds = 5
	}
}

// Validate checks mandatory fields.
func (c APIConfig) Validate() error {
	if c.Token != "" && c.Addr == "" {
		return fmt.Errorf("token set without addr")
	}
	return nil
}
