package config

import (
	"fmt"
	"net/url"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreREST     = "rest"
)

// StoreConfig selects the persistence behind the dispatch board.
type StoreConfig struct {
	Driver   string         `json:"driver"`
	SQLite   SQLiteConfig   `json:"sqlite"`
	Postgres PostgresConfig `json:"postgres"`
	REST     RESTConfig     `json:"rest"`
}

type SQLiteConfig struct {
	Path string `json:"path"`
}

// PostgresConfig accepts either a DSN or its parts.
type PostgresConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

// ConnString returns the DSN, building it from the parts when empty.
func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// RESTConfig points at a PostgREST style endpoint. Requests carry the API
// key and, when client credentials are set, an OAuth2 bearer token.
type RESTConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	TokenURL       string `json:"token_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = StoreMemory
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "fleetdispatch.db"
	}
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.SSLMode == "" {
		c.Postgres.SSLMode = "disable"
	}
	if c.REST.TimeoutSeconds <= 0 {
		c.REST.TimeoutSeconds = 10
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	switch c.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case StorePostgres:
		if c.Postgres.DSN == "" && c.Postgres.Database == "" {
			return fmt.Errorf("postgres.dsn or postgres.database is required")
		}
	case StoreREST:
		if c.REST.BaseURL == "" {
			return fmt.Errorf("rest.base_url is required")
		}
		if c.REST.ClientID != "" && c.REST.TokenURL == "" {
			return fmt.Errorf("rest.token_url is required with client credentials")
		}
	default:
		return fmt.Errorf("unknown driver %s", c.Driver)
	}
	return nil
}
