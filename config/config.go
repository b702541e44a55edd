package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/fleetdispatch/core/factory"
	"github.com/kilianp07/fleetdispatch/core/metrics"
)

// EnvPrefix is the prefix of environment overrides. K_STORE__DRIVER=sqlite
// sets store.driver.
const EnvPrefix = "K_"

type Config struct {
	// Node identifies this process on relays and in error reports. Defaults
	// to the hostname.
	Node      string          `json:"node"`
	Store     StoreConfig     `json:"store"`
	Reconcile ReconcileConfig `json:"reconcile"`
	Bus       BusConfig       `json:"bus"`
	Layout    LayoutConfig    `json:"layout"`
	Journal   JournalConfig   `json:"journal"`
	Log       LogConfig       `json:"log"`
	Metrics   metrics.Config  `json:"metrics"`
	Sentry    SentryConfig    `json:"sentry"`
	API       APIConfig       `json:"api"`
}

// BusConfig lists the relays forwarding dispatch state notifications to
// other processes.
type BusConfig struct {
	Relays []factory.ModuleConfig `json:"relays"`
}

// Load reads the configuration file at path, applies K_ environment
// overrides and defaults, then validates the result. An empty path loads
// defaults and environment overrides only.
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
	// Optional environment overrides
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

// SetDefaults fills every section with its defaults.
func (c *Config) SetDefaults() {
	if c.Node == "" {
		if h, err := os.Hostname(); err == nil {
			c.Node = h
		} else {
			c.Node = "fleetdispatch"
		}
	}
	c.Store.SetDefaults()
	c.Reconcile.SetDefaults()
	c.Layout.SetDefaults()
	c.Journal.SetDefaults()
	c.Log.SetDefaults()
	c.API.SetDefaults()
	if c.Sentry.Node == "" {
		c.Sentry.Node = c.Node
	}
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	var errs []error
	wrap := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	wrap("store", c.Store.Validate())
	wrap("reconcile", c.Reconcile.Validate())
	wrap("layout", c.Layout.Validate())
	wrap("journal", c.Journal.Validate())
	wrap("log", c.Log.Validate())
	wrap("api", c.API.Validate())
	for i, r := range c.Bus.Relays {
		if r.Type == "" {
			errs = append(errs, fmt.Errorf("bus: relay %d has no type", i))
		}
	}
	return errors.Join(errs...)
}
