// Package plugins maps configuration names to the persistence and layout
// implementations compiled into the binary.
package plugins

import (
	"fmt"
	"sort"

	"github.com/kilianp07/fleetdispatch/config"
	"github.com/kilianp07/fleetdispatch/core/layout"
	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/persistence"
)

// Closer releases what a factory opened. It may be nil.
type Closer func() error

// RepositoryFactory opens the persistence collaborator for cfg.
type RepositoryFactory func(cfg config.StoreConfig, log logger.Logger) (persistence.Repository, Closer, error)

// LayoutFactory opens the durable store of the column layout.
type LayoutFactory func(cfg config.LayoutConfig) (layout.Backend, Closer, error)

var (
	Repositories   = map[string]RepositoryFactory{}
	LayoutBackends = map[string]LayoutFactory{}
)

func RegisterRepository(name string, f RepositoryFactory) { Repositories[name] = f }
func RegisterLayout(name string, f LayoutFactory)         { LayoutBackends[name] = f }

// OpenRepository builds the repository selected by cfg.Driver.
func OpenRepository(cfg config.StoreConfig, log logger.Logger) (persistence.Repository, Closer, error) {
	f, ok := Repositories[cfg.Driver]
	if !ok {
		return nil, nil, fmt.Errorf("unknown store driver %q (known: %v)", cfg.Driver, names(Repositories))
	}
	return f(cfg, log)
}

// OpenLayout builds the layout backend selected by cfg.Backend.
func OpenLayout(cfg config.LayoutConfig) (layout.Backend, Closer, error) {
	f, ok := LayoutBackends[cfg.Backend]
	if !ok {
		return nil, nil, fmt.Errorf("unknown layout backend %q (known: %v)", cfg.Backend, names(LayoutBackends))
	}
	return f(cfg)
}

func names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
