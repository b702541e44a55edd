package plugins

import (
	"time"

	"github.com/kilianp07/fleetdispatch/config"
	"github.com/kilianp07/fleetdispatch/core/layout"
	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	infralayout "github.com/kilianp07/fleetdispatch/infra/layout"
	"github.com/kilianp07/fleetdispatch/infra/rest"
	"github.com/kilianp07/fleetdispatch/infra/store"
)

func init() {
	RegisterRepository(config.StoreMemory, func(config.StoreConfig, logger.Logger) (persistence.Repository, Closer, error) {
		return persistence.NewMemoryRepository(), nil, nil
	})
	RegisterRepository(config.StoreSQLite, func(cfg config.StoreConfig, _ logger.Logger) (persistence.Repository, Closer, error) {
		return openSQL(store.Options{Driver: store.DriverSQLite, SQLitePath: cfg.SQLite.Path})
	})
	RegisterRepository(config.StorePostgres, func(cfg config.StoreConfig, _ logger.Logger) (persistence.Repository, Closer, error) {
		return openSQL(store.Options{Driver: store.DriverPostgres, PostgresDSN: cfg.Postgres.ConnString()})
	})
	RegisterRepository(config.StoreREST, func(cfg config.StoreConfig, log logger.Logger) (persistence.Repository, Closer, error) {
		rc := rest.Config{
			BaseURL: cfg.REST.BaseURL,
			APIKey:  cfg.REST.APIKey,
			Timeout: time.Duration(cfg.REST.TimeoutSeconds) * time.Second,
		}
		if cfg.REST.ClientID != "" {
			rc.Auth = &rest.AuthConf{
				ClientID:     cfg.REST.ClientID,
				ClientSecret: cfg.REST.ClientSecret,
				TokenURL:     cfg.REST.TokenURL,
			}
		}
		c, err := rest.NewClient(rc, log)
		if err != nil {
			return nil, nil, err
		}
		return rest.NewRepository(c), nil, nil
	})

	RegisterLayout("memory", func(config.LayoutConfig) (layout.Backend, Closer, error) {
		return layout.NewMemoryBackend(), nil, nil
	})
	RegisterLayout("file", func(cfg config.LayoutConfig) (layout.Backend, Closer, error) {
		return infralayout.NewFileBackend(cfg.Path), nil, nil
	})
	RegisterLayout("redis", func(cfg config.LayoutConfig) (layout.Backend, Closer, error) {
		b, client := infralayout.NewRedisBackend(infralayout.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		return b, client.Close, nil
	})
}

func openSQL(opts store.Options) (persistence.Repository, Closer, error) {
	db, err := store.Open(opts)
	if err != nil {
		return nil, nil, err
	}
	return store.NewRepository(db), db.Close, nil
}
