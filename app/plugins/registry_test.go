package plugins

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/config"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	infralayout "github.com/kilianp07/fleetdispatch/infra/layout"
	"github.com/kilianp07/fleetdispatch/infra/rest"
	"github.com/kilianp07/fleetdispatch/infra/store"
)

func TestOpenRepository(t *testing.T) {
	repo, closer, err := OpenRepository(config.StoreConfig{Driver: config.StoreMemory}, nil)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &persistence.MemoryRepository{}, repo)

	cfg := config.StoreConfig{Driver: config.StoreSQLite, SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "d.db")}}
	repo, closer, err = OpenRepository(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer()
	assert.IsType(t, &store.Repository{}, repo)
	_, err = repo.ListDrivers(context.Background(), persistence.ResourceQuery{})
	assert.NoError(t, err)

	repo, _, err = OpenRepository(config.StoreConfig{Driver: config.StoreREST, REST: config.RESTConfig{BaseURL: "https://db.example.com/rest/v1", TimeoutSeconds: 1}}, nil)
	require.NoError(t, err)
	assert.IsType(t, &rest.Repository{}, repo)

	_, _, err = OpenRepository(config.StoreConfig{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, "oracle")
}

func TestOpenLayout(t *testing.T) {
	b, _, err := OpenLayout(config.LayoutConfig{Backend: "file", Path: filepath.Join(t.TempDir(), "l.json")})
	require.NoError(t, err)
	assert.IsType(t, &infralayout.FileBackend{}, b)

	b, closer, err := OpenLayout(config.LayoutConfig{Backend: "redis", Redis: config.RedisConfig{Addr: "127.0.0.1:0"}})
	require.NoError(t, err)
	assert.IsType(t, &infralayout.RedisBackend{}, b)
	require.NotNil(t, closer)
	assert.NoError(t, closer())

	_, _, err = OpenLayout(config.LayoutConfig{Backend: "etcd"})
	assert.Error(t, err)
}
