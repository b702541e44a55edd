package layout

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corelayout "github.com/kilianp07/fleetdispatch/core/layout"
	"github.com/kilianp07/fleetdispatch/core/status"
)

func TestFileBackendMissingFile(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "layout.json"))
	_, ok, err := b.Get(context.Background(), corelayout.KeyOrder)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileBackendPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "layout.json")

	s := corelayout.NewStore(NewFileBackend(path), nil)
	_, err := s.Move(ctx, status.Completed, 0)
	require.NoError(t, err)
	_, err = s.Hide(ctx, status.Cancelled)
	require.NoError(t, err)

	l := corelayout.NewStore(NewFileBackend(path), nil).Load(ctx)
	assert.Equal(t, status.Completed, l.Order[0])
	assert.Equal(t, []status.Status{status.Cancelled}, l.Hidden)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileBackendDelete(t *testing.T) {
	ctx := context.Background()
	b := NewFileBackend(filepath.Join(t.TempDir(), "layout.json"))
	require.NoError(t, b.Set(ctx, "a", []byte(`["pending"]`)))
	require.NoError(t, b.Set(ctx, "b", []byte(`[]`)))
	require.NoError(t, b.Delete(ctx, "a"))
	require.NoError(t, b.Delete(ctx, "missing"))

	_, ok, err := b.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	v, ok, err := b.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(v))
}

func TestFileBackendCorruptDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "layout.json")
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))
	b := NewFileBackend(path)

	_, _, err := b.Get(ctx, corelayout.KeyOrder)
	assert.Error(t, err)

	// the store falls back to defaults and a save repairs the file
	s := corelayout.NewStore(b, nil)
	assert.Equal(t, status.All(), s.Load(ctx).Order)
	_, err = s.Hide(ctx, status.Completed)
	require.NoError(t, err)
	_, ok, err := b.Get(ctx, corelayout.KeyHidden)
	require.NoError(t, err)
	assert.True(t, ok)
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, f.err)
}

func TestRedisBackendPrefixesKeys(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{data: map[string]string{}}
	b := &RedisBackend{client: fake, prefix: "fd:"}

	_, ok, err := b.Get(ctx, corelayout.KeyOrder)
	require.NoError(t, err)
	assert.False(t, ok)

	s := corelayout.NewStore(b, nil)
	_, err = s.Hide(ctx, status.Cancelled)
	require.NoError(t, err)
	assert.JSONEq(t, `["cancelled"]`, fake.data["fd:"+corelayout.KeyHidden])

	require.NoError(t, b.Delete(ctx, corelayout.KeyHidden))
	assert.Empty(t, fake.data)
}

func TestRedisBackendErrorFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{data: map[string]string{}, err: assert.AnError}
	b := &RedisBackend{client: fake, prefix: "fd:"}

	_, _, err := b.Get(ctx, corelayout.KeyOrder)
	assert.ErrorIs(t, err, assert.AnError)

	l := corelayout.NewStore(b, nil).Load(ctx)
	assert.Equal(t, status.All(), l.Order)
	_, err = corelayout.NewStore(b, nil).Hide(ctx, status.Completed)
	assert.Error(t, err)
}
