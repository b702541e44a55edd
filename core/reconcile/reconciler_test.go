package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/core/dispatcherr"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	"github.com/kilianp07/fleetdispatch/core/status"
	"github.com/kilianp07/fleetdispatch/core/workingset"
)

func seeded() *persistence.MemoryRepository {
	repo := persistence.NewMemoryRepository()
	repo.PutBooking(model.Booking{ID: "B1", Date: "2024-05-01", Time: "09:00", Status: model.BookingPending, CreatedAt: t0})
	repo.PutBooking(model.Booking{ID: "B2", Date: "2024-05-01", Time: "10:00", Status: model.BookingConfirmed, CreatedAt: t0})
	repo.PutEntry(model.DispatchEntry{Key: model.PersistedKey("e2", "B2"), Status: status.Confirmed, UpdatedAt: t0})
	repo.PutEntry(model.DispatchEntry{Key: model.PersistedKey("e2b", "B2"), Status: status.EnRoute, UpdatedAt: t0.Add(time.Minute)})
	return repo
}

func TestPassBuildsWorkingSet(t *testing.T) {
	r := New(seeded(), Options{}, nil, nil)
	r.SetClock(func() time.Time { return t0 })
	res, err := r.Pass(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, 2, res.Persisted)
	assert.Equal(t, 1, res.Synthesized)

	byBooking := map[string]model.DispatchEntry{}
	for _, e := range res.Entries {
		byBooking[e.BookingID()] = e
	}
	assert.Equal(t, "pending-B1", byBooking["B1"].Key.String())
	assert.Equal(t, "e2b", byBooking["B2"].Key.ID())
	assert.Equal(t, "B2", byBooking["B2"].Booking.ID, "booking is embedded")
}

func TestPassFailsAtomically(t *testing.T) {
	for _, op := range []string{persistence.OpListEntries, persistence.OpListBookings} {
		repo := seeded()
		repo.FailOn(op, errors.New("unavailable"))
		store := workingset.NewStore()
		r := New(repo, Options{}, nil, nil)

		res, err := r.Refresh(context.Background(), store)
		require.Error(t, err, op)
		assert.ErrorIs(t, err, dispatcherr.Reconciliation)
		assert.Empty(t, res.Entries)
		assert.False(t, res.Applied)
		assert.Equal(t, 0, store.Len(), "no partial working set")
	}
}

func TestRefreshInstallsResult(t *testing.T) {
	store := workingset.NewStore()
	r := New(seeded(), Options{}, nil, nil)
	r.SetClock(func() time.Time { return t0 })
	res, err := r.Refresh(context.Background(), store)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, res.Token, store.Applied())
}

func TestRefreshDiscardsStaleResult(t *testing.T) {
	store := workingset.NewStore()
	slow := store.Begin()

	r := New(seeded(), Options{}, nil, nil)
	res, err := r.Refresh(context.Background(), store)
	require.NoError(t, err)
	require.True(t, res.Applied)
	assert.Greater(t, res.Token, slow)

	assert.False(t, store.Replace(slow, nil), "the slower pass must not overwrite the fresh one")
	assert.Equal(t, 2, store.Len())
}
