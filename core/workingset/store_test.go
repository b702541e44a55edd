package workingset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/status"
)

func entries() []model.DispatchEntry {
	return []model.DispatchEntry{
		{Key: model.SyntheticKey("B1"), Status: status.Pending, Booking: model.Booking{ID: "B1", Date: "2024-05-01", Time: "09:00"}},
		{Key: model.PersistedKey("e2", "B2"), Status: status.Confirmed, DriverID: "d1", VehicleID: "v1", Booking: model.Booking{ID: "B2", Date: "2024-05-02"}},
	}
}

func TestReplaceDiscardsStalePasses(t *testing.T) {
	s := NewStore()
	slow := s.Begin()
	fast := s.Begin()

	require.True(t, s.Replace(fast, entries()))
	assert.False(t, s.Replace(slow, nil), "older pass must not overwrite a newer one")
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, fast, s.Applied())
	assert.False(t, s.Replace(fast, nil), "a pass is applied once")
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	require.True(t, s.Replace(s.Begin(), entries()))
	snap := s.Snapshot()
	snap[0].Status = status.Cancelled
	e, ok := s.Get("B1")
	require.True(t, ok)
	assert.Equal(t, status.Pending, e.Status)
}

func TestResolve(t *testing.T) {
	s := NewStore()
	require.True(t, s.Replace(s.Begin(), entries()))

	e, ok := s.Resolve(model.SyntheticKey("B1"))
	require.True(t, ok)
	assert.Equal(t, "B1", e.BookingID())

	e, ok = s.Resolve(model.PersistedKey("e2", ""))
	require.True(t, ok)
	assert.Equal(t, "B2", e.BookingID())

	_, ok = s.Resolve(model.PersistedKey("other", "B2"))
	assert.False(t, ok)
	_, ok = s.Resolve(model.SyntheticKey("missing"))
	assert.False(t, ok)
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()
	require.True(t, s.Replace(s.Begin(), entries()))
	select {
	case c := <-ch:
		assert.Equal(t, ChangeReplaced, c.Reason)
		assert.Equal(t, uint64(1), c.Version)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
}
