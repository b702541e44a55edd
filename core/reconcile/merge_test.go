package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	"github.com/kilianp07/fleetdispatch/core/status"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func persisted(id, booking string, updated time.Time) model.DispatchEntry {
	return model.DispatchEntry{Key: model.PersistedKey(id, booking), Status: status.Assigned, UpdatedAt: updated}
}

func synthetic(booking string, updated time.Time) model.DispatchEntry {
	return model.DispatchEntry{Key: model.SyntheticKey(booking), Status: status.Pending, UpdatedAt: updated}
}

func TestMergeKeepsOneEntryPerBooking(t *testing.T) {
	in := []model.DispatchEntry{
		synthetic("B1", t0.Add(5*time.Hour)),
		persisted("e1", "B1", t0),
		synthetic("B1", t0.Add(9*time.Hour)),
		persisted("e9", "B2", t0),
		synthetic("B3", t0),
		synthetic("B3", t0.Add(time.Minute)),
	}
	out := Merge(in)
	require.Len(t, out, 3)
	assert.Equal(t, "e1", out[0].Key.ID(), "persisted wins over newer synthetic")
	assert.Equal(t, "B2", out[1].BookingID())
	assert.True(t, out[2].Key.Synthetic())
	assert.Equal(t, t0.Add(time.Minute), out[2].UpdatedAt)
}

func TestMergeRecencyBetweenPersisted(t *testing.T) {
	out := Merge([]model.DispatchEntry{
		persisted("old", "B1", t0),
		persisted("new", "B1", t0.Add(time.Hour)),
		persisted("older", "B1", t0.Add(-time.Hour)),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "new", out[0].Key.ID())
}

func TestMergeTieKeepsFirst(t *testing.T) {
	out := Merge([]model.DispatchEntry{persisted("a", "B1", t0), persisted("b", "B1", t0)})
	assert.Equal(t, "a", out[0].Key.ID())
}

func TestMergeFallsBackToCreatedAt(t *testing.T) {
	a := model.DispatchEntry{Key: model.PersistedKey("a", "B1"), CreatedAt: t0}
	b := model.DispatchEntry{Key: model.PersistedKey("b", "B1"), CreatedAt: t0.Add(time.Second)}
	assert.Equal(t, "b", Merge([]model.DispatchEntry{a, b})[0].Key.ID())
}

func TestVisibleRetentionWindow(t *testing.T) {
	now := t0
	in := []model.DispatchEntry{
		{Key: model.PersistedKey("stale", "B1"), Status: status.Completed, UpdatedAt: now.Add(-25 * time.Hour)},
		{Key: model.PersistedKey("recent", "B2"), Status: status.Completed, UpdatedAt: now.Add(-23 * time.Hour)},
		{Key: model.PersistedKey("cancel", "B3"), Status: status.Cancelled, CreatedAt: now.Add(-time.Hour)},
		{Key: model.PersistedKey("old-active", "B4"), Status: status.EnRoute, UpdatedAt: now.Add(-72 * time.Hour)},
	}
	out := Visible(in, now, DefaultRetention)
	ids := make([]string, 0, len(out))
	for _, e := range out {
		ids = append(ids, e.Key.ID())
	}
	assert.Equal(t, []string{"recent", "cancel", "old-active"}, ids)
}

func TestSynthesize(t *testing.T) {
	created := t0.Add(-time.Hour)
	recs := []persistence.BookingRecord{
		{Booking: model.Booking{ID: "B1", Date: "2024-05-01", Time: "09:00", Status: model.BookingPending, CreatedAt: created, DriverID: "d1"}, Driver: &model.Driver{ID: "d1"}},
		{Booking: model.Booking{ID: "B2", Date: "2024-05-01", Status: model.BookingConfirmed}},
		{Booking: model.Booking{ID: "B3", Date: "2024-05-01", Time: "10:00", Status: model.BookingAssigned}},
		{Booking: model.Booking{ID: "B4", Date: "2024-05-01", Time: "11:00", Status: model.BookingQuoted}},
	}
	out := Synthesize([]model.DispatchEntry{persisted("e3", "B3", t0)}, recs)
	require.Len(t, out, 1)
	e := out[0]
	assert.Equal(t, "pending-B1", e.Key.String())
	assert.Equal(t, status.Pending, e.Status)
	assert.Nil(t, e.StartTime)
	assert.Equal(t, created, e.CreatedAt)
	assert.Equal(t, "d1", e.DriverID)
	require.NotNil(t, e.Driver)
}
