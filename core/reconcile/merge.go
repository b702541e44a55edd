// Package reconcile builds the dispatch working set from persisted dispatch
// entries and bookings that have none yet.
//
// A pass synthesizes one entry per undispatched booking, folds the
// concatenation by booking id so that each booking is represented exactly
// once, then drops terminal entries older than the retention window.
package reconcile

import (
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	"github.com/kilianp07/fleetdispatch/core/status"
)

// DefaultRetention bounds how long completed and cancelled entries stay
// visible.
const DefaultRetention = 24 * time.Hour

// Synthesize materialises an entry for every booking without a persisted
// entry. Bookings lacking a parseable date and time, bookings already
// referenced by persisted, and bookings whose status is outside the dispatch
// lifecycle are skipped.
func Synthesize(persisted []model.DispatchEntry, bookings []persistence.BookingRecord) []model.DispatchEntry {
	seen := make(map[string]struct{}, len(persisted))
	for _, e := range persisted {
		seen[e.BookingID()] = struct{}{}
	}
	out := make([]model.DispatchEntry, 0, len(bookings))
	for _, rec := range bookings {
		b := rec.Booking
		if _, ok := seen[b.ID]; ok || b.ID == "" || !b.HasSchedule() {
			continue
		}
		st, ok := b.Status.Dispatch()
		if !ok {
			continue
		}
		out = append(out, model.DispatchEntry{
			Key:       model.SyntheticKey(b.ID),
			Status:    st,
			DriverID:  b.DriverID,
			VehicleID: b.VehicleID,
			CreatedAt: b.CreatedAt,
			UpdatedAt: b.UpdatedAt,
			Booking:   b,
			Driver:    rec.Driver,
			Vehicle:   rec.Vehicle,
		})
	}
	return out
}

// Merge folds entries by booking id, keeping the first appearance order.
// A persisted entry always replaces a synthetic one and is never replaced by
// one. Between entries of the same kind the strictly more recent
// updated_at (created_at as fallback) wins.
func Merge(entries []model.DispatchEntry) []model.DispatchEntry {
	idx := make(map[string]int, len(entries))
	out := make([]model.DispatchEntry, 0, len(entries))
	for _, e := range entries {
		i, ok := idx[e.BookingID()]
		if !ok {
			idx[e.BookingID()] = len(out)
			out = append(out, e)
			continue
		}
		if supersedes(e, out[i]) {
			out[i] = e
		}
	}
	return out
}

func supersedes(next, kept model.DispatchEntry) bool {
	nextPersisted, keptPersisted := !next.Key.Synthetic(), !kept.Key.Synthetic()
	if nextPersisted != keptPersisted {
		return nextPersisted
	}
	return next.LastTouched().After(kept.LastTouched())
}

// Visible keeps active entries and terminal entries touched within the
// retention window ending at now.
func Visible(entries []model.DispatchEntry, now time.Time, retention time.Duration) []model.DispatchEntry {
	cutoff := now.Add(-retention)
	out := make([]model.DispatchEntry, 0, len(entries))
	for _, e := range entries {
		switch {
		case status.IsActive(e.Status):
			out = append(out, e)
		case status.IsTerminal(e.Status) && e.LastTouched().After(cutoff):
			out = append(out, e)
		}
	}
	return out
}
