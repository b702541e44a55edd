package workingset

import (
	"slices"
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/status"
)

// Filter narrows a working set for display. Zero fields do not filter.
// DateFrom and DateTo are inclusive YYYY-MM-DD bounds on the booking date.
type Filter struct {
	Statuses  []status.Status `json:"statuses,omitempty"`
	DriverID  string          `json:"driver_id,omitempty"`
	VehicleID string          `json:"vehicle_id,omitempty"`
	DateFrom  string          `json:"date_from,omitempty"`
	DateTo    string          `json:"date_to,omitempty"`
}

// Match reports whether e passes f.
func (f Filter) Match(e model.DispatchEntry) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, e.Status) {
		return false
	}
	if f.DriverID != "" && e.DriverID != f.DriverID {
		return false
	}
	if f.VehicleID != "" && e.VehicleID != f.VehicleID {
		return false
	}
	if f.DateFrom != "" && (e.Booking.Date == "" || e.Booking.Date < f.DateFrom) {
		return false
	}
	if f.DateTo != "" && (e.Booking.Date == "" || e.Booking.Date > f.DateTo) {
		return false
	}
	return true
}

// Apply returns the entries matching f, preserving order.
func (f Filter) Apply(entries []model.DispatchEntry) []model.DispatchEntry {
	out := make([]model.DispatchEntry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Stats summarises a working set for the board header.
type Stats struct {
	Total          int                   `json:"total"`
	Pending        int                   `json:"pending"`
	Active         int                   `json:"active"`
	CompletedToday int                   `json:"completed_today"`
	ByStatus       map[status.Status]int `json:"by_status"`
}

// activeForStats lists the statuses counted as active on the board header.
var activeForStats = []status.Status{status.Assigned, status.Confirmed, status.EnRoute, status.InProgress}

// ComputeStats counts entries. Completed entries count for today when their
// last update falls on the calendar day of now in loc.
func ComputeStats(entries []model.DispatchEntry, now time.Time, loc *time.Location) Stats {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc).Format(model.DateLayout)
	st := Stats{Total: len(entries), ByStatus: map[status.Status]int{}}
	for _, e := range entries {
		st.ByStatus[e.Status]++
		switch {
		case e.Status == status.Pending:
			st.Pending++
		case slices.Contains(activeForStats, e.Status):
			st.Active++
		case e.Status == status.Completed && e.LastTouched().In(loc).Format(model.DateLayout) == today:
			st.CompletedToday++
		}
	}
	return st
}
