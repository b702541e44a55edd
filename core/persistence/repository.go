// Package persistence defines the port through which the dispatch core reads
// and writes bookings, dispatch entries and their side-effect records.
//
// Implementations live in infra/store (SQL) and infra/rest (remote query
// API). MemoryRepository is the in-process implementation used by tests and
// the memory backend.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/status"
)

// ErrNotFound is returned by writes addressing a missing row.
var ErrNotFound = errors.New("not found")

// EntryQuery selects persisted dispatch entries. Zero fields do not filter.
// The window applies to start_time; entries without a start time always
// match.
type EntryQuery struct {
	Statuses []status.Status
	From     time.Time
	To       time.Time
}

// Match reports whether e satisfies the query.
func (q EntryQuery) Match(e model.DispatchEntry) bool {
	if len(q.Statuses) > 0 {
		ok := false
		for _, s := range q.Statuses {
			if s == e.Status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if e.StartTime == nil {
		return true
	}
	if !q.From.IsZero() && e.StartTime.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && e.StartTime.After(q.To) {
		return false
	}
	return true
}

// BookingRecord is a booking with the resources it references.
type BookingRecord struct {
	Booking model.Booking
	Driver  *model.Driver
	Vehicle *model.Vehicle
}

// ResourceQuery filters drivers and vehicles. A nil Available returns all.
type ResourceQuery struct {
	Available *bool
}

// Resources carries both resource references of an entry. They are always
// written together; empty strings clear the reference.
type Resources struct {
	DriverID  string
	VehicleID string
}

// EntryUpdate is a partial update of a dispatch entry. Nil fields are left
// untouched.
type EntryUpdate struct {
	Resources *Resources
	Status    *status.Status
	UpdatedAt time.Time
}

// BookingUpdate is a partial update of a booking.
type BookingUpdate struct {
	Resources *Resources
	Status    *model.BookingStatus
	UpdatedAt time.Time
}

// Reader is the read side of the persistence collaborator.
type Reader interface {
	ListDispatchEntries(ctx context.Context, q EntryQuery) ([]model.DispatchEntry, error)
	ListUndispatchedBookings(ctx context.Context, statuses []model.BookingStatus) ([]BookingRecord, error)
	ListDrivers(ctx context.Context, q ResourceQuery) ([]model.Driver, error)
	ListVehicles(ctx context.Context, q ResourceQuery) ([]model.Vehicle, error)
}

// Writer is the write side of the persistence collaborator. Dispatch rows are
// never deleted.
type Writer interface {
	// InsertDispatchEntry stores e and returns it with its persisted key.
	InsertDispatchEntry(ctx context.Context, e model.DispatchEntry) (model.DispatchEntry, error)
	UpdateDispatchEntry(ctx context.Context, id string, u EntryUpdate) error
	UpdateBooking(ctx context.Context, id string, u BookingUpdate) error
	InsertAvailability(ctx context.Context, r model.AvailabilityRecord) (model.AvailabilityRecord, error)
}

// Repository is the full persistence collaborator.
type Repository interface {
	Reader
	Writer
}

// AvailabilityReleaser is implemented by repositories able to drop the
// availability records an assignment created. It is optional.
type AvailabilityReleaser interface {
	DeleteAvailabilityByReason(ctx context.Context, driverID, reason string) (int, error)
}
