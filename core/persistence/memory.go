package persistence

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// Operation names accepted by MemoryRepository.FailOn.
const (
	OpListEntries   = "list_entries"
	OpListBookings  = "list_bookings"
	OpListDrivers   = "list_drivers"
	OpListVehicles  = "list_vehicles"
	OpInsertEntry   = "insert_entry"
	OpUpdateEntry   = "update_entry"
	OpUpdateBooking = "update_booking"
	OpInsertAvail   = "insert_availability"
	OpDeleteAvail   = "delete_availability"
)

// MemoryRepository keeps every table in maps guarded by a single mutex.
type MemoryRepository struct {
	mu           sync.RWMutex
	entries      map[string]model.DispatchEntry
	order        []string
	bookings     map[string]model.Booking
	drivers      map[string]model.Driver
	vehicles     map[string]model.Vehicle
	availability []model.AvailabilityRecord
	failures     map[string]error
	calls        map[string]int

	// Now is the clock used for generated timestamps.
	Now   func() time.Time
	// NewID generates persisted identifiers.
	NewID func() string
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries:  map[string]model.DispatchEntry{},
		bookings: map[string]model.Booking{},
		drivers:  map[string]model.Driver{},
		vehicles: map[string]model.Vehicle{},
		failures: map[string]error{},
		calls:    map[string]int{},
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// FailOn makes every call of op return err. A nil err clears the failure.
func (r *MemoryRepository) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

// Calls returns how many times op was invoked.
func (r *MemoryRepository) Calls(op string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls[op]
}

func (r *MemoryRepository) enter(op string) error {
	r.calls[op]++
	if err := r.failures[op]; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PutBooking inserts or replaces a booking.
func (r *MemoryRepository) PutBooking(b model.Booking) {
	r.mu.Lock()
	r.bookings[b.ID] = b
	r.mu.Unlock()
}

// PutDriver inserts or replaces a driver.
func (r *MemoryRepository) PutDriver(d model.Driver) {
	r.mu.Lock()
	r.drivers[d.ID] = d
	r.mu.Unlock()
}

// PutVehicle inserts or replaces a vehicle.
func (r *MemoryRepository) PutVehicle(v model.Vehicle) {
	r.mu.Lock()
	r.vehicles[v.ID] = v
	r.mu.Unlock()
}

// PutEntry stores a persisted entry as is. Several entries may reference the
// same booking.
func (r *MemoryRepository) PutEntry(e model.DispatchEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := e.Key.ID()
	if _, ok := r.entries[id]; !ok {
		r.order = append(r.order, id)
	}
	r.entries[id] = e.Clone()
}

// Booking returns the stored booking.
func (r *MemoryRepository) Booking(id string) (model.Booking, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	return b, ok
}

// Entry returns the stored entry.
func (r *MemoryRepository) Entry(id string) (model.DispatchEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.Clone(), ok
}

// Availability returns a copy of the availability records.
func (r *MemoryRepository) Availability() []model.AvailabilityRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.availability)
}

func (r *MemoryRepository) embed(e model.DispatchEntry) model.DispatchEntry {
	e = e.Clone()
	if b, ok := r.bookings[e.BookingID()]; ok {
		e.Booking = b
	}
	e.Driver, e.Vehicle = nil, nil
	if d, ok := r.drivers[e.DriverID]; ok {
		e.Driver = &d
	}
	if v, ok := r.vehicles[e.VehicleID]; ok {
		e.Vehicle = &v
	}
	return e
}

// ListDispatchEntries returns entries in insertion order with their
// relations embedded.
func (r *MemoryRepository) ListDispatchEntries(_ context.Context, q EntryQuery) ([]model.DispatchEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpListEntries); err != nil {
		return nil, err
	}
	out := make([]model.DispatchEntry, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		if q.Match(e) {
			out = append(out, r.embed(e))
		}
	}
	return out, nil
}

// ListUndispatchedBookings returns bookings in the given statuses that no
// dispatch entry references, newest first.
func (r *MemoryRepository) ListUndispatchedBookings(_ context.Context, statuses []model.BookingStatus) ([]BookingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpListBookings); err != nil {
		return nil, err
	}
	dispatched := map[string]bool{}
	for _, e := range r.entries {
		dispatched[e.BookingID()] = true
	}
	var out []BookingRecord
	for _, b := range r.bookings {
		if dispatched[b.ID] || !slices.Contains(statuses, b.Status) {
			continue
		}
		rec := BookingRecord{Booking: b}
		if d, ok := r.drivers[b.DriverID]; ok {
			rec.Driver = &d
		}
		if v, ok := r.vehicles[b.VehicleID]; ok {
			rec.Vehicle = &v
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Booking.CreatedAt.Equal(out[j].Booking.CreatedAt) {
			return out[i].Booking.CreatedAt.After(out[j].Booking.CreatedAt)
		}
		return out[i].Booking.ID < out[j].Booking.ID
	})
	return out, nil
}

// ListDrivers returns drivers sorted by id.
func (r *MemoryRepository) ListDrivers(_ context.Context, q ResourceQuery) ([]model.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpListDrivers); err != nil {
		return nil, err
	}
	out := make([]model.Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		if q.Available == nil || *q.Available == d.Available {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListVehicles returns vehicles sorted by id.
func (r *MemoryRepository) ListVehicles(_ context.Context, q ResourceQuery) ([]model.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpListVehicles); err != nil {
		return nil, err
	}
	out := make([]model.Vehicle, 0, len(r.vehicles))
	for _, v := range r.vehicles {
		if q.Available == nil || *q.Available == v.Available {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// InsertDispatchEntry assigns a new identifier to e.
func (r *MemoryRepository) InsertDispatchEntry(_ context.Context, e model.DispatchEntry) (model.DispatchEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpInsertEntry); err != nil {
		return model.DispatchEntry{}, err
	}
	now := r.Now()
	e = e.Clone()
	e.Key = model.PersistedKey(r.NewID(), e.BookingID())
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	r.entries[e.Key.ID()] = e
	r.order = append(r.order, e.Key.ID())
	return r.embed(e), nil
}

// UpdateDispatchEntry applies u to the entry with the given id.
func (r *MemoryRepository) UpdateDispatchEntry(_ context.Context, id string, u EntryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpUpdateEntry); err != nil {
		return err
	}
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("dispatch entry %s: %w", id, ErrNotFound)
	}
	if u.Resources != nil {
		e.DriverID, e.VehicleID = u.Resources.DriverID, u.Resources.VehicleID
	}
	if u.Status != nil {
		e.Status = *u.Status
	}
	e.UpdatedAt = r.stamp(u.UpdatedAt)
	r.entries[id] = e
	return nil
}

// UpdateBooking applies u to the booking with the given id.
func (r *MemoryRepository) UpdateBooking(_ context.Context, id string, u BookingUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpUpdateBooking); err != nil {
		return err
	}
	b, ok := r.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if u.Resources != nil {
		b.DriverID, b.VehicleID = u.Resources.DriverID, u.Resources.VehicleID
	}
	if u.Status != nil {
		b.Status = *u.Status
	}
	b.UpdatedAt = r.stamp(u.UpdatedAt)
	r.bookings[id] = b
	return nil
}

// InsertAvailability appends an availability record.
func (r *MemoryRepository) InsertAvailability(_ context.Context, rec model.AvailabilityRecord) (model.AvailabilityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpInsertAvail); err != nil {
		return model.AvailabilityRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = r.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.Now()
	}
	r.availability = append(r.availability, rec)
	return rec, nil
}

// DeleteAvailabilityByReason removes the driver's records carrying reason.
// An empty driverID matches every driver.
func (r *MemoryRepository) DeleteAvailabilityByReason(_ context.Context, driverID, reason string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(OpDeleteAvail); err != nil {
		return 0, err
	}
	kept := r.availability[:0]
	n := 0
	for _, rec := range r.availability {
		if rec.Reason == reason && (driverID == "" || rec.DriverID == driverID) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.availability = kept
	return n, nil
}

func (r *MemoryRepository) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return r.Now()
	}
	return t
}

var (
	_ Repository           = (*MemoryRepository)(nil)
	_ AvailabilityReleaser = (*MemoryRepository)(nil)
)
