package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/fleetdispatch/core/status"
)

// SyntheticPrefix marks the rendered reference of an entry that has no
// persisted dispatch record yet.
const SyntheticPrefix = "pending-"

// ErrInvalidRef is returned by ParseEntryRef for empty references.
var ErrInvalidRef = errors.New("invalid dispatch reference")

// EntryKey identifies a dispatch entry. It is either synthetic (only the
// booking is known) or persisted (a dispatch record id exists). The zero
// value is not a valid key.
type EntryKey struct {
	id        string
	bookingID string
}

// SyntheticKey returns the key of an entry materialised for a booking that
// has no dispatch record.
func SyntheticKey(bookingID string) EntryKey { return EntryKey{bookingID: bookingID} }

// PersistedKey returns the key of a stored dispatch record.
func PersistedKey(id, bookingID string) EntryKey { return EntryKey{id: id, bookingID: bookingID} }

// Synthetic reports whether the entry has not been promoted yet.
func (k EntryKey) Synthetic() bool { return k.id == "" }

// ID returns the persisted identifier, empty for synthetic keys.
func (k EntryKey) ID() string { return k.id }

// BookingID returns the booking the entry projects.
func (k EntryKey) BookingID() string { return k.bookingID }

// IsZero reports whether the key carries no booking.
func (k EntryKey) IsZero() bool { return k.id == "" && k.bookingID == "" }

// String renders the reference used on the wire and by operators.
func (k EntryKey) String() string {
	if k.Synthetic() {
		return SyntheticPrefix + k.bookingID
	}
	return k.id
}

// ParseEntryRef interprets a reference received at a boundary. References
// carrying the synthetic prefix resolve to the booking; anything else is a
// persisted id whose booking is unknown until looked up.
func ParseEntryRef(ref string) (EntryKey, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return EntryKey{}, ErrInvalidRef
	}
	if b, ok := strings.CutPrefix(ref, SyntheticPrefix); ok {
		if b == "" {
			return EntryKey{}, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
		}
		return SyntheticKey(b), nil
	}
	return PersistedKey(ref, ""), nil
}

// DispatchEntry is the dispatch projection of a booking.
type DispatchEntry struct {
	Key       EntryKey
	Status    status.Status
	DriverID  string
	VehicleID string
	StartTime *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Booking Booking
	Driver  *Driver
	Vehicle *Vehicle
}

// BookingID returns the booking the entry belongs to.
func (e DispatchEntry) BookingID() string {
	if e.Key.BookingID() != "" {
		return e.Key.BookingID()
	}
	return e.Booking.ID
}

// LastTouched is updated_at, falling back to created_at.
func (e DispatchEntry) LastTouched() time.Time {
	if !e.UpdatedAt.IsZero() {
		return e.UpdatedAt
	}
	return e.CreatedAt
}

// FullyAssigned reports whether both resources are set.
func (e DispatchEntry) FullyAssigned() bool { return e.DriverID != "" && e.VehicleID != "" }

// Clone returns a deep copy so snapshots never alias live state.
func (e DispatchEntry) Clone() DispatchEntry {
	c := e
	if e.StartTime != nil {
		t := *e.StartTime
		c.StartTime = &t
	}
	if e.Driver != nil {
		d := *e.Driver
		c.Driver = &d
	}
	if e.Vehicle != nil {
		v := *e.Vehicle
		c.Vehicle = &v
	}
	return c
}

type entryJSON struct {
	ID        string        `json:"id"`
	BookingID string        `json:"booking_id"`
	Synthetic bool          `json:"synthetic"`
	Status    status.Status `json:"status"`
	DriverID  string        `json:"driver_id,omitempty"`
	VehicleID string        `json:"vehicle_id,omitempty"`
	StartTime *time.Time    `json:"start_time"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Booking   Booking       `json:"booking"`
	Driver    *Driver       `json:"driver,omitempty"`
	Vehicle   *Vehicle      `json:"vehicle,omitempty"`
}

// MarshalJSON renders the key as id/booking_id/synthetic.
func (e DispatchEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		ID:        e.Key.String(),
		BookingID: e.BookingID(),
		Synthetic: e.Key.Synthetic(),
		Status:    e.Status,
		DriverID:  e.DriverID,
		VehicleID: e.VehicleID,
		StartTime: e.StartTime,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		Booking:   e.Booking,
		Driver:    e.Driver,
		Vehicle:   e.Vehicle,
	})
}

// UnmarshalJSON restores the tagged key from the synthetic flag.
func (e *DispatchEntry) UnmarshalJSON(b []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	bookingID := raw.BookingID
	if bookingID == "" {
		bookingID = raw.Booking.ID
	}
	key := PersistedKey(raw.ID, bookingID)
	if raw.Synthetic {
		key = SyntheticKey(bookingID)
	}
	*e = DispatchEntry{
		Key:       key,
		Status:    raw.Status,
		DriverID:  raw.DriverID,
		VehicleID: raw.VehicleID,
		StartTime: raw.StartTime,
		CreatedAt: raw.CreatedAt,
		UpdatedAt: raw.UpdatedAt,
		Booking:   raw.Booking,
		Driver:    raw.Driver,
		Vehicle:   raw.Vehicle,
	}
	return nil
}
