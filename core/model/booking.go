package model

import (
	"fmt"
	"time"

	"github.com/kilianp07/fleetdispatch/core/status"
)

// BookingStatus is the customer-facing booking lifecycle. It is a superset of
// the dispatch statuses and is kept as a string because bookings are owned by
// another subsystem that may introduce values the dispatch core ignores.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingAssigned   BookingStatus = "assigned"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingEnRoute    BookingStatus = "en_route"
	BookingArrived    BookingStatus = "arrived"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingQuoted     BookingStatus = "quoted"
	BookingPaid       BookingStatus = "paid"
	BookingNoShow     BookingStatus = "no_show"
)

// DispatchableStatuses are the booking statuses eligible for a synthetic
// dispatch entry when no persisted record exists.
var DispatchableStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingAssigned}

// Dispatch maps the booking status onto the dispatch lifecycle.
func (b BookingStatus) Dispatch() (status.Status, bool) {
	s, err := status.Parse(string(b))
	if err != nil {
		return 0, false
	}
	return s, true
}

// BookingStatusFor returns the booking status mirrored for a dispatch status.
// Only statuses visible to the booking subsystem are mirrored.
func BookingStatusFor(s status.Status) (BookingStatus, bool) {
	switch s {
	case status.Pending, status.Confirmed, status.Completed, status.Cancelled:
		return BookingStatus(s.String()), true
	}
	return "", false
}

const (
	// DateLayout is the wire layout of Booking.Date.
	DateLayout = "2006-01-02"
	// TimeLayout is the wire layout of Booking.Time.
	TimeLayout = "15:04"
)

// Booking is a customer reservation.
type Booking struct {
	ID              string        `json:"id"`
	Code            string        `json:"code,omitempty"`
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `json:"customer_phone,omitempty"`
	CustomerEmail   string        `json:"customer_email,omitempty"`
	Date            string        `json:"date"`
	Time            string        `json:"time"`
	PickupLocation  string        `json:"pickup_location,omitempty"`
	DropoffLocation string        `json:"dropoff_location,omitempty"`
	ServiceName     string        `json:"service_name,omitempty"`
	Status          BookingStatus `json:"status"`
	DriverID        string        `json:"driver_id,omitempty"`
	VehicleID       string        `json:"vehicle_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// HasSchedule reports whether both the date and the time are present and
// parseable.
func (b Booking) HasSchedule() bool {
	_, err := b.ScheduledAt(time.UTC)
	return err == nil
}

// ScheduledAt combines Date and Time in the given location. Times with
// seconds ("15:04:05") are accepted as well.
func (b Booking) ScheduledAt(loc *time.Location) (time.Time, error) {
	if b.Date == "" || b.Time == "" {
		return time.Time{}, fmt.Errorf("booking %s: missing date or time", b.ID)
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{DateLayout + " " + TimeLayout, DateLayout + " 15:04:05"} {
		if t, err := time.ParseInLocation(layout, b.Date+" "+b.Time, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("booking %s: invalid schedule %q %q", b.ID, b.Date, b.Time)
}

// Day returns the first and last second of the booking's calendar day.
func (b Booking) Day(loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DateLayout, b.Date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("booking %s: invalid date %q: %w", b.ID, b.Date, err)
	}
	start, end := DayBounds(d, loc)
	return start, end, nil
}

// DayBounds returns 00:00:00 and 23:59:59 of t's calendar day in loc. Both
// are wall clock times, so a day with a DST change is not 24 hours long.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), time.Date(y, m, d, 23, 59, 59, 0, loc)
}
