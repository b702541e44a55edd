package model

import "time"

// AvailabilityUnavailable is the status written on records created by an
// assignment.
const AvailabilityUnavailable = "unavailable"

// AvailabilityRecord blocks a driver's calendar for the day of a booking.
type AvailabilityRecord struct {
	ID        string    `json:"id"`
	DriverID  string    `json:"driver_id"`
	Start     time.Time `json:"start_time"`
	End       time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Reason    string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// AvailabilityReason is the note tying a record to the booking it was
// created for.
func AvailabilityReason(bookingID string) string { return "Assigned to booking " + bookingID }
