package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// ReconcileConfig tunes how the working set is rebuilt.
type ReconcileConfig struct {
	// IntervalSeconds is the auto refresh period. Zero disables it.
	IntervalSeconds int `json:"interval_seconds"`
	// RetentionHours hides entries untouched for longer.
	RetentionHours int `json:"retention_hours"`
	// Timezone interprets booking dates and times.
	Timezone string `json:"timezone"`
	// BookingStatuses are the booking statuses eligible for synthesis.
	BookingStatuses []string `json:"booking_statuses"`
	// ReleaseAvailability deletes the availability records created by an
	// assignment when the booking is unassigned.
	ReleaseAvailability bool `json:"release_availability"`
}

// SetDefaults applies sane defaults.
func (c *ReconcileConfig) SetDefaults() {
	if c.RetentionHours <= 0 {
		c.RetentionHours = 24
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if len(c.BookingStatuses) == 0 {
		for _, s := range model.DispatchableStatuses {
			c.BookingStatuses = append(c.BookingStatuses, string(s))
		}
	}
}

// Validate checks the timezone and the interval.
func (c ReconcileConfig) Validate() error {
	if c.IntervalSeconds < 0 {
		return fmt.Errorf("interval_seconds must not be negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// Interval returns the auto refresh period.
func (c ReconcileConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Retention returns the visibility window.
func (c ReconcileConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// Location returns the configured timezone, UTC when it cannot be loaded.
func (c ReconcileConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Statuses converts BookingStatuses.
func (c ReconcileConfig) Statuses() []model.BookingStatus {
	out := make([]model.BookingStatus, len(c.BookingStatuses))
	for i, s := range c.BookingStatuses {
		out[i] = model.BookingStatus(s)
	}
	return out
}
