package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/persistence"
)

// The booking, driver and vehicle tables belong to the booking subsystem.
// These upserts load them for local runs and tests.

// UpsertDriver inserts or replaces a driver.
func (r *Repository) UpsertDriver(ctx context.Context, d model.Driver) error {
	_, err := r.db.ExecContext(ctx, r.db.Q(`INSERT INTO drivers (id, first_name, last_name, email, phone, available)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET first_name = excluded.first_name, last_name = excluded.last_name,
email = excluded.email, phone = excluded.phone, available = excluded.available`),
		d.ID, d.FirstName, d.LastName, d.Email, d.Phone, d.Available)
	if err != nil {
		return fmt.Errorf("upsert driver %s: %w", d.ID, err)
	}
	return nil
}

// UpsertVehicle inserts or replaces a vehicle.
func (r *Repository) UpsertVehicle(ctx context.Context, v model.Vehicle) error {
	_, err := r.db.ExecContext(ctx, r.db.Q(`INSERT INTO vehicles (id, name, plate_number, brand, model, available)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, plate_number = excluded.plate_number,
brand = excluded.brand, model = excluded.model, available = excluded.available`),
		v.ID, v.Name, v.PlateNumber, v.Brand, v.Model, v.Available)
	if err != nil {
		return fmt.Errorf("upsert vehicle %s: %w", v.ID, err)
	}
	return nil
}

// UpsertBooking inserts or replaces a booking.
func (r *Repository) UpsertBooking(ctx context.Context, b model.Booking) error {
	now := r.now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	if b.Status == "" {
		b.Status = model.BookingPending
	}
	_, err := r.db.ExecContext(ctx, r.db.Q(`INSERT INTO bookings (id, code, customer_name, customer_phone, customer_email,
pickup_date, pickup_time, pickup_location, dropoff_location, service_name, status, driver_id, vehicle_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET code = excluded.code, customer_name = excluded.customer_name,
customer_phone = excluded.customer_phone, customer_email = excluded.customer_email,
pickup_date = excluded.pickup_date, pickup_time = excluded.pickup_time,
pickup_location = excluded.pickup_location, dropoff_location = excluded.dropoff_location,
service_name = excluded.service_name, status = excluded.status, driver_id = excluded.driver_id,
vehicle_id = excluded.vehicle_id, updated_at = excluded.updated_at`),
		b.ID, b.Code, b.CustomerName, b.CustomerPhone, b.CustomerEmail, b.Date, b.Time,
		b.PickupLocation, b.DropoffLocation, b.ServiceName, string(b.Status), b.DriverID, b.VehicleID,
		r.db.ts(b.CreatedAt), r.db.ts(b.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert booking %s: %w", b.ID, err)
	}
	return nil
}

// GetBooking returns the booking with id.
func (r *Repository) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	row := r.db.QueryRowContext(ctx, r.db.Q(`SELECT `+bookingCols+`, `+driverCols+`, `+vehicleCols+` FROM bookings b
LEFT JOIN drivers d ON d.id = b.driver_id
LEFT JOIN vehicles v ON v.id = b.vehicle_id
WHERE b.id = ?`), id)
	b, _, _, err := scanBookingRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, persistence.ErrNotFound)
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("get booking %s: %w", id, err)
	}
	return b, nil
}
