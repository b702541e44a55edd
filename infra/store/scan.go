package store

import (
	"database/sql"
	"fmt"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/status"
)

type scanner interface{ Scan(...any) error }

const bookingCols = `b.id, b.code, b.customer_name, b.customer_phone, b.customer_email, b.pickup_date, b.pickup_time, b.pickup_location, b.dropoff_location, b.service_name, b.status, b.driver_id, b.vehicle_id, b.created_at, b.updated_at`

const driverCols = `d.id, d.first_name, d.last_name, d.email, d.phone, d.available`

const vehicleCols = `v.id, v.name, v.plate_number, v.brand, v.model, v.available`

const entryCols = `e.id, e.booking_id, e.status, e.driver_id, e.vehicle_id, e.start_time, e.created_at, e.updated_at`

// nullable holders for LEFT JOINed rows.
type bookingRow struct {
	id, code, name, phone, email, date, tm, pickup, dropoff, service, status, driverID, vehicleID sql.NullString
	createdAt, updatedAt                                                                           any
}

func (r *bookingRow) dest() []any {
	return []any{&r.id, &r.code, &r.name, &r.phone, &r.email, &r.date, &r.tm, &r.pickup, &r.dropoff,
		&r.service, &r.status, &r.driverID, &r.vehicleID, &r.createdAt, &r.updatedAt}
}

func (r *bookingRow) booking() (model.Booking, bool) {
	if !r.id.Valid {
		return model.Booking{}, false
	}
	return model.Booking{
		ID:              r.id.String,
		Code:            r.code.String,
		CustomerName:    r.name.String,
		CustomerPhone:   r.phone.String,
		CustomerEmail:   r.email.String,
		Date:            r.date.String,
		Time:            r.tm.String,
		PickupLocation:  r.pickup.String,
		DropoffLocation: r.dropoff.String,
		ServiceName:     r.service.String,
		Status:          model.BookingStatus(r.status.String),
		DriverID:        r.driverID.String,
		VehicleID:       r.vehicleID.String,
		CreatedAt:       parseTime(r.createdAt),
		UpdatedAt:       parseTime(r.updatedAt),
	}, true
}

type driverRow struct {
	id, first, last, email, phone sql.NullString
	available                     sql.NullBool
}

func (r *driverRow) dest() []any {
	return []any{&r.id, &r.first, &r.last, &r.email, &r.phone, &r.available}
}

func (r *driverRow) driver() *model.Driver {
	if !r.id.Valid || r.id.String == "" {
		return nil
	}
	return &model.Driver{
		ID:        r.id.String,
		FirstName: r.first.String,
		LastName:  r.last.String,
		Email:     r.email.String,
		Phone:     r.phone.String,
		Available: r.available.Bool,
	}
}

type vehicleRow struct {
	id, name, plate, brand, model sql.NullString
	available                     sql.NullBool
}

func (r *vehicleRow) dest() []any {
	return []any{&r.id, &r.name, &r.plate, &r.brand, &r.model, &r.available}
}

func (r *vehicleRow) vehicle() *model.Vehicle {
	if !r.id.Valid || r.id.String == "" {
		return nil
	}
	return &model.Vehicle{
		ID:          r.id.String,
		Name:        r.name.String,
		PlateNumber: r.plate.String,
		Brand:       r.brand.String,
		Model:       r.model.String,
		Available:   r.available.Bool,
	}
}

// scanEntry reads entryCols, bookingCols, driverCols and vehicleCols.
func scanEntry(row scanner) (model.DispatchEntry, error) {
	var (
		id, bookingID, st, driverID, vehicleID string
		start, createdAt, updatedAt            any
		b                                      bookingRow
		d                                      driverRow
		v                                      vehicleRow
	)
	dest := []any{&id, &bookingID, &st, &driverID, &vehicleID, &start, &createdAt, &updatedAt}
	dest = append(dest, b.dest()...)
	dest = append(dest, d.dest()...)
	dest = append(dest, v.dest()...)
	if err := row.Scan(dest...); err != nil {
		return model.DispatchEntry{}, err
	}
	s, err := status.Parse(st)
	if err != nil {
		return model.DispatchEntry{}, fmt.Errorf("dispatch entry %s: %w", id, err)
	}
	e := model.DispatchEntry{
		Key:       model.PersistedKey(id, bookingID),
		Status:    s,
		DriverID:  driverID,
		VehicleID: vehicleID,
		StartTime: parseTimePtr(start),
		CreatedAt: parseTime(createdAt),
		UpdatedAt: parseTime(updatedAt),
		Driver:    d.driver(),
		Vehicle:   v.vehicle(),
	}
	if bk, ok := b.booking(); ok {
		e.Booking = bk
	}
	return e, nil
}

// scanBookingRecord reads bookingCols, driverCols and vehicleCols.
func scanBookingRecord(row scanner) (model.Booking, *model.Driver, *model.Vehicle, error) {
	var (
		b bookingRow
		d driverRow
		v vehicleRow
	)
	dest := append(b.dest(), d.dest()...)
	dest = append(dest, v.dest()...)
	if err := row.Scan(dest...); err != nil {
		return model.Booking{}, nil, nil, err
	}
	bk, _ := b.booking()
	return bk, d.driver(), v.vehicle(), nil
}
