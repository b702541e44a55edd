package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/persistence"
)

// Repository implements persistence.Repository on a DB.
type Repository struct {
	db    *DB
	now   func() time.Time
	newID func() string
}

// NewRepository returns a Repository using db.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, now: time.Now, newID: uuid.NewString}
}

const entryFrom = ` FROM dispatch_entries e
LEFT JOIN bookings b ON b.id = e.booking_id
LEFT JOIN drivers d ON d.id = e.driver_id
LEFT JOIN vehicles v ON v.id = e.vehicle_id`

// ListDispatchEntries returns the entries matching q, oldest first, with
// their booking, driver and vehicle.
func (r *Repository) ListDispatchEntries(ctx context.Context, q persistence.EntryQuery) ([]model.DispatchEntry, error) {
	var (
		where []string
		args  []any
	)
	if len(q.Statuses) > 0 {
		where = append(where, "e.status IN ("+placeholders(len(q.Statuses))+")")
		for _, s := range q.Statuses {
			args = append(args, s.String())
		}
	}
	if !q.From.IsZero() {
		where = append(where, "(e.start_time IS NULL OR e.start_time >= ?)")
		args = append(args, r.db.ts(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "(e.start_time IS NULL OR e.start_time <= ?)")
		args = append(args, r.db.ts(q.To))
	}
	query := "SELECT " + entryCols + ", " + bookingCols + ", " + driverCols + ", " + vehicleCols + entryFrom
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY e.created_at, e.id"

	rows, err := r.db.QueryContext(ctx, r.db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list dispatch entries: %w", err)
	}
	defer rows.Close()
	var out []model.DispatchEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispatch entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListUndispatchedBookings returns bookings in statuses without any dispatch
// entry, newest first.
func (r *Repository) ListUndispatchedBookings(ctx context.Context, statuses []model.BookingStatus) ([]persistence.BookingRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	query := "SELECT " + bookingCols + ", " + driverCols + ", " + vehicleCols + ` FROM bookings b
LEFT JOIN drivers d ON d.id = b.driver_id
LEFT JOIN vehicles v ON v.id = b.vehicle_id
WHERE b.status IN (` + placeholders(len(statuses)) + `)
AND NOT EXISTS (SELECT 1 FROM dispatch_entries e WHERE e.booking_id = b.id)
ORDER BY b.created_at DESC, b.id`
	rows, err := r.db.QueryContext(ctx, r.db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list undispatched bookings: %w", err)
	}
	defer rows.Close()
	var out []persistence.BookingRecord
	for rows.Next() {
		b, d, v, err := scanBookingRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, persistence.BookingRecord{Booking: b, Driver: d, Vehicle: v})
	}
	return out, rows.Err()
}

func availableClause(q persistence.ResourceQuery, table string) (string, []any) {
	if q.Available == nil {
		return "", nil
	}
	return " WHERE " + table + ".available = ?", []any{*q.Available}
}

// ListDrivers returns drivers sorted by id.
func (r *Repository) ListDrivers(ctx context.Context, q persistence.ResourceQuery) ([]model.Driver, error) {
	where, args := availableClause(q, "d")
	rows, err := r.db.QueryContext(ctx, r.db.Q("SELECT "+driverCols+" FROM drivers d"+where+" ORDER BY d.id"), args...)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()
	var out []model.Driver
	for rows.Next() {
		var d driverRow
		if err := rows.Scan(d.dest()...); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		if drv := d.driver(); drv != nil {
			out = append(out, *drv)
		}
	}
	return out, rows.Err()
}

// ListVehicles returns vehicles sorted by id.
func (r *Repository) ListVehicles(ctx context.Context, q persistence.ResourceQuery) ([]model.Vehicle, error) {
	where, args := availableClause(q, "v")
	rows, err := r.db.QueryContext(ctx, r.db.Q("SELECT "+vehicleCols+" FROM vehicles v"+where+" ORDER BY v.id"), args...)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()
	var out []model.Vehicle
	for rows.Next() {
		var v vehicleRow
		if err := rows.Scan(v.dest()...); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		if veh := v.vehicle(); veh != nil {
			out = append(out, *veh)
		}
	}
	return out, rows.Err()
}

// InsertDispatchEntry stores e under a new id and returns it as read back.
func (r *Repository) InsertDispatchEntry(ctx context.Context, e model.DispatchEntry) (model.DispatchEntry, error) {
	bookingID := e.BookingID()
	if bookingID == "" {
		return model.DispatchEntry{}, fmt.Errorf("insert dispatch entry: booking id is required")
	}
	now := r.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	id := r.newID()
	_, err := r.db.ExecContext(ctx, r.db.Q(`INSERT INTO dispatch_entries
(id, booking_id, status, driver_id, vehicle_id, start_time, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		id, bookingID, e.Status.String(), e.DriverID, e.VehicleID,
		r.db.tsPtr(e.StartTime), r.db.ts(e.CreatedAt), r.db.ts(e.UpdatedAt))
	if err != nil {
		return model.DispatchEntry{}, fmt.Errorf("insert dispatch entry: %w", err)
	}
	return r.entry(ctx, id)
}

func (r *Repository) entry(ctx context.Context, id string) (model.DispatchEntry, error) {
	row := r.db.QueryRowContext(ctx, r.db.Q("SELECT "+entryCols+", "+bookingCols+", "+driverCols+", "+vehicleCols+entryFrom+" WHERE e.id = ?"), id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DispatchEntry{}, fmt.Errorf("dispatch entry %s: %w", id, persistence.ErrNotFound)
	}
	if err != nil {
		return model.DispatchEntry{}, fmt.Errorf("get dispatch entry: %w", err)
	}
	return e, nil
}

type setter struct {
	cols []string
	args []any
}

func (s *setter) set(col string, v any) {
	s.cols = append(s.cols, col+" = ?")
	s.args = append(s.args, v)
}

func (r *Repository) update(ctx context.Context, table, id string, s setter) error {
	query := "UPDATE " + table + " SET " + strings.Join(s.cols, ", ") + " WHERE id = ?"
	res, err := r.db.ExecContext(ctx, r.db.Q(query), append(s.args, id)...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, persistence.ErrNotFound)
	}
	return nil
}

func (r *Repository) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return r.now()
	}
	return t
}

// UpdateDispatchEntry applies u. Both resource columns are written in the
// same statement.
func (r *Repository) UpdateDispatchEntry(ctx context.Context, id string, u persistence.EntryUpdate) error {
	var s setter
	if u.Resources != nil {
		s.set("driver_id", u.Resources.DriverID)
		s.set("vehicle_id", u.Resources.VehicleID)
	}
	if u.Status != nil {
		s.set("status", u.Status.String())
	}
	s.set("updated_at", r.db.ts(r.stamp(u.UpdatedAt)))
	return r.update(ctx, "dispatch_entries", id, s)
}

// UpdateBooking applies u to the booking.
func (r *Repository) UpdateBooking(ctx context.Context, id string, u persistence.BookingUpdate) error {
	var s setter
	if u.Resources != nil {
		s.set("driver_id", u.Resources.DriverID)
		s.set("vehicle_id", u.Resources.VehicleID)
	}
	if u.Status != nil {
		s.set("status", string(*u.Status))
	}
	s.set("updated_at", r.db.ts(r.stamp(u.UpdatedAt)))
	return r.update(ctx, "bookings", id, s)
}

// InsertAvailability stores rec under a new id when it has none.
func (r *Repository) InsertAvailability(ctx context.Context, rec model.AvailabilityRecord) (model.AvailabilityRecord, error) {
	if rec.ID == "" {
		rec.ID = r.newID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	if rec.Status == "" {
		rec.Status = model.AvailabilityUnavailable
	}
	_, err := r.db.ExecContext(ctx, r.db.Q(`INSERT INTO driver_availability
(id, driver_id, start_time, end_time, status, notes, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.DriverID, r.db.ts(rec.Start), r.db.ts(rec.End), rec.Status, rec.Reason, r.db.ts(rec.CreatedAt))
	if err != nil {
		return model.AvailabilityRecord{}, fmt.Errorf("insert availability: %w", err)
	}
	return rec, nil
}

// DeleteAvailabilityByReason removes the driver's records carrying reason.
// An empty driverID matches every driver.
func (r *Repository) DeleteAvailabilityByReason(ctx context.Context, driverID, reason string) (int, error) {
	query := "DELETE FROM driver_availability WHERE notes = ?"
	args := []any{reason}
	if driverID != "" {
		query += " AND driver_id = ?"
		args = append(args, driverID)
	}
	res, err := r.db.ExecContext(ctx, r.db.Q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete availability: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete availability: %w", err)
	}
	return int(n), nil
}

// ListAvailability returns the driver's records ordered by start.
func (r *Repository) ListAvailability(ctx context.Context, driverID string) ([]model.AvailabilityRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Q(`SELECT id, driver_id, start_time, end_time, status, notes, created_at
FROM driver_availability WHERE driver_id = ? ORDER BY start_time, id`), driverID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	defer rows.Close()
	var out []model.AvailabilityRecord
	for rows.Next() {
		var rec model.AvailabilityRecord
		var start, end, created any
		if err := rows.Scan(&rec.ID, &rec.DriverID, &start, &end, &rec.Status, &rec.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		rec.Start, rec.End, rec.CreatedAt = parseTime(start), parseTime(end), parseTime(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

var (
	_ persistence.Repository           = (*Repository)(nil)
	_ persistence.AvailabilityReleaser = (*Repository)(nil)
)
