package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	"github.com/kilianp07/fleetdispatch/core/status"
)

// Table names on the remote endpoint.
const (
	TableEntries      = "dispatch_entries"
	TableBookings     = "bookings"
	TableDrivers      = "drivers"
	TableVehicles     = "vehicles"
	TableAvailability = "driver_availability"
)

const (
	entrySelect   = "*,booking:bookings(*),driver:drivers(*),vehicle:vehicles(*)"
	bookingSelect = "*,driver:drivers(*),vehicle:vehicles(*),dispatch_entries(id)"
	returnRepr    = "return=representation"
)

// Repository implements persistence.Repository over a Client.
type Repository struct {
	c   *Client
	now func() time.Time
}

func NewRepository(c *Client) *Repository {
	return &Repository{c: c, now: time.Now}
}

type entryRow struct {
	ID        string         `json:"id,omitempty"`
	BookingID string         `json:"booking_id"`
	Status    status.Status  `json:"status"`
	DriverID  *string        `json:"driver_id"`
	VehicleID *string        `json:"vehicle_id"`
	StartTime *time.Time     `json:"start_time"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Booking   *model.Booking `json:"booking,omitempty"`
	Driver    *model.Driver  `json:"driver,omitempty"`
	Vehicle   *model.Vehicle `json:"vehicle,omitempty"`
}

func (r entryRow) entry() model.DispatchEntry {
	e := model.DispatchEntry{
		Key:       model.PersistedKey(r.ID, r.BookingID),
		Status:    r.Status,
		DriverID:  deref(r.DriverID),
		VehicleID: deref(r.VehicleID),
		StartTime: r.StartTime,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Driver:    r.Driver,
		Vehicle:   r.Vehicle,
	}
	if r.Booking != nil {
		e.Booking = *r.Booking
	}
	return e
}

type bookingRow struct {
	model.Booking
	Driver   *model.Driver    `json:"driver"`
	Vehicle  *model.Vehicle   `json:"vehicle"`
	Dispatch []map[string]any `json:"dispatch_entries"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nullable sends an empty reference as JSON null.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ListDispatchEntries fetches entries with their relations embedded.
func (r *Repository) ListDispatchEntries(ctx context.Context, q persistence.EntryQuery) ([]model.DispatchEntry, error) {
	v := url.Values{}
	v.Set("select", entrySelect)
	v.Set("order", "created_at.asc")
	if len(q.Statuses) > 0 {
		names := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			names[i] = s.String()
		}
		v.Set("status", in(names))
	}
	var window []string
	if !q.From.IsZero() {
		window = append(window, "or(start_time.is.null,start_time.gte."+q.From.UTC().Format(time.RFC3339)+")")
	}
	if !q.To.IsZero() {
		window = append(window, "or(start_time.is.null,start_time.lte."+q.To.UTC().Format(time.RFC3339)+")")
	}
	if len(window) > 0 {
		v.Set("and", "("+strings.Join(window, ",")+")")
	}
	var rows []entryRow
	if err := r.c.do(ctx, http.MethodGet, TableEntries, v, nil, "", &rows); err != nil {
		return nil, err
	}
	out := make([]model.DispatchEntry, len(rows))
	for i, row := range rows {
		out[i] = row.entry()
	}
	return out, nil
}

// ListUndispatchedBookings fetches bookings in statuses and drops those
// referenced by a dispatch entry.
func (r *Repository) ListUndispatchedBookings(ctx context.Context, statuses []model.BookingStatus) ([]persistence.BookingRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	v := url.Values{}
	v.Set("select", bookingSelect)
	v.Set("status", in(names))
	v.Set("order", "created_at.desc")
	var rows []bookingRow
	if err := r.c.do(ctx, http.MethodGet, TableBookings, v, nil, "", &rows); err != nil {
		return nil, err
	}
	var out []persistence.BookingRecord
	for _, row := range rows {
		if len(row.Dispatch) > 0 {
			continue
		}
		out = append(out, persistence.BookingRecord{Booking: row.Booking, Driver: row.Driver, Vehicle: row.Vehicle})
	}
	return out, nil
}

func resourceQuery(q persistence.ResourceQuery) url.Values {
	v := url.Values{}
	v.Set("select", "*")
	v.Set("order", "id.asc")
	if q.Available != nil {
		v.Set("available", "eq."+strconv.FormatBool(*q.Available))
	}
	return v
}

func (r *Repository) ListDrivers(ctx context.Context, q persistence.ResourceQuery) ([]model.Driver, error) {
	var out []model.Driver
	if err := r.c.do(ctx, http.MethodGet, TableDrivers, resourceQuery(q), nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) ListVehicles(ctx context.Context, q persistence.ResourceQuery) ([]model.Vehicle, error) {
	var out []model.Vehicle
	if err := r.c.do(ctx, http.MethodGet, TableVehicles, resourceQuery(q), nil, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertDispatchEntry posts e; the endpoint assigns the id.
func (r *Repository) InsertDispatchEntry(ctx context.Context, e model.DispatchEntry) (model.DispatchEntry, error) {
	now := r.now()
	row := entryRow{
		BookingID: e.BookingID(),
		Status:    e.Status,
		DriverID:  nullable(e.DriverID),
		VehicleID: nullable(e.VehicleID),
		StartTime: e.StartTime,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = now
	}
	v := url.Values{}
	v.Set("select", entrySelect)
	var rows []entryRow
	if err := r.c.do(ctx, http.MethodPost, TableEntries, v, row, returnRepr, &rows); err != nil {
		return model.DispatchEntry{}, err
	}
	if len(rows) == 0 {
		return model.DispatchEntry{}, fmt.Errorf("insert dispatch entry: empty response")
	}
	return rows[0].entry(), nil
}

// patch updates the row with id and reports ErrNotFound when nothing matched.
func (r *Repository) patch(ctx context.Context, table, id string, body map[string]any) error {
	v := url.Values{}
	v.Set("id", "eq."+id)
	v.Set("select", "id")
	var rows []map[string]any
	if err := r.c.do(ctx, http.MethodPatch, table, v, body, returnRepr, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
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

func (r *Repository) UpdateDispatchEntry(ctx context.Context, id string, u persistence.EntryUpdate) error {
	body := map[string]any{"updated_at": r.stamp(u.UpdatedAt)}
	if u.Resources != nil {
		body["driver_id"] = nullable(u.Resources.DriverID)
		body["vehicle_id"] = nullable(u.Resources.VehicleID)
	}
	if u.Status != nil {
		body["status"] = u.Status.String()
	}
	return r.patch(ctx, TableEntries, id, body)
}

func (r *Repository) UpdateBooking(ctx context.Context, id string, u persistence.BookingUpdate) error {
	body := map[string]any{"updated_at": r.stamp(u.UpdatedAt)}
	if u.Resources != nil {
		body["driver_id"] = nullable(u.Resources.DriverID)
		body["vehicle_id"] = nullable(u.Resources.VehicleID)
	}
	if u.Status != nil {
		body["status"] = string(*u.Status)
	}
	return r.patch(ctx, TableBookings, id, body)
}

func (r *Repository) InsertAvailability(ctx context.Context, rec model.AvailabilityRecord) (model.AvailabilityRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	if rec.Status == "" {
		rec.Status = model.AvailabilityUnavailable
	}
	body := map[string]any{
		"driver_id":  rec.DriverID,
		"start_time": rec.Start,
		"end_time":   rec.End,
		"status":     rec.Status,
		"notes":      rec.Reason,
		"created_at": rec.CreatedAt,
	}
	if rec.ID != "" {
		body["id"] = rec.ID
	}
	var rows []model.AvailabilityRecord
	if err := r.c.do(ctx, http.MethodPost, TableAvailability, nil, body, returnRepr, &rows); err != nil {
		return model.AvailabilityRecord{}, err
	}
	if len(rows) == 0 {
		return rec, nil
	}
	return rows[0], nil
}

// DeleteAvailabilityByReason deletes the driver's records whose notes equal
// reason.
func (r *Repository) DeleteAvailabilityByReason(ctx context.Context, driverID, reason string) (int, error) {
	v := url.Values{}
	v.Set("notes", "eq."+reason)
	v.Set("select", "id")
	if driverID != "" {
		v.Set("driver_id", "eq."+driverID)
	}
	var rows []map[string]any
	if err := r.c.do(ctx, http.MethodDelete, TableAvailability, v, nil, returnRepr, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

var (
	_ persistence.Repository           = (*Repository)(nil)
	_ persistence.AvailabilityReleaser = (*Repository)(nil)
)
