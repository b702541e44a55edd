// Package assign implements the dispatch mutations an operator can trigger:
// the two-resource assignment, its release and direct status changes. Every
// mutation runs through the working-set guard so that a failed remote write
// leaves the working set as it was.
package assign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/fleetdispatch/core/dispatcherr"
	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/monitoring"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	"github.com/kilianp07/fleetdispatch/core/sharedstate"
	"github.com/kilianp07/fleetdispatch/core/status"
	"github.com/kilianp07/fleetdispatch/core/workingset"
)

// Operation names used in errors, metrics and notifications.
const (
	OpAssign       = "assign"
	OpUnassign     = "unassign"
	OpSetStatus    = "set_status"
	OpAvailability = "availability"
	OpMirror       = "mirror_booking"
)

// Options configures a Coordinator.
type Options struct {
	// Location interprets booking dates and times.
	Location *time.Location
	// ReleaseAvailability removes the availability records of a booking when
	// it is unassigned, if the repository supports it.
	ReleaseAvailability bool
}

// Coordinator performs assignment, unassignment and status changes.
type Coordinator struct {
	repo  persistence.Repository
	store *workingset.Store
	guard *workingset.Guard
	opts  Options
	sink  metrics.MetricsSink
	log   logger.Logger
	now   func() time.Time
}

// New returns a Coordinator mutating store through guard.
func New(repo persistence.Repository, store *workingset.Store, guard *workingset.Guard, opts Options, sink metrics.MetricsSink, log logger.Logger) *Coordinator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Coordinator{
		repo:  repo,
		store: store,
		guard: guard,
		opts:  opts,
		sink:  sink,
		log:   logger.OrNop(log),
		now:   time.Now,
	}
}

// SetClock overrides the clock used for timestamps.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// Assign attaches a driver and a vehicle to the booking's entry. Both
// references are written in one write: the insert promoting a synthetic
// entry, or an update of a persisted one. The entry status is not changed. An availability record is created when the
// driver changes, and its failure does not fail the assignment.
func (c *Coordinator) Assign(ctx context.Context, bookingID, driverID, vehicleID string) (model.DispatchEntry, error) {
	bookingID, driverID, vehicleID = strings.TrimSpace(bookingID), strings.TrimSpace(driverID), strings.TrimSpace(vehicleID)
	if bookingID == "" || driverID == "" || vehicleID == "" {
		return model.DispatchEntry{}, dispatcherr.Preconditionf(OpAssign, "booking, driver and vehicle are required")
	}
	current, ok := c.store.Get(bookingID)
	if !ok {
		return model.DispatchEntry{}, dispatcherr.Preconditionf(OpAssign, "booking %s is not in the working set", bookingID)
	}
	if status.IsTerminal(current.Status) {
		return model.DispatchEntry{}, dispatcherr.Preconditionf(OpAssign, "booking %s is %s", bookingID, current.Status)
	}

	res := persistence.Resources{DriverID: driverID, VehicleID: vehicleID}
	e, err := c.guard.Do(ctx, workingset.Mutation{
		Op:        OpAssign,
		BookingID: bookingID,
		Local: func(e *model.DispatchEntry) {
			if e.DriverID != driverID {
				e.Driver = nil
			}
			if e.VehicleID != vehicleID {
				e.Vehicle = nil
			}
			e.DriverID, e.VehicleID = driverID, vehicleID
			e.Booking.DriverID, e.Booking.VehicleID = driverID, vehicleID
		},
		Remote: func(ctx context.Context, before model.DispatchEntry) (workingset.Commit, error) {
			now := c.now()
			promoted := before
			if before.Key.Synthetic() {
				seed := before
				seed.DriverID, seed.VehicleID = driverID, vehicleID
				p, err := c.promote(ctx, seed, status.Pending)
				if err != nil {
					return nil, err
				}
				promoted = p
			} else {
				id := before.Key.ID()
				if err := c.repo.UpdateDispatchEntry(ctx, id, persistence.EntryUpdate{Resources: &res, UpdatedAt: now}); err != nil {
					return nil, fmt.Errorf("update dispatch entry %s: %w", id, err)
				}
			}
			c.mirror(ctx, bookingID, persistence.BookingUpdate{Resources: &res, UpdatedAt: now})
			if before.DriverID != driverID {
				c.blockDriver(ctx, before.Booking, driverID)
			}
			return func(e *model.DispatchEntry) {
				if before.Key.Synthetic() {
					e.Key = promoted.Key
					e.Status = promoted.Status
					e.StartTime = promoted.StartTime
					e.CreatedAt = promoted.CreatedAt
				}
				e.UpdatedAt = now
			}, nil
		},
		Notify: sharedstate.TypeAssignmentUpdate,
		Detail: sharedstate.Detail{DriverID: driverID, VehicleID: vehicleID},
	})
	return e, c.report(OpAssign, bookingID, err)
}

// Unassign releases both resources of an entry and returns it to pending.
// The entry is located by booking id when given, by dispatch reference
// otherwise. Releasing an entry that holds no resources rewrites the same
// values.
func (c *Coordinator) Unassign(ctx context.Context, dispatchRef, bookingID string) (model.DispatchEntry, error) {
	current, err := c.resolve(OpUnassign, dispatchRef, bookingID)
	if err != nil {
		return model.DispatchEntry{}, err
	}
	if err := status.Check(current.Status, status.Pending, status.ViaUnassignment); err != nil {
		return model.DispatchEntry{}, dispatcherr.New(dispatcherr.Precondition, OpUnassign, err)
	}
	bookingID = current.BookingID()
	released := current.DriverID
	none := persistence.Resources{}

	e, err := c.guard.Do(ctx, workingset.Mutation{
		Op:        OpUnassign,
		BookingID: bookingID,
		Local: func(e *model.DispatchEntry) {
			e.DriverID, e.VehicleID = "", ""
			e.Driver, e.Vehicle = nil, nil
			e.Status = status.Pending
			e.Booking.DriverID, e.Booking.VehicleID = "", ""
		},
		Remote: func(ctx context.Context, before model.DispatchEntry) (workingset.Commit, error) {
			now := c.now()
			if unassigned(before) && !before.LastTouched().IsZero() {
				now = before.LastTouched()
			}
			pending := status.Pending
			bookingPending := model.BookingPending
			if before.Key.Synthetic() {
				if err := c.repo.UpdateBooking(ctx, bookingID, persistence.BookingUpdate{Resources: &none, Status: &bookingPending, UpdatedAt: now}); err != nil {
					return nil, fmt.Errorf("update booking %s: %w", bookingID, err)
				}
			} else {
				id := before.Key.ID()
				if err := c.repo.UpdateDispatchEntry(ctx, id, persistence.EntryUpdate{Resources: &none, Status: &pending, UpdatedAt: now}); err != nil {
					return nil, fmt.Errorf("update dispatch entry %s: %w", id, err)
				}
				c.mirror(ctx, bookingID, persistence.BookingUpdate{Resources: &none, Status: &bookingPending, UpdatedAt: now})
			}
			if before.DriverID != "" {
				c.releaseDriver(ctx, bookingID, before.DriverID)
			}
			return func(e *model.DispatchEntry) {
				e.UpdatedAt = now
				if before.Key.Synthetic() {
					e.Booking.Status = bookingPending
				}
			}, nil
		},
		Notify: sharedstate.TypeUnassign,
		Detail: sharedstate.Detail{DriverID: released},
	})
	return e, c.report(OpUnassign, bookingID, err)
}

// SetStatus moves an entry to a new status. Returning to pending releases
// the resources through Unassign. A synthetic entry is promoted with the
// requested status. Statuses visible to the booking subsystem are mirrored
// onto the booking.
func (c *Coordinator) SetStatus(ctx context.Context, dispatchRef, bookingID string, to status.Status) (model.DispatchEntry, error) {
	current, err := c.resolve(OpSetStatus, dispatchRef, bookingID)
	if err != nil {
		return model.DispatchEntry{}, err
	}
	via := status.ViaStatusWrite
	if current.Status == status.Pending && to == status.Assigned && current.FullyAssigned() {
		via = status.ViaAssignment
	}
	if err := status.Check(current.Status, to, via); err != nil {
		return model.DispatchEntry{}, dispatcherr.New(dispatcherr.Precondition, OpSetStatus, err)
	}
	if to == status.Pending && current.Status != status.Pending {
		return c.Unassign(ctx, "", current.BookingID())
	}
	bookingID = current.BookingID()

	e, err := c.guard.Do(ctx, workingset.Mutation{
		Op:        OpSetStatus,
		BookingID: bookingID,
		Local:     func(e *model.DispatchEntry) { e.Status = to },
		Remote: func(ctx context.Context, before model.DispatchEntry) (workingset.Commit, error) {
			now := c.now()
			promoted := before
			if before.Key.Synthetic() {
				p, err := c.promote(ctx, before, to)
				if err != nil {
					return nil, err
				}
				promoted = p
			} else {
				id := before.Key.ID()
				if err := c.repo.UpdateDispatchEntry(ctx, id, persistence.EntryUpdate{Status: &to, UpdatedAt: now}); err != nil {
					return nil, fmt.Errorf("update dispatch entry %s: %w", id, err)
				}
			}
			if bs, ok := model.BookingStatusFor(to); ok {
				c.mirror(ctx, bookingID, persistence.BookingUpdate{Status: &bs, UpdatedAt: now})
			}
			return func(e *model.DispatchEntry) {
				if before.Key.Synthetic() {
					e.Key = promoted.Key
					e.StartTime = promoted.StartTime
					e.CreatedAt = promoted.CreatedAt
				}
				e.UpdatedAt = now
				if bs, ok := model.BookingStatusFor(to); ok {
					e.Booking.Status = bs
				}
			}, nil
		},
		Notify: sharedstate.TypeStatusUpdate,
		Detail: sharedstate.Detail{Status: to.String(), DriverID: current.DriverID, VehicleID: current.VehicleID},
	})
	return e, c.report(OpSetStatus, bookingID, err)
}

// resolve locates the entry addressed by a dispatch reference or booking id.
func (c *Coordinator) resolve(op, dispatchRef, bookingID string) (model.DispatchEntry, error) {
	bookingID, dispatchRef = strings.TrimSpace(bookingID), strings.TrimSpace(dispatchRef)
	if bookingID != "" {
		if e, ok := c.store.Get(bookingID); ok {
			return e, nil
		}
	}
	if dispatchRef != "" {
		key, err := model.ParseEntryRef(dispatchRef)
		if err != nil {
			return model.DispatchEntry{}, dispatcherr.New(dispatcherr.Precondition, op, err)
		}
		if e, ok := c.store.Resolve(key); ok {
			return e, nil
		}
	}
	return model.DispatchEntry{}, dispatcherr.Preconditionf(op, "no entry for dispatch %q booking %q", dispatchRef, bookingID)
}

// promote inserts a persisted record for a synthetic entry. Persisted entries
// are returned unchanged.
func (c *Coordinator) promote(ctx context.Context, e model.DispatchEntry, st status.Status) (model.DispatchEntry, error) {
	if !e.Key.Synthetic() {
		return e, nil
	}
	start, err := e.Booking.ScheduledAt(c.opts.Location)
	if err != nil {
		start = c.now()
	}
	now := c.now()
	inserted, err := c.repo.InsertDispatchEntry(ctx, model.DispatchEntry{
		Key:       e.Key,
		Status:    st,
		DriverID:  e.DriverID,
		VehicleID: e.VehicleID,
		StartTime: &start,
		CreatedAt: now,
		UpdatedAt: now,
		Booking:   e.Booking,
	})
	if err != nil {
		return model.DispatchEntry{}, fmt.Errorf("promote booking %s: %w", e.BookingID(), err)
	}
	if inserted.Key.Synthetic() {
		return model.DispatchEntry{}, fmt.Errorf("promote booking %s: repository returned no identifier", e.BookingID())
	}
	c.log.Infof("promoted booking %s to dispatch entry %s", e.BookingID(), inserted.Key.ID())
	return inserted, nil
}

// mirror copies resource or status changes onto the booking. The dispatch
// entry is authoritative, so a failure is only reported.
func (c *Coordinator) mirror(ctx context.Context, bookingID string, u persistence.BookingUpdate) {
	if err := c.repo.UpdateBooking(ctx, bookingID, u); err != nil {
		c.sideEffect(OpMirror, bookingID, err)
	}
}

// blockDriver records the driver as unavailable for the booking's day.
func (c *Coordinator) blockDriver(ctx context.Context, b model.Booking, driverID string) {
	start, end, err := b.Day(c.opts.Location)
	if err != nil {
		start, end = model.DayBounds(c.now(), c.opts.Location)
	}
	rec := model.AvailabilityRecord{
		DriverID: driverID,
		Start:    start,
		End:      end,
		Status:   model.AvailabilityUnavailable,
		Reason:   model.AvailabilityReason(b.ID),
	}
	if _, err := c.repo.InsertAvailability(ctx, rec); err != nil {
		c.sideEffect(OpAvailability, b.ID, err)
	}
}

// releaseDriver drops the availability records created for the booking.
func (c *Coordinator) releaseDriver(ctx context.Context, bookingID, driverID string) {
	if !c.opts.ReleaseAvailability {
		return
	}
	rel, ok := c.repo.(persistence.AvailabilityReleaser)
	if !ok {
		return
	}
	n, err := rel.DeleteAvailabilityByReason(ctx, driverID, model.AvailabilityReason(bookingID))
	if err != nil {
		c.sideEffect(OpAvailability, bookingID, err)
		return
	}
	c.log.Debugf("released %d availability records of driver %s for booking %s", n, driverID, bookingID)
}

func (c *Coordinator) sideEffect(op, bookingID string, err error) {
	wrapped := dispatcherr.New(dispatcherr.SideEffect, op, err)
	c.log.Errorw("dispatch side effect failed", wrapped, map[string]any{"op": op, "booking_id": bookingID})
	if rec, ok := c.sink.(metrics.SideEffectRecorder); ok {
		if rerr := rec.RecordSideEffect(metrics.SideEffectEvent{Op: op, BookingID: bookingID, Error: err.Error(), Time: c.now()}); rerr != nil {
			c.log.Warnf("record side effect: %v", rerr)
		}
	}
}

// report forwards assignment failures to the error monitor.
func (c *Coordinator) report(op, bookingID string, err error) error {
	if err != nil && errors.Is(err, dispatcherr.Assignment) {
		monitoring.CaptureException(err, map[string]string{"op": op, "booking_id": bookingID})
	}
	return err
}

func unassigned(e model.DispatchEntry) bool {
	return e.DriverID == "" && e.VehicleID == "" && e.Status == status.Pending
}
