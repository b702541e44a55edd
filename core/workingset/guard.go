package workingset

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/fleetdispatch/core/dispatcherr"
	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/sharedstate"
)

// Publisher is the part of the shared-state bus used by the guard.
type Publisher interface {
	Publish(typ sharedstate.Type, d sharedstate.Detail) sharedstate.Notification
}

// Commit adjusts the optimistic entry once the remote write succeeded, for
// instance to install the identifier of a promoted entry.
type Commit func(e *model.DispatchEntry)

// Mutation describes one optimistic change of a single booking's entry.
type Mutation struct {
	Op        string
	BookingID string
	// Local applies the change to the in-memory entry.
	Local func(e *model.DispatchEntry)
	// Remote performs the write. It receives the entry as it was before
	// Local ran and may return a Commit.
	Remote func(ctx context.Context, before model.DispatchEntry) (Commit, error)
	// Notify is published on the bus after a successful write.
	Notify sharedstate.Type
	Detail sharedstate.Detail
}

// Guard applies mutations locally first and reverts them when the remote
// write fails.
type Guard struct {
	store *Store
	bus   Publisher
	sink  metrics.MetricsSink
	log   logger.Logger
	now   func() time.Time
}

// NewGuard returns a guard over store. bus may be nil.
func NewGuard(store *Store, bus Publisher, sink metrics.MetricsSink, log logger.Logger) *Guard {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Guard{store: store, bus: bus, sink: sink, log: logger.OrNop(log), now: time.Now}
}

// Do runs m. On success the optimistic state is kept, the commit applied and
// m.Notify published. On failure the pre-mutation entry is restored, a
// refresh is requested and the error is returned classified as an
// assignment failure unless Remote already classified it.
func (g *Guard) Do(ctx context.Context, m Mutation) (model.DispatchEntry, error) {
	start := g.now()
	local := m.Local
	if local == nil {
		local = func(*model.DispatchEntry) {}
	}
	before, _, gen, ok := g.store.edit(m.BookingID, ChangeOptimistic, local)
	if !ok {
		err := dispatcherr.Preconditionf(m.Op, "booking %s is not in the working set", m.BookingID)
		g.record(m, model.DispatchEntry{}, metrics.OutcomeRejected, false, start)
		return model.DispatchEntry{}, err
	}

	commit, err := m.Remote(ctx, before.Clone())
	if err != nil {
		restored := g.store.restore(before, gen)
		outcome := metrics.OutcomeRolledBack
		if dispatcherr.KindOf(err) == dispatcherr.Precondition {
			outcome = metrics.OutcomeRejected
		}
		g.record(m, before, outcome, false, start)
		g.log.Errorw("dispatch mutation failed", err, map[string]any{
			"op":         m.Op,
			"booking_id": m.BookingID,
			"restored":   restored,
		})
		if g.bus != nil {
			g.bus.Publish(sharedstate.TypeRefresh, sharedstate.Detail{
				Op:        m.Op,
				BookingID: m.BookingID,
				Reason:    "rollback",
			})
		}
		var classified *dispatcherr.Error
		if errors.As(err, &classified) {
			return before, err
		}
		return before, dispatcherr.New(dispatcherr.Assignment, m.Op, err)
	}

	after := before
	if _, a, _, ok := g.store.edit(m.BookingID, ChangeCommitted, func(e *model.DispatchEntry) {
		if commit != nil {
			commit(e)
		}
	}); ok {
		after = a
	}
	g.record(m, after, metrics.OutcomeCommitted, before.Key.Synthetic() && !after.Key.Synthetic(), start)
	if g.bus != nil && m.Notify != "" {
		d := m.Detail
		if d.Op == "" {
			d.Op = m.Op
		}
		if d.BookingID == "" {
			d.BookingID = m.BookingID
		}
		if d.EntryID == "" && !after.Key.Synthetic() {
			d.EntryID = after.Key.ID()
		}
		g.bus.Publish(m.Notify, d)
	}
	return after, nil
}

func (g *Guard) record(m Mutation, e model.DispatchEntry, outcome string, promoted bool, start time.Time) {
	end := g.now()
	ev := metrics.MutationEvent{
		Op:        m.Op,
		BookingID: m.BookingID,
		EntryID:   e.Key.ID(),
		Outcome:   outcome,
		Promoted:  promoted,
		Duration:  end.Sub(start),
		Time:      end,
	}
	if err := g.sink.RecordMutation(ev); err != nil {
		g.log.Warnf("record mutation: %v", err)
	}
}
