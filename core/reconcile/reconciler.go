package reconcile

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/fleetdispatch/core/dispatcherr"
	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/core/persistence"
	"github.com/kilianp07/fleetdispatch/core/status"
	"github.com/kilianp07/fleetdispatch/core/workingset"
)

// Op names the reconciliation operation in classified errors.
const Op = "reconcile"

// Options configures a Reconciler.
type Options struct {
	// Retention is how long terminal entries stay visible.
	Retention time.Duration
	// BookingStatuses selects the bookings eligible for synthetic entries.
	BookingStatuses []model.BookingStatus
	// Query selects persisted entries.
	Query persistence.EntryQuery
}

// Result is the outcome of one pass.
type Result struct {
	Token       workingset.Token
	Entries     []model.DispatchEntry
	Persisted   int
	Synthesized int
	Merged      int
	Applied     bool
}

// Reconciler runs reconciliation passes against the persistence collaborator.
type Reconciler struct {
	repo persistence.Reader
	opts Options
	sink metrics.MetricsSink
	log  logger.Logger
	now  func() time.Time
}

// New returns a Reconciler. Zero options fall back to a 24h retention and the
// pending/confirmed/assigned booking statuses.
func New(repo persistence.Reader, opts Options, sink metrics.MetricsSink, log logger.Logger) *Reconciler {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if len(opts.BookingStatuses) == 0 {
		opts.BookingStatuses = model.DispatchableStatuses
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Reconciler{repo: repo, opts: opts, sink: sink, log: logger.OrNop(log), now: time.Now}
}

// SetClock overrides the clock used for the retention cut-off.
func (r *Reconciler) SetClock(now func() time.Time) { r.now = now }

// Pass fetches both sources and builds the visible working set. When either
// fetch fails no entries are returned.
func (r *Reconciler) Pass(ctx context.Context) (Result, error) {
	var (
		persisted []model.DispatchEntry
		bookings  []persistence.BookingRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		persisted, err = r.repo.ListDispatchEntries(gctx, r.opts.Query)
		return err
	})
	g.Go(func() error {
		var err error
		bookings, err = r.repo.ListUndispatchedBookings(gctx, r.opts.BookingStatuses)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, dispatcherr.New(dispatcherr.Reconciliation, Op, err)
	}

	synthetic := Synthesize(persisted, bookings)
	all := make([]model.DispatchEntry, 0, len(persisted)+len(synthetic))
	all = append(all, persisted...)
	all = append(all, synthetic...)
	merged := Merge(all)
	visible := Visible(merged, r.now(), r.opts.Retention)
	return Result{
		Entries:     visible,
		Persisted:   len(persisted),
		Synthesized: len(synthetic),
		Merged:      len(merged),
	}, nil
}

// Refresh runs a pass under a fresh token and installs the result in store
// unless a newer pass was installed meanwhile.
func (r *Reconciler) Refresh(ctx context.Context, store *workingset.Store) (Result, error) {
	start := r.now()
	tok := store.Begin()
	res, err := r.Pass(ctx)
	res.Token = tok
	ev := metrics.ReconcileEvent{Token: uint64(tok), Time: start}
	if err != nil {
		ev.Failed = true
		ev.Duration = r.now().Sub(start)
		r.recordPass(ev, nil)
		r.log.Errorw("reconciliation pass failed", err, map[string]any{"token": uint64(tok)})
		return res, err
	}
	res.Applied = store.Replace(tok, res.Entries)
	ev.Persisted, ev.Synthesized, ev.Merged, ev.Visible = res.Persisted, res.Synthesized, res.Merged, len(res.Entries)
	ev.Applied = res.Applied
	ev.Duration = r.now().Sub(start)
	r.recordPass(ev, res.Entries)
	if !res.Applied {
		r.log.Debugf("discarding stale reconciliation pass %d (applied %d)", tok, store.Applied())
	} else {
		r.log.Debugw("reconciliation pass applied", map[string]any{
			"token":       uint64(tok),
			"persisted":   res.Persisted,
			"synthesized": res.Synthesized,
			"visible":     len(res.Entries),
		})
	}
	return res, nil
}

func (r *Reconciler) recordPass(ev metrics.ReconcileEvent, entries []model.DispatchEntry) {
	if rec, ok := r.sink.(metrics.ReconcileRecorder); ok {
		if err := rec.RecordReconcile(ev); err != nil {
			r.log.Warnf("record reconcile: %v", err)
		}
	}
	if !ev.Applied {
		return
	}
	if rec, ok := r.sink.(metrics.WorkingSetRecorder); ok {
		counts := make(map[status.Status]int, len(status.All()))
		for _, s := range status.All() {
			counts[s] = 0
		}
		for _, e := range entries {
			counts[e.Status]++
		}
		if err := rec.RecordWorkingSet(counts); err != nil {
			r.log.Warnf("record working set: %v", err)
		}
	}
}
