package journal

import (
	"context"
	"time"

	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/metrics"
)

// appendTimeout bounds a single journal write.
const appendTimeout = 2 * time.Second

// Recorder adapts a Store to the metrics sink interfaces so the journal can
// be combined with other sinks.
type Recorder struct {
	store Store
	log   logger.Logger
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store Store, log logger.Logger) *Recorder {
	return &Recorder{store: store, log: logger.OrNop(log)}
}

func (r *Recorder) append(rec Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := r.store.Append(ctx, rec); err != nil {
		r.log.Warnf("journal append %s/%s: %v", rec.Kind, rec.Op, err)
		return err
	}
	return nil
}

// RecordMutation journals a guarded mutation.
func (r *Recorder) RecordMutation(ev metrics.MutationEvent) error {
	return r.append(Record{
		Timestamp:  ev.Time,
		Kind:       KindMutation,
		Op:         ev.Op,
		BookingID:  ev.BookingID,
		EntryID:    ev.EntryID,
		Outcome:    ev.Outcome,
		Promoted:   ev.Promoted,
		DurationMS: ev.Duration.Milliseconds(),
	})
}

// RecordSideEffect journals a failed side effect.
func (r *Recorder) RecordSideEffect(ev metrics.SideEffectEvent) error {
	return r.append(Record{
		Timestamp: ev.Time,
		Kind:      KindSideEffect,
		Op:        ev.Op,
		BookingID: ev.BookingID,
		Error:     ev.Error,
	})
}

// RecordReconcile journals failed passes only; successful ones are covered
// by metrics.
func (r *Recorder) RecordReconcile(ev metrics.ReconcileEvent) error {
	if !ev.Failed {
		return nil
	}
	return r.append(Record{
		Timestamp:  ev.Time,
		Kind:       KindReconcile,
		Op:         "reconcile",
		Outcome:    "failed",
		DurationMS: ev.Duration.Milliseconds(),
	})
}

// Close closes the underlying store.
func (r *Recorder) Close() error { return r.store.Close() }

var (
	_ metrics.MetricsSink        = (*Recorder)(nil)
	_ metrics.SideEffectRecorder = (*Recorder)(nil)
	_ metrics.ReconcileRecorder  = (*Recorder)(nil)
)
