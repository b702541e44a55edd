package metrics

import (
	"time"

	"github.com/kilianp07/fleetdispatch/core/status"
)

// Mutation outcomes.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeRejected   = "rejected"
)

// MutationEvent describes one guarded mutation of the working set.
type MutationEvent struct {
	Op        string
	BookingID string
	EntryID   string
	Outcome   string
	Promoted  bool
	Duration  time.Duration
	Time      time.Time
}

// MetricsSink records dispatch mutations for observability purposes.
type MetricsSink interface {
	RecordMutation(ev MutationEvent) error
}

// ReconcileEvent summarises a reconciliation pass.
type ReconcileEvent struct {
	Token       uint64
	Persisted   int
	Synthesized int
	Merged      int
	Visible     int
	Applied     bool
	Failed      bool
	Duration    time.Duration
	Time        time.Time
}

// ReconcileRecorder records reconciliation passes.
type ReconcileRecorder interface {
	RecordReconcile(ev ReconcileEvent) error
}

// SideEffectEvent captures best-effort bookkeeping that failed.
type SideEffectEvent struct {
	Op        string
	BookingID string
	Error     string
	Time      time.Time
}

// SideEffectRecorder records side-effect failures.
type SideEffectRecorder interface {
	RecordSideEffect(ev SideEffectEvent) error
}

// WorkingSetRecorder records the size of the visible working set per status.
type WorkingSetRecorder interface {
	RecordWorkingSet(counts map[status.Status]int) error
}

// NotificationRecorder counts bus notifications by type.
type NotificationRecorder interface {
	RecordNotification(kind string) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordMutation(MutationEvent) error           { return nil }
func (NopSink) RecordReconcile(ReconcileEvent) error         { return nil }
func (NopSink) RecordSideEffect(SideEffectEvent) error       { return nil }
func (NopSink) RecordWorkingSet(map[status.Status]int) error { return nil }
func (NopSink) RecordNotification(string) error              { return nil }
