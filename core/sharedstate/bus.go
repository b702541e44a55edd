// Package sharedstate is the process-wide invalidation channel of the
// dispatch board. Components that mutate the working set publish a
// notification; every subscriber reacts by re-running reconciliation. The
// payload is informative only and never a diff.
package sharedstate

import (
	"sync"
	"time"

	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/internal/eventbus"
)

// EventName is the name under which notifications are exposed to other
// surfaces and relays.
const EventName = "dispatch-state-update"

// Type distinguishes notifications. Subscribers treat all of them as stale
// markers.
type Type string

const (
	TypeAssignmentUpdate Type = "assignment_update"
	TypeStatusUpdate     Type = "status_update"
	TypeUnassign         Type = "unassign"
	TypeRefresh          Type = "refresh"
)

// Valid reports whether t is a known notification type.
func (t Type) Valid() bool {
	switch t {
	case TypeAssignmentUpdate, TypeStatusUpdate, TypeUnassign, TypeRefresh:
		return true
	}
	return false
}

// Detail describes what triggered a notification.
type Detail struct {
	Op        string `json:"op,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
	EntryID   string `json:"entry_id,omitempty"`
	DriverID  string `json:"driver_id,omitempty"`
	VehicleID string `json:"vehicle_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`
	// Origin identifies the process that published the notification. Relays
	// use it to avoid echoing their own notifications.
	Origin string `json:"origin,omitempty"`
}

// Notification is one invalidation signal.
type Notification struct {
	Type   Type      `json:"type"`
	Token  uint64    `json:"token"`
	Detail Detail    `json:"detail"`
	Time   time.Time `json:"time"`
}

// Bus publishes notifications to every subscriber of the process.
type Bus struct {
	events *eventbus.TypedBus[Notification]
	origin string
	log    logger.Logger
	sink   metrics.MetricsSink
	now    func() time.Time

	// mu orders token issue, last and fan-out.
	mu   sync.RWMutex
	seq  uint64
	last Notification
}

// Option customises a Bus.
type Option func(*Bus)

// WithOrigin sets the origin stamped on locally published notifications.
func WithOrigin(origin string) Option { return func(b *Bus) { b.origin = origin } }

// WithMetrics records notification counts.
func WithMetrics(s metrics.MetricsSink) Option { return func(b *Bus) { b.sink = s } }

// WithClock overrides the notification timestamp source.
func WithClock(now func() time.Time) Option { return func(b *Bus) { b.now = now } }

// New returns a Bus.
func New(log logger.Logger, opts ...Option) *Bus {
	if log == nil {
		log = logger.NopLogger{}
	}
	b := &Bus{
		events: eventbus.NewTyped[Notification](),
		log:    log,
		sink:   metrics.NopSink{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Origin returns the identifier stamped on local notifications.
func (b *Bus) Origin() string { return b.origin }

// Publish stamps a notification with the next token and the local origin,
// then fans it out. The stamped notification is returned.
func (b *Bus) Publish(typ Type, d Detail) Notification {
	if d.Origin == "" {
		d.Origin = b.origin
	}
	return b.deliver(Notification{Type: typ, Detail: d})
}

// Inject delivers a notification received from another process. It gets a
// local token so that LastUpdate stays monotonic.
func (b *Bus) Inject(n Notification) Notification {
	if !n.Type.Valid() {
		n.Type = TypeRefresh
	}
	return b.deliver(Notification{Type: n.Type, Detail: n.Detail, Time: n.Time})
}

// RequestRefresh asks every surface to rebuild its working set.
func (b *Bus) RequestRefresh(reason string) Notification {
	return b.Publish(TypeRefresh, Detail{Reason: reason})
}

func (b *Bus) deliver(n Notification) Notification {
	if n.Time.IsZero() {
		n.Time = b.now()
	}
	b.mu.Lock()
	b.seq++
	n.Token = b.seq
	b.last = n
	b.events.Publish(n)
	b.mu.Unlock()
	if rec, ok := b.sink.(metrics.NotificationRecorder); ok {
		if err := rec.RecordNotification(string(n.Type)); err != nil {
			b.log.Warnf("record notification: %v", err)
		}
	}
	b.log.Debugw("dispatch state update", map[string]any{
		"type":       string(n.Type),
		"token":      n.Token,
		"booking_id": n.Detail.BookingID,
		"origin":     n.Detail.Origin,
	})
	return n
}

// LastUpdate returns the most recent notification. Its Token is zero when
// nothing was published yet.
func (b *Bus) LastUpdate() Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last
}

// Subscribe returns a channel receiving every subsequent notification and a
// function cancelling the subscription.
func (b *Bus) Subscribe() (<-chan Notification, func()) {
	ch := b.events.Subscribe()
	var once sync.Once
	return ch, func() { once.Do(func() { b.events.Unsubscribe(ch) }) }
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int { return b.events.Subscribers() }

// Dropped returns the number of deliveries skipped for slow subscribers.
func (b *Bus) Dropped() uint64 { return b.events.Dropped() }

// Close closes every subscription.
func (b *Bus) Close() { b.events.Close() }
