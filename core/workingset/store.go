// Package workingset holds the in-memory dispatch working set shared by every
// surface of the process, and the guard through which it is mutated.
//
// The set changes in exactly two ways: a reconciliation pass replaces it
// wholesale (Store.Replace) or a guarded mutation rewrites one entry
// (Guard.Do). Observers are notified of both through Subscribe.
package workingset

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/fleetdispatch/core/model"
	"github.com/kilianp07/fleetdispatch/internal/eventbus"
)

// Token orders reconciliation passes. Tokens are issued by Begin and
// compared by Replace.
type Token uint64

// Change reasons.
const (
	ChangeReplaced   = "replaced"
	ChangeOptimistic = "optimistic"
	ChangeCommitted  = "committed"
	ChangeRolledBack = "rolled_back"
)

// Change is emitted to observers after the set was modified.
type Change struct {
	Version   uint64
	Reason    string
	BookingID string
}

// Store is an observable, concurrency-safe working set keyed by booking id.
type Store struct {
	mu         sync.RWMutex
	entries    []model.DispatchEntry
	index      map[string]int
	version    uint64
	generation uint64
	applied    Token
	refreshed  time.Time

	issued    atomic.Uint64
	observers *eventbus.TypedBus[Change]
	now       func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		index:     map[string]int{},
		observers: eventbus.NewTyped[Change](),
		now:       time.Now,
	}
}

// Begin issues the token of a new reconciliation pass.
func (s *Store) Begin() Token { return Token(s.issued.Add(1)) }

// Replace installs the result of the pass identified by tok. Results of a
// pass older than the last applied one are discarded and Replace returns
// false. entries must hold at most one entry per booking.
func (s *Store) Replace(tok Token, entries []model.DispatchEntry) bool {
	s.mu.Lock()
	if tok <= s.applied {
		s.mu.Unlock()
		return false
	}
	s.applied = tok
	s.entries = make([]model.DispatchEntry, len(entries))
	s.index = make(map[string]int, len(entries))
	for i, e := range entries {
		s.entries[i] = e.Clone()
		s.index[e.BookingID()] = i
	}
	s.generation++
	s.version++
	s.refreshed = s.now()
	ch := Change{Version: s.version, Reason: ChangeReplaced}
	s.mu.Unlock()
	s.observers.Publish(ch)
	return true
}

// Snapshot returns a deep copy of the set in display order.
func (s *Store) Snapshot() []model.DispatchEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DispatchEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out
}

// Get returns the entry of a booking.
func (s *Store) Get(bookingID string) (model.DispatchEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[bookingID]
	if !ok {
		return model.DispatchEntry{}, false
	}
	return s.entries[i].Clone(), true
}

// Resolve finds an entry by key. Synthetic keys and keys carrying a booking
// id resolve through the booking; bare persisted ids are searched.
func (s *Store) Resolve(k model.EntryKey) (model.DispatchEntry, bool) {
	if k.BookingID() != "" {
		e, ok := s.Get(k.BookingID())
		if !ok {
			return e, false
		}
		if !k.Synthetic() && e.Key.ID() != k.ID() {
			return model.DispatchEntry{}, false
		}
		return e, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if !e.Key.Synthetic() && e.Key.ID() == k.ID() {
			return e.Clone(), true
		}
	}
	return model.DispatchEntry{}, false
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Version increases on every modification.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Applied returns the token of the pass currently installed.
func (s *Store) Applied() Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// RefreshedAt returns when the last pass was installed.
func (s *Store) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshed
}

// Subscribe returns a channel of changes and a cancel function.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := s.observers.Subscribe()
	var once sync.Once
	return ch, func() { once.Do(func() { s.observers.Unsubscribe(ch) }) }
}

// Close releases observers.
func (s *Store) Close() { s.observers.Close() }

// edit rewrites the entry of bookingID under the write lock. fn receives a
// copy; the returned generation identifies the pass the entry belonged to.
func (s *Store) edit(bookingID, reason string, fn func(e *model.DispatchEntry)) (before, after model.DispatchEntry, gen uint64, ok bool) {
	s.mu.Lock()
	i, found := s.index[bookingID]
	if !found {
		s.mu.Unlock()
		return model.DispatchEntry{}, model.DispatchEntry{}, 0, false
	}
	before = s.entries[i].Clone()
	next := before.Clone()
	fn(&next)
	s.entries[i] = next
	s.version++
	ch := Change{Version: s.version, Reason: reason, BookingID: bookingID}
	gen = s.generation
	s.mu.Unlock()
	s.observers.Publish(ch)
	return before, next.Clone(), gen, true
}

// restore puts snapshot back when no pass replaced the set since gen.
func (s *Store) restore(snapshot model.DispatchEntry, gen uint64) bool {
	s.mu.Lock()
	i, found := s.index[snapshot.BookingID()]
	if !found || s.generation != gen {
		s.mu.Unlock()
		return false
	}
	s.entries[i] = snapshot.Clone()
	s.version++
	ch := Change{Version: s.version, Reason: ChangeRolledBack, BookingID: snapshot.BookingID()}
	s.mu.Unlock()
	s.observers.Publish(ch)
	return true
}
