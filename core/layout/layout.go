// Package layout persists the operator's board column preferences: the
// order of the status columns and the set of hidden ones. Missing or corrupt
// stored values silently fall back to the default layout.
package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/kilianp07/fleetdispatch/core/logger"
	"github.com/kilianp07/fleetdispatch/core/status"
)

// Storage keys.
const (
	KeyOrder  = "dispatch-column-order"
	KeyHidden = "dispatch-hidden-columns"
)

// Backend is a durable key/value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Layout is the column configuration of the board.
type Layout struct {
	Order  []status.Status `json:"order"`
	Hidden []status.Status `json:"hidden"`
}

// Default returns every status in lifecycle order with nothing hidden.
func Default() Layout {
	return Layout{Order: status.All(), Hidden: []status.Status{}}
}

// Visible returns the ordered columns that are not hidden.
func (l Layout) Visible() []status.Status {
	out := make([]status.Status, 0, len(l.Order))
	for _, s := range l.Order {
		if !slices.Contains(l.Hidden, s) {
			out = append(out, s)
		}
	}
	return out
}

// NormalizeOrder drops invalid and duplicate statuses and appends the
// missing ones in lifecycle order.
func NormalizeOrder(order []status.Status) []status.Status {
	out := make([]status.Status, 0, len(status.All()))
	for _, s := range order {
		if s.Valid() && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	for _, s := range status.All() {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// NormalizeHidden drops invalid and duplicate statuses.
func NormalizeHidden(hidden []status.Status) []status.Status {
	out := make([]status.Status, 0, len(hidden))
	for _, s := range hidden {
		if s.Valid() && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Store reads and writes layouts through a Backend.
type Store struct {
	mu      sync.Mutex
	backend Backend
	log     logger.Logger
}

// NewStore returns a Store over backend.
func NewStore(backend Backend, log logger.Logger) *Store {
	return &Store{backend: backend, log: logger.OrNop(log)}
}

// Load returns the stored layout, falling back to defaults per key.
func (s *Store) Load(ctx context.Context) Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) Layout {
	l := Default()
	if order, ok := s.read(ctx, KeyOrder); ok {
		l.Order = NormalizeOrder(order)
	}
	if hidden, ok := s.read(ctx, KeyHidden); ok {
		l.Hidden = NormalizeHidden(hidden)
	}
	return l
}

func (s *Store) read(ctx context.Context, key string) ([]status.Status, bool) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.log.Warnf("layout: read %s: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		s.log.Warnf("layout: ignoring corrupt %s: %v", key, err)
		return nil, false
	}
	out := make([]status.Status, 0, len(names))
	for _, n := range names {
		if st, err := status.Parse(n); err == nil {
			out = append(out, st)
		}
	}
	return out, true
}

func (s *Store) write(ctx context.Context, key string, v []status.Status) error {
	names := make([]string, len(v))
	for i, st := range v {
		names[i] = st.String()
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("layout: write %s: %w", key, err)
	}
	return nil
}

// SaveOrder stores a new column order.
func (s *Store) SaveOrder(ctx context.Context, order []status.Status) (Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.load(ctx)
	l.Order = NormalizeOrder(order)
	return l, s.write(ctx, KeyOrder, l.Order)
}

// SetHidden stores the hidden column set.
func (s *Store) SetHidden(ctx context.Context, hidden []status.Status) (Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.load(ctx)
	l.Hidden = NormalizeHidden(hidden)
	return l, s.write(ctx, KeyHidden, l.Hidden)
}

// Hide adds st to the hidden set.
func (s *Store) Hide(ctx context.Context, st status.Status) (Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.load(ctx)
	if !slices.Contains(l.Hidden, st) {
		l.Hidden = NormalizeHidden(append(l.Hidden, st))
	}
	return l, s.write(ctx, KeyHidden, l.Hidden)
}

// Show removes st from the hidden set.
func (s *Store) Show(ctx context.Context, st status.Status) (Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.load(ctx)
	l.Hidden = slices.DeleteFunc(l.Hidden, func(h status.Status) bool { return h == st })
	return l, s.write(ctx, KeyHidden, l.Hidden)
}

// Move places st at index in the column order. Out of range indexes are
// clamped.
func (s *Store) Move(ctx context.Context, st status.Status, index int) (Layout, error) {
	if !st.Valid() {
		return Layout{}, fmt.Errorf("layout: %w", status.ErrUnknownStatus)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.load(ctx)
	order := slices.DeleteFunc(slices.Clone(l.Order), func(o status.Status) bool { return o == st })
	index = max(0, min(index, len(order)))
	l.Order = slices.Insert(order, index, st)
	return l, s.write(ctx, KeyOrder, l.Order)
}

// Reset removes both keys so the default layout applies.
func (s *Store) Reset(ctx context.Context) (Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range []string{KeyOrder, KeyHidden} {
		if err := s.backend.Delete(ctx, k); err != nil {
			return s.load(ctx), fmt.Errorf("layout: reset %s: %w", k, err)
		}
	}
	return Default(), nil
}
