// Package journal keeps an append-only audit trail of dispatch mutations,
// side-effect failures and reconciliation passes. It is an operator aid and
// is never read back by the dispatch core.
package journal

import (
	"context"
	"fmt"
	"time"
)

// Record kinds.
const (
	KindMutation   = "mutation"
	KindSideEffect = "side_effect"
	KindReconcile  = "reconcile"
)

// Record is one journal line.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"kind"`
	Op         string    `json:"op"`
	BookingID  string    `json:"booking_id,omitempty"`
	EntryID    string    `json:"entry_id,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Promoted   bool      `json:"promoted,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Visible    int       `json:"visible,omitempty"`
}

// Query defines filters for retrieving records. Zero fields do not filter.
type Query struct {
	Start     time.Time
	End       time.Time
	Kind      string
	Op        string
	BookingID string
	Outcome   string
	// Limit keeps the most recent records when positive.
	Limit int
}

// Match reports whether r satisfies every filter except Limit.
func (q Query) Match(r Record) bool {
	switch {
	case !q.Start.IsZero() && r.Timestamp.Before(q.Start):
		return false
	case !q.End.IsZero() && r.Timestamp.After(q.End):
		return false
	case q.Kind != "" && r.Kind != q.Kind:
		return false
	case q.Op != "" && r.Op != q.Op:
		return false
	case q.BookingID != "" && r.BookingID != q.BookingID:
		return false
	case q.Outcome != "" && r.Outcome != q.Outcome:
		return false
	}
	return true
}

func (q Query) limit(res []Record) []Record {
	if q.Limit > 0 && len(res) > q.Limit {
		return res[len(res)-q.Limit:]
	}
	return res
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// Options selects and configures a Store.
type Options struct {
	// Backend is "jsonl" or "sqlite".
	Backend    string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Open builds the configured store. A jsonl backend rotates when MaxSizeMB
// is positive.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "jsonl":
		if opts.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(opts.Path, opts.MaxSizeMB, opts.MaxBackups, opts.MaxAgeDays)
		}
		return NewJSONLStore(opts.Path)
	case "sqlite":
		return NewSQLiteStore(opts.Path)
	}
	return nil, fmt.Errorf("unknown journal backend %s", opts.Backend)
}
