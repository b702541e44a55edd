package status

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is a dispatch lifecycle state.
type Status int

const (
	Pending Status = iota + 1
	Assigned
	Confirmed
	EnRoute
	Arrived
	InProgress
	Completed
	Cancelled
)

var names = map[Status]string{
	Pending:    "pending",
	Assigned:   "assigned",
	Confirmed:  "confirmed",
	EnRoute:    "en_route",
	Arrived:    "arrived",
	InProgress: "in_progress",
	Completed:  "completed",
	Cancelled:  "cancelled",
}

// ErrUnknownStatus is returned when parsing a value outside the closed set.
var ErrUnknownStatus = errors.New("unknown dispatch status")

// All returns every status in lifecycle order.
func All() []Status {
	return []Status{Pending, Assigned, Confirmed, EnRoute, Arrived, InProgress, Completed, Cancelled}
}

func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	_, ok := names[s]
	return ok
}

// Parse converts the wire representation into a Status.
func Parse(v string) (Status, error) {
	for s, n := range names {
		if n == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, v)
}

// MustParse is Parse for literals known at compile time.
func MustParse(v string) Status {
	s, err := Parse(v)
	if err != nil {
		panic(err)
	}
	return s
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalJSON keeps the textual form on the wire.
func (s Status) MarshalJSON() ([]byte, error) {
	b, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(b))
}

// UnmarshalJSON decodes the textual form.
func (s *Status) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(v))
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s Status) bool { return s == Completed || s == Cancelled }

// IsActive reports whether the entry is still being worked on.
func IsActive(s Status) bool { return s.Valid() && !IsTerminal(s) }
