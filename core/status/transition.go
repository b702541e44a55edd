package status

import (
	"errors"
	"fmt"
)

// Via identifies the code path requesting a transition.
type Via int

const (
	// ViaStatusWrite is a bare status change requested by an operator.
	ViaStatusWrite Via = iota
	// ViaAssignment is the two-resource assignment protocol.
	ViaAssignment
	// ViaUnassignment is the resource release protocol.
	ViaUnassignment
)

var (
	// ErrTerminal is returned for any transition out of completed or cancelled.
	ErrTerminal = errors.New("status is terminal")
	// ErrAssignmentOnly is returned when pending -> assigned is requested
	// outside the assignment protocol.
	ErrAssignmentOnly = errors.New("pending -> assigned requires the assignment protocol")
)

// Check returns nil when from -> to is permitted for the given path. Only
// leaving a terminal status and a bare pending -> assigned are refused. A
// transition to the same status is always a permitted no-op.
func Check(from, to Status, via Via) error {
	if !from.Valid() {
		return fmt.Errorf("%w: from %d", ErrUnknownStatus, int(from))
	}
	if !to.Valid() {
		return fmt.Errorf("%w: to %d", ErrUnknownStatus, int(to))
	}
	if from == to {
		return nil
	}
	if IsTerminal(from) {
		return fmt.Errorf("%w: %s -> %s", ErrTerminal, from, to)
	}
	// Non-terminal statuses reach each other in both directions.
	if from == Pending && to == Assigned && via != ViaAssignment {
		return fmt.Errorf("%w", ErrAssignmentOnly)
	}
	return nil
}

// CanTransition is Check for a bare status write, reduced to a boolean.
func CanTransition(from, to Status) bool { return Check(from, to, ViaStatusWrite) == nil }

// Next lists the statuses reachable from s by a bare status write.
func Next(s Status) []Status {
	var out []Status
	for _, to := range All() {
		if to != s && CanTransition(s, to) {
			out = append(out, to)
		}
	}
	return out
}
