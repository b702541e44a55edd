// Package status defines the dispatch lifecycle and the transition table that
// every other component consults.
//
// Dispatch statuses form a closed set:
//   - pending, assigned, confirmed, en_route, arrived, in_progress: active
//   - completed, cancelled: terminal
//
// The table is permissive on purpose: an operator may skip forward through the
// progression, cancel from anywhere and move an active entry back to pending.
// The single exception is pending -> assigned, which only the assignment
// protocol may perform.
package status
