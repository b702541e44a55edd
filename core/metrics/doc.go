// Package metrics defines the observability sinks of the dispatch core.
// Every sink records guarded mutations; reconciliation passes, side-effect
// failures, working-set gauges and bus notifications are optional recorder
// interfaces discovered by type assertion. Sinks are built from configuration
// through the factory registry and combined with NewMultiSink when more than
// one is configured.
package metrics
