package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/status"
)

// PromSink records dispatch board activity in Prometheus metrics.
type PromSink struct {
	mutations     *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	passes        *prometheus.CounterVec
	passDuration  prometheus.Histogram
	synthesized   prometheus.Counter
	sideEffects   *prometheus.CounterVec
	workingSet    *prometheus.GaugeVec
	notifications *prometheus.CounterVec
}

// NewPromSink registers dispatch metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_mutations_total",
			Help: "Guarded working-set mutations by operation and outcome",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_mutation_duration_seconds",
			Help:    "Time spent persisting a guarded mutation",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_reconcile_passes_total",
			Help: "Reconciliation passes by result",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: prometheus.DefBuckets,
		}),
		synthesized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_synthesized_entries_total",
			Help: "Pending entries synthesized from undispatched bookings",
		}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_side_effect_failures_total",
			Help: "Best-effort bookkeeping writes that failed",
		}, []string{"op"}),
		workingSet: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_working_set_entries",
			Help: "Visible dispatch entries per status",
		}, []string{"status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_state_notifications_total",
			Help: "Shared state notifications by type",
		}, []string{"type"}),
	}
	var err error
	if s.mutations, err = register(reg, s.mutations); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.passes, err = register(reg, s.passes); err != nil {
		return nil, err
	}
	if s.passDuration, err = register(reg, s.passDuration); err != nil {
		return nil, err
	}
	if s.synthesized, err = register(reg, s.synthesized); err != nil {
		return nil, err
	}
	if s.sideEffects, err = register(reg, s.sideEffects); err != nil {
		return nil, err
	}
	if s.workingSet, err = register(reg, s.workingSet); err != nil {
		return nil, err
	}
	if s.notifications, err = register(reg, s.notifications); err != nil {
		return nil, err
	}
	return s, nil
}

// register adds c to reg, reusing an already registered collector of the
// same shape.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordMutation counts the mutation and observes its duration.
func (s *PromSink) RecordMutation(ev coremetrics.MutationEvent) error {
	s.mutations.WithLabelValues(ev.Op, ev.Outcome).Inc()
	if ev.Duration > 0 {
		s.latency.WithLabelValues(ev.Op, ev.Outcome).Observe(ev.Duration.Seconds())
	}
	return nil
}

// RecordReconcile counts the pass by result.
func (s *PromSink) RecordReconcile(ev coremetrics.ReconcileEvent) error {
	result := "applied"
	switch {
	case ev.Failed:
		result = "failed"
	case !ev.Applied:
		result = "discarded"
	}
	s.passes.WithLabelValues(result).Inc()
	s.passDuration.Observe(ev.Duration.Seconds())
	if ev.Applied {
		s.synthesized.Add(float64(ev.Synthesized))
	}
	return nil
}

// RecordSideEffect counts failed side effects.
func (s *PromSink) RecordSideEffect(ev coremetrics.SideEffectEvent) error {
	s.sideEffects.WithLabelValues(ev.Op).Inc()
	return nil
}

// RecordWorkingSet sets one gauge per status. Statuses missing from counts
// are reset to zero.
func (s *PromSink) RecordWorkingSet(counts map[status.Status]int) error {
	for _, st := range status.All() {
		s.workingSet.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
	return nil
}

// RecordNotification counts bus notifications.
func (s *PromSink) RecordNotification(kind string) error {
	s.notifications.WithLabelValues(kind).Inc()
	return nil
}

func boolLabel(b bool) string { return strconv.FormatBool(b) }
