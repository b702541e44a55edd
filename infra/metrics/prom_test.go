package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/fleetdispatch/core/metrics"
	"github.com/kilianp07/fleetdispatch/core/status"
)

func newPromSink(t *testing.T, reg prometheus.Registerer) *PromSink {
	t.Helper()
	sinkIf, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	require.NoError(t, err)
	sink, ok := sinkIf.(*PromSink)
	if !ok {
		t.Fatalf("expected PromSink, got %T", sinkIf)
	}
	return sink
}

func TestPromSink_RecordMutation(t *testing.T) {
	sink := newPromSink(t, prometheus.NewRegistry())
	require.NoError(t, sink.RecordMutation(coremetrics.MutationEvent{Op: "assign", Outcome: coremetrics.OutcomeCommitted, Duration: 20 * time.Millisecond}))
	require.NoError(t, sink.RecordMutation(coremetrics.MutationEvent{Op: "assign", Outcome: coremetrics.OutcomeRolledBack}))

	expected := `
# HELP dispatch_mutations_total Guarded working-set mutations by operation and outcome
# TYPE dispatch_mutations_total counter
dispatch_mutations_total{op="assign",outcome="committed"} 1
dispatch_mutations_total{op="assign",outcome="rolled_back"} 1
`
	if err := testutil.CollectAndCompare(sink.mutations, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
	assert.Equal(t, 1, testutil.CollectAndCount(sink.latency))
}

func TestPromSink_RecordReconcile(t *testing.T) {
	sink := newPromSink(t, prometheus.NewRegistry())
	require.NoError(t, sink.RecordReconcile(coremetrics.ReconcileEvent{Applied: true, Synthesized: 3}))
	require.NoError(t, sink.RecordReconcile(coremetrics.ReconcileEvent{Applied: false, Synthesized: 5}))
	require.NoError(t, sink.RecordReconcile(coremetrics.ReconcileEvent{Failed: true}))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.passes.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.passes.WithLabelValues("discarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.passes.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(sink.synthesized))
}

func TestPromSink_Gauges(t *testing.T) {
	sink := newPromSink(t, prometheus.NewRegistry())
	require.NoError(t, sink.RecordWorkingSet(map[status.Status]int{status.Pending: 2, status.Assigned: 1}))
	require.NoError(t, sink.RecordWorkingSet(map[status.Status]int{status.Assigned: 4}))
	require.NoError(t, sink.RecordSideEffect(coremetrics.SideEffectEvent{Op: "unassign"}))
	require.NoError(t, sink.RecordNotification("refresh"))

	assert.Equal(t, 0.0, testutil.ToFloat64(sink.workingSet.WithLabelValues("pending")))
	assert.Equal(t, 4.0, testutil.ToFloat64(sink.workingSet.WithLabelValues("assigned")))
	assert.Equal(t, len(status.All()), testutil.CollectAndCount(sink.workingSet))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.sideEffects.WithLabelValues("unassign")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.notifications.WithLabelValues("refresh")))
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := newPromSink(t, reg)
	second := newPromSink(t, reg)
	require.NoError(t, second.RecordNotification("unassign"))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.notifications.WithLabelValues("unassign")))
}

func TestServeRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := newPromSink(t, reg)
	require.NoError(t, sink.RecordNotification("refresh"))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeRegistry(ctx, addr, reg) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, `dispatch_state_notifications_total{type="refresh"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
