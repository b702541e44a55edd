package sharedstate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/core/factory"
)

type wire struct {
	mu   sync.Mutex
	sent [][]byte
	fail bool
}

func (w *wire) send(_ context.Context, p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		w.fail = false
		return errors.New("broker down")
	}
	w.sent = append(w.sent, p)
	return nil
}

func (w *wire) payloads() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.sent...)
}

func TestEncodeDecode(t *testing.T) {
	n := Notification{Type: TypeUnassign, Token: 4, Detail: Detail{BookingID: "B1", Origin: "a"}, Time: time.Unix(10, 0).UTC()}
	payload, err := Encode(n)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"event":"dispatch-state-update"`)
	got, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, n, got)

	_, err = Decode([]byte(`{"event":"other","type":"refresh"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestForwardAndAcceptBetweenProcesses(t *testing.T) {
	a := New(nil, WithOrigin("node-a"))
	b := New(nil, WithOrigin("node-b"))
	w := &wire{fail: true}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		Forward(ctx, a, w.send, nil)
		close(done)
	}()
	require.Eventually(t, func() bool { return a.Subscribers() == 1 }, time.Second, time.Millisecond)

	a.Publish(TypeStatusUpdate, Detail{BookingID: "B0"})
	a.Publish(TypeAssignmentUpdate, Detail{BookingID: "B1"})
	a.Inject(Notification{Type: TypeRefresh, Detail: Detail{Origin: "node-c"}})
	require.Eventually(t, func() bool { return len(w.payloads()) == 1 }, time.Second, time.Millisecond)

	sub, unsub := b.Subscribe()
	defer unsub()
	ok, err := Accept(b, w.payloads()[0])
	require.NoError(t, err)
	assert.True(t, ok)
	select {
	case n := <-sub:
		assert.Equal(t, TypeAssignmentUpdate, n.Type)
		assert.Equal(t, "B1", n.Detail.BookingID)
		assert.Equal(t, "node-a", n.Detail.Origin)
		assert.Equal(t, uint64(1), n.Token)
	case <-time.After(time.Second):
		t.Fatal("remote notification not injected")
	}

	// own echo is ignored
	ok, err = Accept(a, w.payloads()[0])
	require.NoError(t, err)
	assert.False(t, ok)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not stop")
	}
}

type stubRelay struct{ closed bool }

func (s *stubRelay) Run(context.Context, *Bus) error { return nil }
func (s *stubRelay) Close() error                    { s.closed = true; return nil }

func TestNewRelaysClosesOnFailure(t *testing.T) {
	created := &stubRelay{}
	require.NoError(t, RegisterRelay("stub-ok", func(map[string]any) (Relay, error) { return created, nil }))
	require.NoError(t, RegisterRelay("stub-fail", func(map[string]any) (Relay, error) { return nil, errors.New("no broker") }))

	relays, err := NewRelays([]factory.ModuleConfig{{Type: "stub-ok"}})
	require.NoError(t, err)
	assert.Len(t, relays, 1)

	_, err = NewRelays([]factory.ModuleConfig{{Type: "stub-ok"}, {Type: "stub-fail"}})
	require.Error(t, err)
	assert.True(t, created.closed)
}
