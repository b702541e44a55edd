package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetdispatch/core/sharedstate"
)

type fakeTopic struct {
	mu      sync.Mutex
	written []kafkago.Message
	inbox   chan kafkago.Message
	closed  int
}

func newFakeTopic() *fakeTopic { return &fakeTopic{inbox: make(chan kafkago.Message, 8)} }

func (f *fakeTopic) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeTopic) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	select {
	case <-ctx.Done():
		return kafkago.Message{}, ctx.Err()
	case m, ok := <-f.inbox:
		if !ok {
			return kafkago.Message{}, errors.New("reader closed")
		}
		return m, nil
	}
}

func (f *fakeTopic) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeTopic) messages() []kafkago.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafkago.Message(nil), f.written...)
}

func TestRelayRoundTrip(t *testing.T) {
	topic := newFakeTopic()
	relay := newRelay(Config{Topic: "t"}, topic, topic)
	bus := sharedstate.New(nil, sharedstate.WithOrigin("node-a"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- relay.Run(ctx, bus) }()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, time.Millisecond)

	bus.Publish(sharedstate.TypeStatusUpdate, sharedstate.Detail{BookingID: "B1", Status: "completed"})
	require.Eventually(t, func() bool { return len(topic.messages()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "node-a", string(topic.messages()[0].Key))

	sub, unsub := bus.Subscribe()
	defer unsub()
	remote, err := sharedstate.Encode(sharedstate.Notification{Type: sharedstate.TypeRefresh, Detail: sharedstate.Detail{Origin: "node-b", Reason: "manual"}})
	require.NoError(t, err)
	topic.inbox <- topic.messages()[0]
	topic.inbox <- kafkago.Message{Value: []byte("{")}
	topic.inbox <- kafkago.Message{Value: remote}

	select {
	case n := <-sub:
		assert.Equal(t, sharedstate.TypeRefresh, n.Type)
		assert.Equal(t, "node-b", n.Detail.Origin)
	case <-time.After(time.Second):
		t.Fatal("remote notification not injected")
	}

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Len(t, topic.messages(), 1)
	require.NoError(t, relay.Close())
	assert.Equal(t, 2, topic.closed)
}

func TestRelayReportsReaderFailure(t *testing.T) {
	topic := newFakeTopic()
	relay := newRelay(Config{Topic: "t"}, topic, topic)
	close(topic.inbox)
	err := relay.Run(context.Background(), sharedstate.New(nil))
	assert.ErrorContains(t, err, "reader closed")
}

func TestNewRelayRequiresBrokers(t *testing.T) {
	_, err := NewRelay(Config{})
	assert.Error(t, err)

	r, err := NewRelay(Config{Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, r.cfg.Topic)
	assert.Contains(t, r.cfg.GroupID, "fleetdispatch-")
	_ = r.Close()
}
