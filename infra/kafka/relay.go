// Package kafka relays dispatch state notifications over a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/kilianp07/fleetdispatch/core/factory"
	"github.com/kilianp07/fleetdispatch/core/sharedstate"
	"github.com/kilianp07/fleetdispatch/infra/logger"
)

// DefaultTopic carries notifications when Config.Topic is empty.
const DefaultTopic = "fleetdispatch.dispatch-state-update"

// Config describes the brokers and topic of the relay.
type Config struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
	// GroupID must differ per process so that every process sees every
	// notification. A random group is used when empty.
	GroupID      string        `json:"group_id"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

func init() {
	_ = sharedstate.RegisterRelay("kafka", func(conf map[string]any) (sharedstate.Relay, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRelay(c)
	})
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type reader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Relay publishes local notifications and injects the ones of other
// processes.
type Relay struct {
	cfg    Config
	writer writer
	reader reader
	log    logger.Logger
}

// NewRelay builds the writer and reader for cfg. No connection is made until
// Run.
func NewRelay(cfg Config) (*Relay, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "fleetdispatch-" + uuid.NewString()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafkago.LastOffset,
	})
	return newRelay(cfg, w, r), nil
}

func newRelay(cfg Config, w writer, r reader) *Relay {
	return &Relay{cfg: cfg, writer: w, reader: r, log: logger.New("kafka_relay")}
}

// Run forwards notifications both ways until ctx is done.
func (r *Relay) Run(parent context.Context, bus *sharedstate.Bus) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		sharedstate.Forward(ctx, bus, func(ctx context.Context, payload []byte) error {
			return r.writer.WriteMessages(ctx, kafkago.Message{
				Key:   []byte(bus.Origin()),
				Value: payload,
			})
		}, r.log)
	}()
	r.log.Infof("relaying %s on %s", sharedstate.EventName, r.cfg.Topic)

	var err error
	for {
		var msg kafkago.Message
		msg, err = r.reader.ReadMessage(ctx)
		if err != nil {
			break
		}
		if _, aerr := sharedstate.Accept(bus, msg.Value); aerr != nil {
			r.log.Warnf("drop message at offset %d: %v", msg.Offset, aerr)
		}
	}
	cancel()
	<-done
	if parent.Err() != nil {
		return nil
	}
	return fmt.Errorf("kafka read: %w", err)
}

// Close releases the writer and reader.
func (r *Relay) Close() error {
	return errors.Join(r.writer.Close(), r.reader.Close())
}
