package mqtt

import (
	"context"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/fleetdispatch/core/factory"
	"github.com/kilianp07/fleetdispatch/core/sharedstate"
	"github.com/kilianp07/fleetdispatch/infra/logger"
)

func init() {
	_ = sharedstate.RegisterRelay("mqtt", func(conf map[string]any) (sharedstate.Relay, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRelay(c)
	})
}

// Relay mirrors dispatch state notifications on an MQTT topic shared by
// every process of the fleet.
type Relay struct {
	client *PahoClient
	topic  string
	log    logger.Logger
}

// NewRelay connects to the broker described by cfg.
func NewRelay(cfg Config) (*Relay, error) {
	cli, err := NewPahoClient(cfg)
	if err != nil {
		return nil, err
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &Relay{client: cli, topic: topic, log: logger.New("mqtt_relay")}, nil
}

// Run subscribes to the shared topic and forwards local notifications until
// ctx is done.
func (r *Relay) Run(ctx context.Context, bus *sharedstate.Bus) error {
	err := r.client.Subscribe(r.topic, func(_ paho.Client, msg paho.Message) {
		if _, err := sharedstate.Accept(bus, msg.Payload()); err != nil {
			r.log.Warnf("drop message on %s: %v", msg.Topic(), err)
		}
	})
	if err != nil {
		return err
	}
	r.log.Infof("relaying %s on %s", sharedstate.EventName, r.topic)
	sharedstate.Forward(ctx, bus, func(ctx context.Context, payload []byte) error {
		return r.client.Publish(ctx, r.topic, payload)
	}, r.log)
	return nil
}

// Close disconnects from the broker.
func (r *Relay) Close() error {
	r.client.Disconnect()
	return nil
}
