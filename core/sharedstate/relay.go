package sharedstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/fleetdispatch/core/factory"
	"github.com/kilianp07/fleetdispatch/core/logger"
)

// Relay forwards notifications between processes sharing one store. Relayed
// notifications stay invalidation markers; a relay never carries state.
type Relay interface {
	// Run forwards local notifications and injects remote ones until ctx is
	// done.
	Run(ctx context.Context, bus *Bus) error
	Close() error
}

var relayRegistry = factory.NewRegistry[Relay]()

// RegisterRelay adds a relay factory identified by name.
func RegisterRelay(name string, f factory.Factory[Relay]) error {
	return relayRegistry.Register(name, f)
}

// NewRelays creates the configured relays. Relays created before a failure
// are closed.
func NewRelays(cfgs []factory.ModuleConfig) ([]Relay, error) {
	out := make([]Relay, 0, len(cfgs))
	for _, c := range cfgs {
		r, err := relayRegistry.Create(c)
		if err != nil {
			for _, done := range out {
				_ = done.Close()
			}
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Encode serialises a notification for the wire.
func Encode(n Notification) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Notification
	}{EventName, n})
}

// Decode parses a payload produced by Encode.
func Decode(payload []byte) (Notification, error) {
	var msg struct {
		Event string `json:"event"`
		Notification
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if msg.Event != "" && msg.Event != EventName {
		return Notification{}, fmt.Errorf("unexpected event %q", msg.Event)
	}
	return msg.Notification, nil
}

// Forward sends every notification published by this process through send
// until ctx is done. Notifications injected from other processes are not
// sent back. Send errors are logged and do not stop forwarding.
func Forward(ctx context.Context, bus *Bus, send func(context.Context, []byte) error, log logger.Logger) {
	log = logger.OrNop(log)
	ch, cancel := bus.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			if n.Detail.Origin != bus.Origin() {
				continue
			}
			payload, err := Encode(n)
			if err != nil {
				log.Errorw("encode notification", err, nil)
				continue
			}
			if err := send(ctx, payload); err != nil {
				log.Errorw("relay notification", err, map[string]any{"type": string(n.Type), "token": n.Token})
			}
		}
	}
}

// Accept injects a payload received from another process. Payloads carrying
// the local origin are ignored. The boolean reports whether the payload was
// injected.
func Accept(bus *Bus, payload []byte) (bool, error) {
	n, err := Decode(payload)
	if err != nil {
		return false, err
	}
	if n.Detail.Origin == bus.Origin() {
		return false, nil
	}
	bus.Inject(n)
	return true, nil
}
