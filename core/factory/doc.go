// Package factory instantiates pluggable modules (metrics sinks, bus relays)
// from configuration. A module is described by a type name and a raw settings
// map; the registered factory decodes the settings into its own struct using
// json tags.
//
//	reg := factory.NewRegistry[Relay]()
//	_ = reg.Register("mqtt", func(conf map[string]any) (Relay, error) {
//	    var c mqtt.Config
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return mqtt.NewRelay(c)
//	})
//	r, err := reg.Create(factory.ModuleConfig{Type: "mqtt", Conf: raw})
package factory
