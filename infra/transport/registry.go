// Package transport selects the session transport named in the configuration.
package transport

import (
	"github.com/kilianp07/chairlink/core/factory"
	"github.com/kilianp07/chairlink/core/session"
	"github.com/kilianp07/chairlink/infra/logger"
	"github.com/kilianp07/chairlink/infra/mqtt"
	"github.com/kilianp07/chairlink/infra/transport/nats"
	"github.com/kilianp07/chairlink/infra/transport/tcp"
)

var registry = factory.NewRegistry[session.Transport]()

func init() {
	_ = registry.Register("tcp", func(conf map[string]any) (session.Transport, error) {
		var c tcp.Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return tcp.New(c, logger.New("transport_tcp")), nil
	})
	_ = registry.Register("mqtt", func(conf map[string]any) (session.Transport, error) {
		var c mqtt.TransportConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return mqtt.NewTransport(c, logger.New("transport_mqtt"))
	})
	_ = registry.Register("nats", func(conf map[string]any) (session.Transport, error) {
		var c nats.Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return nats.New(c, logger.New("transport_nats")), nil
	})
}

// New builds the transport described by cfg. An empty type selects tcp.
func New(cfg factory.ModuleConfig) (session.Transport, error) {
	if cfg.Type == "" {
		cfg.Type = "tcp"
	}
	return registry.Create(cfg)
}

// Names lists the available transports.
func Names() []string { return registry.Names() }
