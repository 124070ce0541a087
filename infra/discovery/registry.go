package discovery

import (
	"github.com/kilianp07/chairlink/core/factory"
	"github.com/kilianp07/chairlink/core/session"
	"github.com/kilianp07/chairlink/infra/logger"
	"github.com/kilianp07/chairlink/infra/mqtt"
)

var (
	resolvers  = factory.NewRegistry[session.Resolver]()
	announcers = factory.NewRegistry[session.Announcer]()
)

func init() {
	_ = resolvers.Register("static", func(conf map[string]any) (session.Resolver, error) {
		var s Static
		err := factory.Decode(conf, &s)
		return s, err
	})
	_ = resolvers.Register("file", func(conf map[string]any) (session.Resolver, error) {
		var f FileResolver
		err := factory.Decode(conf, &f)
		return f, err
	})
	_ = resolvers.Register("mqtt", func(conf map[string]any) (session.Resolver, error) {
		var c mqtt.ResolverConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return mqtt.NewResolver(c, logger.New("discovery_mqtt"))
	})

	_ = announcers.Register("none", func(map[string]any) (session.Announcer, error) {
		return session.NopAnnouncer{}, nil
	})
	_ = announcers.Register("file", func(conf map[string]any) (session.Announcer, error) {
		var c AnnouncerConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewFileAnnouncer(c, logger.New("announcer")), nil
	})
}

// NewResolver builds the resolver named in cfg. An empty type selects static.
func NewResolver(cfg factory.ModuleConfig) (session.Resolver, error) {
	if cfg.Type == "" {
		cfg.Type = "static"
	}
	return resolvers.Create(cfg)
}

// NewAnnouncer builds the announcer named in cfg. An empty type selects none.
func NewAnnouncer(cfg factory.ModuleConfig) (session.Announcer, error) {
	if cfg.Type == "" {
		cfg.Type = "none"
	}
	return announcers.Create(cfg)
}
