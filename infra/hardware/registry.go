// Package hardware selects the wheelchair controller backend named in the
// configuration.
package hardware

import (
	"github.com/kilianp07/chairlink/core/factory"
	corehw "github.com/kilianp07/chairlink/core/hardware"
	"github.com/kilianp07/chairlink/infra/hardware/canbus"
	"github.com/kilianp07/chairlink/infra/hardware/sim"
	"github.com/kilianp07/chairlink/infra/logger"
)

var registry = factory.NewRegistry[corehw.Device]()

func init() {
	_ = registry.Register("sim", func(conf map[string]any) (corehw.Device, error) {
		var c sim.Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return sim.New(c), nil
	})
	_ = registry.Register("canbus", func(conf map[string]any) (corehw.Device, error) {
		var c canbus.Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return canbus.New(c, logger.New("canbus")), nil
	})
}

// New builds the backend described by cfg. An empty type selects sim.
func New(cfg factory.ModuleConfig) (corehw.Device, error) {
	if cfg.Type == "" {
		cfg.Type = "sim"
	}
	return registry.Create(cfg)
}
