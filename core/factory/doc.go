// Package factory provides a small generic registry used to instantiate modules
// from configuration. Modules are defined by a type string and a map of raw
// settings. Factories decode the settings into typed structs and return the
// concrete implementation.
//
// Example usage:
//
//	reg := factory.NewRegistry[hardware.Device]()
//	reg.Register("sim", func(conf map[string]any) (hardware.Device, error) {
//	    var c struct{ MaxSpeed float32 `json:"max_speed"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return sim.New(sim.Config{MaxSpeed: c.MaxSpeed}), nil
//	})
//	dev, err := reg.Create(factory.ModuleConfig{Type: "sim"})
package factory
