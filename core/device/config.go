package device

import (
	"fmt"
	"time"
)

const (
	MinGear = 1
	MaxGear = 5
	// AxisLimit bounds the drive output in hardware units.
	AxisLimit = 127
)

// Config holds the tuning of the joystick mapping and heartbeat keeper.
type Config struct {
	// Scale converts normalised joystick input into hardware units.
	Scale float64 `json:"scale"`
	// Deadzone zeroes scaled values whose magnitude is below it.
	Deadzone int `json:"deadzone"`
	// TiltThreshold is the scaled y deflection that starts the tilt actuator.
	TiltThreshold int `json:"tilt_threshold"`
	// InitialGear is the gear assumed at start-up.
	InitialGear int `json:"initial_gear"`
	// ButtonPulse is the time a gear button is held down.
	ButtonPulse time.Duration `json:"button_pulse"`
	// HeartbeatInterval paces the background hardware heartbeat keeper.
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
}

// SetDefaults applies the stock mapping.
func (c *Config) SetDefaults() {
	if c.Scale == 0 {
		c.Scale = 100
	}
	if c.Deadzone == 0 {
		c.Deadzone = 15
	}
	if c.TiltThreshold == 0 {
		c.TiltThreshold = 50
	}
	if c.InitialGear == 0 {
		c.InitialGear = MinGear
	}
	if c.ButtonPulse == 0 {
		c.ButtonPulse = 50 * time.Millisecond
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 200 * time.Millisecond
	}
}

// Validate checks the mapping is usable.
func (c Config) Validate() error {
	if c.Scale <= 0 {
		return fmt.Errorf("scale must be positive")
	}
	if c.Deadzone < 0 || c.Deadzone > AxisLimit {
		return fmt.Errorf("deadzone %d out of range", c.Deadzone)
	}
	if c.TiltThreshold <= 0 || c.TiltThreshold > AxisLimit {
		return fmt.Errorf("tilt_threshold %d out of range", c.TiltThreshold)
	}
	if c.InitialGear < MinGear || c.InitialGear > MaxGear {
		return fmt.Errorf("initial_gear %d out of range [%d,%d]", c.InitialGear, MinGear, MaxGear)
	}
	if c.ButtonPulse < 0 {
		return fmt.Errorf("button_pulse must not be negative")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	return nil
}
