// Package device models the wheelchair's toggled attributes and maps joystick
// input onto either drive or seat-tilt commands.
//
// State is written only by the session loop. Hardware failures are logged and
// counted but never roll back the in-memory state; the next equivalent command
// retries the write.
package device

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/chairlink/core/hardware"
	"github.com/kilianp07/chairlink/core/logger"
	"github.com/kilianp07/chairlink/core/metrics"
)

// Snapshot is a copy of the device state.
type Snapshot struct {
	Gear          int
	Lights        bool
	Warn          bool
	Horn          bool
	TiltMode      bool
	TiltDirection hardware.Direction
	X, Y          int8
}

// State is the single in-memory model of the chair.
type State struct {
	dev   hardware.Device
	cfg   Config
	log   logger.Logger
	sink  metrics.MetricsSink
	sleep func(time.Duration)

	mu       sync.RWMutex
	gear     int
	lights   bool
	warn     bool
	horn     bool
	tiltMode bool
	tiltDir  hardware.Direction
	x, y     int8
	// driveParked is set once (0,0) reached the hardware in tilt mode.
	driveParked bool
	// tiltParked is set once NONE reached the hardware in drive mode.
	tiltParked bool

	speedFailing atomic.Bool
}

// New creates the device state for an opened hardware device.
func New(dev hardware.Device, cfg Config, log logger.Logger, sink metrics.MetricsSink) *State {
	cfg.SetDefaults()
	if log == nil {
		log = logger.Nop{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &State{
		dev:   dev,
		cfg:   cfg,
		log:   log,
		sink:  sink,
		sleep: time.Sleep,
		gear:  cfg.InitialGear,
	}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Gear:          s.gear,
		Lights:        s.lights,
		Warn:          s.warn,
		Horn:          s.horn,
		TiltMode:      s.tiltMode,
		TiltDirection: s.tiltDir,
		X:             s.x,
		Y:             s.y,
	}
}

// scale maps a normalised input onto the hardware range, applying the
// deadzone.
func (s *State) scale(v float64) int8 {
	if math.IsNaN(v) {
		return 0
	}
	scaled := math.Round(v * s.cfg.Scale)
	if scaled > AxisLimit {
		scaled = AxisLimit
	}
	if scaled < -AxisLimit {
		scaled = -AxisLimit
	}
	if math.Abs(scaled) < float64(s.cfg.Deadzone) {
		return 0
	}
	return int8(scaled)
}

func (s *State) tiltDirection(y int8) hardware.Direction {
	switch {
	case int(y) >= s.cfg.TiltThreshold:
		return hardware.DirectionUp
	case int(y) <= -s.cfg.TiltThreshold:
		return hardware.DirectionDown
	default:
		return hardware.DirectionNone
	}
}

// SetDirection applies a joystick deflection. In drive mode every call is
// forwarded so the controller's own timeout stops the chair if the link dies.
// In tilt mode the actuator is only commanded when the direction changes.
func (s *State) SetDirection(x, y float64) {
	sx, sy := s.scale(x), s.scale(y)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tiltMode {
		if !s.driveParked {
			if s.call("set_xy", s.dev.SetXY(0, 0)) == nil {
				s.driveParked = true
			}
		}
		s.x, s.y = 0, 0
		dir := s.tiltDirection(sy)
		if dir == s.tiltDir {
			return
		}
		if s.call("set_axis", s.dev.SetAxis(hardware.AxisTilt, dir)) == nil {
			s.tiltDir = dir
		}
		return
	}

	if !s.tiltParked {
		if s.call("set_axis", s.dev.SetAxis(hardware.AxisTilt, hardware.DirectionNone)) == nil {
			s.tiltParked = true
			s.tiltDir = hardware.DirectionNone
		}
	}
	s.x, s.y = sx, sy
	_ = s.call("set_xy", s.dev.SetXY(sx, sy))
}

// SetTiltMode switches between drive and tilt. The sub-system being left is
// stopped before the flag flips. It returns the resulting mode.
func (s *State) SetTiltMode(active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active == s.tiltMode {
		return s.tiltMode
	}
	if active {
		s.x, s.y = 0, 0
		s.driveParked = s.call("set_xy", s.dev.SetXY(0, 0)) == nil
	} else {
		s.tiltParked = s.call("set_axis", s.dev.SetAxis(hardware.AxisTilt, hardware.DirectionNone)) == nil
		s.tiltDir = hardware.DirectionNone
	}
	s.tiltMode = active
	s.log.Infof("tilt mode %t", active)
	return s.tiltMode
}

// ToggleLights flips the main lights and returns the new value.
func (s *State) ToggleLights() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = !s.lights
	_ = s.call("set_light", s.dev.SetLight(hardware.LightMain, s.lights))
	return s.lights
}

// ToggleWarn flips the hazard flasher and returns the new value. Switching it
// on turns both indicators off.
func (s *State) ToggleWarn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warn = !s.warn
	if s.warn {
		_ = s.call("set_light", s.dev.SetLight(hardware.LightIndicatorLeft, false))
		_ = s.call("set_light", s.dev.SetLight(hardware.LightIndicatorRight, false))
	}
	_ = s.call("set_light", s.dev.SetLight(hardware.LightHazard, s.warn))
	return s.warn
}

// SetGear steps the gear up or down within [MinGear, MaxGear] and returns
// the resulting gear. The controller only knows gear buttons, so each step is
// a press and release.
func (s *State) SetGear(increase bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, button := s.gear-1, hardware.ButtonGearDown
	if increase {
		next, button = s.gear+1, hardware.ButtonGearUp
	}
	if next < MinGear || next > MaxGear {
		return s.gear
	}
	s.gear = next
	if err := s.call("set_button", s.dev.SetButton(button, true)); err != nil {
		return s.gear
	}
	s.sleep(s.cfg.ButtonPulse)
	_ = s.call("set_button", s.dev.SetButton(button, false))
	return s.gear
}

// SetHorn switches the horn on or off.
func (s *State) SetHorn(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.horn = on
	_ = s.call("set_horn", s.dev.SetHorn(on))
}

// Heartbeat forwards a keep-alive to the controller.
func (s *State) Heartbeat() error {
	return s.call("heartbeat", s.dev.Heartbeat())
}

// Speed reads the current speed telemetry. It is polled every loop
// iteration, so a failing read is logged and counted once until it recovers.
func (s *State) Speed() (hardware.SpeedReading, error) {
	r, err := s.dev.Speed()
	if err != nil {
		if s.speedFailing.CompareAndSwap(false, true) {
			_ = s.call("speed", err)
		}
		return r, err
	}
	if s.speedFailing.CompareAndSwap(true, false) {
		s.log.Infof("hardware speed readings recovered")
	}
	return r, nil
}

// Stop zeroes the drive output and neutralises the tilt axis.
func (s *State) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x, s.y = 0, 0
	s.tiltDir = hardware.DirectionNone
	errXY := s.call("set_xy", s.dev.SetXY(0, 0))
	errAxis := s.call("set_axis", s.dev.SetAxis(hardware.AxisTilt, hardware.DirectionNone))
	s.driveParked = s.tiltMode && errXY == nil
	s.tiltParked = !s.tiltMode && errAxis == nil
	return errors.Join(errXY, errAxis)
}

// call logs and counts a failed hardware call and returns err unchanged.
func (s *State) call(op string, err error) error {
	if err == nil {
		return nil
	}
	s.log.Warnf("hardware %s: %v", op, err)
	if rerr := s.sink.RecordHardwareFailure(op); rerr != nil {
		s.log.Debugf("record hardware failure: %v", rerr)
	}
	return err
}
