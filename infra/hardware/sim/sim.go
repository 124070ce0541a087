// Package sim provides a simulated wheelchair controller. It integrates drive
// commands into a speed estimate, records every call and supports failure
// injection, which makes it the backend for dry runs and tests.
package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/chairlink/core/hardware"
)

// Call is one recorded capability invocation.
type Call struct {
	Op   string
	Args []any
	At   time.Time
}

func (c Call) String() string { return fmt.Sprintf("%s%v", c.Op, c.Args) }

// Config tunes the simulation.
type Config struct {
	// MaxSpeed is the speed in km/h reached at full deflection in the top gear.
	MaxSpeed float32 `json:"max_speed"`
	// Gears is the number of speed levels the controller exposes.
	Gears int `json:"gears"`
	// WatchdogTimeout stops the chair when no heartbeat arrives in time.
	// Zero disables the watchdog.
	WatchdogTimeout time.Duration `json:"watchdog_timeout"`
}

// Device is a simulated hardware.Device. It is safe for concurrent use.
type Device struct {
	cfg Config
	now func() time.Time

	mu            sync.Mutex
	open          bool
	x, y          int8
	axes          map[hardware.Axis]hardware.Direction
	lights        map[hardware.Light]bool
	horn          bool
	buttons       map[hardware.Button]bool
	setting       int
	lastHeartbeat time.Time
	calls         []Call
	failures      map[string]error
}

// New creates a closed simulated device.
func New(cfg Config) *Device {
	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = 6
	}
	if cfg.Gears <= 0 {
		cfg.Gears = 5
	}
	return &Device{
		cfg:      cfg,
		now:      time.Now,
		axes:     make(map[hardware.Axis]hardware.Direction),
		lights:   make(map[hardware.Light]bool),
		buttons:  make(map[hardware.Button]bool),
		setting:  1,
		failures: make(map[string]error),
	}
}

// FailOn makes every subsequent call to op return err. A nil err clears it.
func (d *Device) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failures, op)
		return
	}
	d.failures[op] = err
}

// Calls returns a copy of the recorded calls.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallsTo returns the recorded calls for a single operation.
func (d *Device) CallsTo(op string) []Call {
	var out []Call
	for _, c := range d.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the call log.
func (d *Device) Reset() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}

// XY returns the drive output currently applied.
func (d *Device) XY() (int8, int8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.x, d.y
}

// Axis returns the direction currently applied to an axis.
func (d *Device) Axis(a hardware.Axis) hardware.Direction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.axes[a]
}

// Light reports whether a lamp group is lit.
func (d *Device) Light(l hardware.Light) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lights[l]
}

// Horn reports whether the horn sounds.
func (d *Device) Horn() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.horn
}

// record must be called with mu held.
func (d *Device) record(op string, args ...any) error {
	d.calls = append(d.calls, Call{Op: op, Args: args, At: d.now()})
	if err, ok := d.failures[op]; ok {
		return hardware.Fail(op, err)
	}
	if op != "open" && !d.open {
		return hardware.Fail(op, hardware.ErrClosed)
	}
	return nil
}

func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("open"); err != nil {
		return err
	}
	d.open = true
	d.lastHeartbeat = d.now()
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("close"); err != nil {
		return err
	}
	d.open = false
	d.x, d.y = 0, 0
	return nil
}

func (d *Device) SetXY(x, y int8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("set_xy", x, y); err != nil {
		return err
	}
	d.x, d.y = x, y
	return nil
}

func (d *Device) SetAxis(axis hardware.Axis, dir hardware.Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("set_axis", axis, dir); err != nil {
		return err
	}
	d.axes[axis] = dir
	return nil
}

func (d *Device) SetLight(light hardware.Light, on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("set_light", light, on); err != nil {
		return err
	}
	d.lights[light] = on
	return nil
}

func (d *Device) SetHorn(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("set_horn", on); err != nil {
		return err
	}
	d.horn = on
	return nil
}

// SetButton emulates a physical button. Gear buttons change the speed
// setting on release, like the real controller.
func (d *Device) SetButton(button hardware.Button, pressed bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("set_button", button, pressed); err != nil {
		return err
	}
	wasPressed := d.buttons[button]
	d.buttons[button] = pressed
	if wasPressed && !pressed {
		switch button {
		case hardware.ButtonGearUp:
			if d.setting < d.cfg.Gears {
				d.setting++
			}
		case hardware.ButtonGearDown:
			if d.setting > 1 {
				d.setting--
			}
		}
	}
	return nil
}

func (d *Device) Heartbeat() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("heartbeat"); err != nil {
		return err
	}
	d.lastHeartbeat = d.now()
	return nil
}

// ErrWatchdog is reported by Speed when the simulated safety timeout fired.
var ErrWatchdog = errors.New("watchdog expired")

// Speed derives the speed from the applied drive output and gear. Reads are
// not recorded as calls since the session polls them constantly.
func (d *Device) Speed() (hardware.SpeedReading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failures["speed"]; ok {
		return hardware.SpeedReading{}, hardware.Fail("speed", err)
	}
	if !d.open {
		return hardware.SpeedReading{}, hardware.Fail("speed", hardware.ErrClosed)
	}
	if d.cfg.WatchdogTimeout > 0 && d.now().Sub(d.lastHeartbeat) > d.cfg.WatchdogTimeout {
		d.x, d.y = 0, 0
	}
	mag := math.Hypot(float64(d.x), float64(d.y)) / 127
	if mag > 1 {
		mag = 1
	}
	speed := float32(mag) * d.cfg.MaxSpeed * float32(d.setting) / float32(d.cfg.Gears)
	return hardware.SpeedReading{
		Setting:   d.setting,
		TrueSpeed: speed,
		Limited:   d.axes[hardware.AxisTilt] != hardware.DirectionNone,
	}, nil
}

func (d *Device) State() (hardware.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failures["state"]; ok {
		return hardware.Status{}, hardware.Fail("state", err)
	}
	st := hardware.Status{Connected: d.open, Profile: d.setting, Battery: 100}
	if d.cfg.WatchdogTimeout > 0 && d.open && d.now().Sub(d.lastHeartbeat) > d.cfg.WatchdogTimeout {
		st.Error = ErrWatchdog.Error()
	}
	return st, nil
}

var _ hardware.Device = (*Device)(nil)
