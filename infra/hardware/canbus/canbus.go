// Package canbus drives the wheelchair controller over SocketCAN. Commands are
// sent as extended frames; the controller broadcasts speed and status
// telemetry which is cached for Speed and State.
package canbus

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/brutella/can"

	"github.com/kilianp07/chairlink/core/hardware"
	"github.com/kilianp07/chairlink/core/logger"
)

// ErrNoTelemetry is returned when no fresh telemetry frame is cached.
var ErrNoTelemetry = errors.New("no telemetry")

// Config of the CAN backend.
type Config struct {
	Interface string `json:"interface"`
	// Source is this node's address on the bus.
	Source uint8 `json:"source"`
	// StaleAfter bounds the age of cached telemetry.
	StaleAfter time.Duration `json:"stale_after"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Interface == "" {
		c.Interface = "can0"
	}
	if c.Source == 0 {
		c.Source = 0x01
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = time.Second
	}
}

type bus interface {
	Publish(can.Frame) error
	SubscribeFunc(fn can.HandlerFunc)
	ConnectAndPublish() error
	Disconnect() error
}

var openBus = func(ifname string) (bus, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", ifname, err)
	}
	conn, err := can.NewReadWriteCloserForInterface(iface)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ifname, err)
	}
	return can.NewBus(conn), nil
}

type reading[T any] struct {
	v  T
	at time.Time
}

// Device implements hardware.Device on a CAN bus.
type Device struct {
	cfg Config
	log logger.Logger
	now func() time.Time

	mu     sync.Mutex
	bus    bus
	seq    uint8
	done   chan struct{}
	speed  *reading[hardware.SpeedReading]
	status *reading[hardware.Status]
}

// New creates a closed device.
func New(cfg Config, log logger.Logger) *Device {
	cfg.SetDefaults()
	if log == nil {
		log = logger.Nop{}
	}
	return &Device{cfg: cfg, log: log, now: time.Now}
}

// Open connects to the bus and starts receiving telemetry.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bus != nil {
		return nil
	}
	b, err := openBus(d.cfg.Interface)
	if err != nil {
		return hardware.Fail("open", err)
	}
	b.SubscribeFunc(d.onFrame)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := b.ConnectAndPublish(); err != nil {
			d.log.Errorf("CAN bus %s stopped: %v", d.cfg.Interface, err)
		}
	}()
	d.bus, d.done = b, done
	d.log.Infof("CAN bus %s opened as node 0x%02x", d.cfg.Interface, d.cfg.Source)
	return nil
}

// Close disconnects and waits for the receive loop.
func (d *Device) Close() error {
	d.mu.Lock()
	b, done := d.bus, d.done
	d.bus, d.done = nil, nil
	d.speed, d.status = nil, nil
	d.mu.Unlock()
	if b == nil {
		return nil
	}
	err := b.Disconnect()
	<-done
	return hardware.Fail("close", err)
}

func (d *Device) onFrame(f can.Frame) {
	if f.ID&effFlag == 0 || class(f.ID) != classChair {
		return
	}
	data := f.Data[:min(int(f.Length), len(f.Data))]
	switch function(f.ID) {
	case fnSpeedTelemetry:
		if r, ok := decodeSpeed(data); ok {
			d.mu.Lock()
			d.speed = &reading[hardware.SpeedReading]{v: r, at: d.now()}
			d.mu.Unlock()
		}
	case fnStatusTelemetry:
		if st, ok := decodeStatus(data); ok {
			d.mu.Lock()
			d.status = &reading[hardware.Status]{v: st, at: d.now()}
			d.mu.Unlock()
		}
	}
}

func (d *Device) send(op string, f can.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bus == nil {
		return hardware.Fail(op, hardware.ErrClosed)
	}
	return hardware.Fail(op, d.bus.Publish(f))
}

func (d *Device) SetXY(x, y int8) error {
	return d.send("set_xy", command(fnDrive, d.cfg.Source, 0, byte(x), byte(y)))
}

func (d *Device) SetAxis(axis hardware.Axis, dir hardware.Direction) error {
	return d.send("set_axis", command(fnAxis, d.cfg.Source, uint8(axis), directionByte(dir)))
}

func (d *Device) SetLight(light hardware.Light, on bool) error {
	return d.send("set_light", command(fnLight, d.cfg.Source, uint8(light), boolByte(on)))
}

func (d *Device) SetHorn(on bool) error {
	return d.send("set_horn", command(fnHorn, d.cfg.Source, 0, boolByte(on)))
}

func (d *Device) SetButton(button hardware.Button, pressed bool) error {
	return d.send("set_button", command(fnButton, d.cfg.Source, uint8(button), boolByte(pressed)))
}

// Heartbeat sends a sequence-numbered keepalive the controller watchdog
// expects.
func (d *Device) Heartbeat() error {
	d.mu.Lock()
	d.seq++
	seq := d.seq
	d.mu.Unlock()
	return d.send("heartbeat", command(fnHeartbeat, d.cfg.Source, 0, seq))
}

func (d *Device) Speed() (hardware.SpeedReading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bus == nil {
		return hardware.SpeedReading{}, hardware.Fail("speed", hardware.ErrClosed)
	}
	if d.speed == nil || d.now().Sub(d.speed.at) > d.cfg.StaleAfter {
		return hardware.SpeedReading{}, hardware.Fail("speed", ErrNoTelemetry)
	}
	return d.speed.v, nil
}

func (d *Device) State() (hardware.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bus == nil {
		return hardware.Status{}, hardware.Fail("state", hardware.ErrClosed)
	}
	if d.status == nil || d.now().Sub(d.status.at) > d.cfg.StaleAfter {
		return hardware.Status{Connected: false}, nil
	}
	return d.status.v, nil
}

var _ hardware.Device = (*Device)(nil)
