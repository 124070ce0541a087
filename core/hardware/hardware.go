// Package hardware describes the capability exposed by the wheelchair's
// low-level motion and lighting controller. Implementations live in
// infra/hardware and must serialize their own access.
package hardware

import (
	"errors"
	"fmt"
)

// ErrHardware marks every failure returned by a Device call.
var ErrHardware = errors.New("hardware call failed")

// ErrClosed is returned when a Device is used after Close.
var ErrClosed = errors.New("device closed")

// Axis identifies an actuator axis.
type Axis uint8

const (
	// AxisTilt is the seat tilt ("Kantelung") actuator.
	AxisTilt Axis = iota
	AxisLegRest
	AxisBackRest
)

func (a Axis) String() string {
	switch a {
	case AxisTilt:
		return "tilt"
	case AxisLegRest:
		return "leg_rest"
	case AxisBackRest:
		return "back_rest"
	default:
		return fmt.Sprintf("axis(%d)", uint8(a))
	}
}

// Direction is the motion command for an actuator axis.
type Direction int8

const (
	DirectionNone Direction = 0
	DirectionUp   Direction = 1
	DirectionDown Direction = -1
)

func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return fmt.Sprintf("direction(%d)", int8(d))
	}
}

// Light identifies a lamp group on the chair.
type Light uint8

const (
	LightMain Light = iota
	LightHazard
	LightIndicatorLeft
	LightIndicatorRight
)

func (l Light) String() string {
	switch l {
	case LightMain:
		return "main"
	case LightHazard:
		return "hazard"
	case LightIndicatorLeft:
		return "indicator_left"
	case LightIndicatorRight:
		return "indicator_right"
	default:
		return fmt.Sprintf("light(%d)", uint8(l))
	}
}

// Button identifies a physical button emulated on the controller.
type Button uint8

const (
	ButtonGearUp Button = iota
	ButtonGearDown
	ButtonHorn
	ButtonMode
)

func (b Button) String() string {
	switch b {
	case ButtonGearUp:
		return "gear_up"
	case ButtonGearDown:
		return "gear_down"
	case ButtonHorn:
		return "horn"
	case ButtonMode:
		return "mode"
	default:
		return fmt.Sprintf("button(%d)", uint8(b))
	}
}

// SpeedReading is the controller's telemetry for the current motion.
type SpeedReading struct {
	// Setting is the selected speed level as reported by the controller.
	Setting int
	// TrueSpeed is the measured speed in km/h.
	TrueSpeed float32
	// Limited is set when the controller is throttling the speed.
	Limited bool
}

// Status is a coarse snapshot of the controller.
type Status struct {
	Connected bool
	Profile   int
	Battery   int
	Error     string
}

// Device is the capability offered by the native wheelchair controller.
type Device interface {
	Open() error
	Close() error
	SetXY(x, y int8) error
	SetAxis(axis Axis, dir Direction) error
	SetLight(light Light, on bool) error
	SetHorn(on bool) error
	SetButton(button Button, pressed bool) error
	Heartbeat() error
	Speed() (SpeedReading, error)
	State() (Status, error)
}

// CallError wraps a failed capability call with the operation name.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

// Unwrap exposes both ErrHardware and the underlying cause.
func (e *CallError) Unwrap() []error { return []error{ErrHardware, e.Err} }

// Fail builds a CallError for op.
func Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CallError{Op: op, Err: err}
}
