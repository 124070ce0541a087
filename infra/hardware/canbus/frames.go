package canbus

import (
	"github.com/brutella/can"

	"github.com/kilianp07/chairlink/core/hardware"
	"github.com/kilianp07/chairlink/core/wire"
)

// Extended identifiers are laid out as
//
//	bits 26-28 priority | 21-25 class | 13-20 function | 5-12 source | 0-4 instance
//
// with bit 31 flagging the extended frame format.
const effFlag uint32 = 1 << 31

const (
	priorityControl   = 0x02
	priorityTelemetry = 0x04

	classChair = 0x0C

	fnDrive     = 0x20 // [x, y] as two's complement bytes
	fnAxis      = 0x21 // instance = axis, [direction]
	fnLight     = 0x22 // instance = light, [on]
	fnHorn      = 0x23 // [on]
	fnButton    = 0x24 // instance = button, [pressed]
	fnHeartbeat = 0x25 // [sequence]

	fnSpeedTelemetry  = 0x50 // [setting, speed f32 BE x4, limited]
	fnStatusTelemetry = 0x51 // [connected, profile, battery, error code]
)

func makeID(priority, function, source, instance uint32) uint32 {
	id := uint32(0)
	id |= (priority & 0x07) << 26
	id |= (classChair & 0x1F) << 21
	id |= (function & 0xFF) << 13
	id |= (source & 0xFF) << 5
	id |= instance & 0x1F
	return id | effFlag
}

func class(id uint32) uint32    { return (id >> 21) & 0x1F }
func function(id uint32) uint32 { return (id >> 13) & 0xFF }

func command(function uint32, source, instance uint8, data ...byte) can.Frame {
	f := can.Frame{
		ID:     makeID(priorityControl, function, uint32(source), uint32(instance)),
		Length: uint8(len(data)),
	}
	copy(f.Data[:], data)
	return f
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func directionByte(d hardware.Direction) byte {
	switch d {
	case hardware.DirectionUp:
		return 1
	case hardware.DirectionDown:
		return 2
	default:
		return 0
	}
}

// decodeSpeed parses a speed telemetry payload.
func decodeSpeed(data []byte) (hardware.SpeedReading, bool) {
	if len(data) < 6 {
		return hardware.SpeedReading{}, false
	}
	v, err := wire.DecodeFloat32(data[1:5])
	if err != nil {
		return hardware.SpeedReading{}, false
	}
	return hardware.SpeedReading{Setting: int(data[0]), TrueSpeed: v, Limited: data[5] != 0}, true
}

// statusErrors maps controller error codes to text.
var statusErrors = map[byte]string{
	0x01: "joystick fault",
	0x02: "motor fault",
	0x03: "brake fault",
	0x04: "low battery",
	0x05: "watchdog expired",
}

func decodeStatus(data []byte) (hardware.Status, bool) {
	if len(data) < 4 {
		return hardware.Status{}, false
	}
	st := hardware.Status{Connected: data[0] != 0, Profile: int(data[1]), Battery: int(data[2])}
	if code := data[3]; code != 0 {
		if msg, ok := statusErrors[code]; ok {
			st.Error = msg
		} else {
			st.Error = "controller error"
		}
	}
	return st, true
}
