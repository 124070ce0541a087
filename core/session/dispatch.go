package session

import (
	"fmt"

	"github.com/kilianp07/chairlink/core/device"
	"github.com/kilianp07/chairlink/core/hardware"
	"github.com/kilianp07/chairlink/core/wire"
)

var heartbeatPayload = wire.EncodeBool(true)

func encodeSpeed(r hardware.SpeedReading) []byte { return wire.EncodeFloat32(r.TrueSpeed) }

func snapshotMessages(s device.Snapshot) []Message {
	return []Message{
		{Topic: TopicLights, Payload: wire.EncodeBool(s.Lights)},
		{Topic: TopicWarn, Payload: wire.EncodeBool(s.Warn)},
		{Topic: TopicGear, Payload: wire.EncodeInt32(int32(s.Gear))},
	}
}

// handle dispatches one inbound message. Malformed payloads are logged and
// dropped; only channel errors are returned.
func (m *Manager) handle(sess *Session, msg Message) error {
	replies, err := m.dispatch(sess, msg)
	if recErr := m.sink.RecordInbound(msg.Topic, err == nil); recErr != nil {
		m.log.Debugf("record inbound: %v", recErr)
	}
	if err != nil {
		m.log.Warnf("drop %s: %v", msg.Topic, err)
		return nil
	}
	for _, r := range replies {
		if err := sess.ch.Pub.Publish(r.Topic, r.Payload); err != nil {
			return fmt.Errorf("%w: publish %s: %w", ErrChannel, r.Topic, err)
		}
	}
	return nil
}

func (m *Manager) dispatch(sess *Session, msg Message) ([]Message, error) {
	dev := m.deps.Device
	switch msg.Topic {
	case TopicHeartbeat:
		now := m.now()
		m.mu.Lock()
		sess.LastPeerHeartbeatAt = now
		m.mu.Unlock()
		return nil, nil
	case TopicJoystickPos:
		x, y, err := wire.DecodeFloat32Pair(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		dev.SetDirection(float64(x), float64(y))
		return nil, nil
	case TopicGear:
		up, err := wire.DecodeBool(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		gear := dev.SetGear(up)
		return []Message{{Topic: TopicGear, Payload: wire.EncodeInt32(int32(gear))}}, nil
	case TopicLights:
		// Every request toggles; the payload does not carry the target state.
		return []Message{{Topic: TopicLights, Payload: wire.EncodeBool(dev.ToggleLights())}}, nil
	case TopicWarn:
		return []Message{{Topic: TopicWarn, Payload: wire.EncodeBool(dev.ToggleWarn())}}, nil
	case TopicHorn:
		on, err := wire.DecodeBool(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		dev.SetHorn(on)
		return nil, nil
	case TopicTilt:
		active, err := wire.DecodeBool(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		return []Message{{Topic: TopicTilt, Payload: wire.EncodeBool(dev.SetTiltMode(active))}}, nil
	default:
		m.log.Debugf("ignoring topic %q", msg.Topic)
		return nil, nil
	}
}
