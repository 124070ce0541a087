// Package fakepeer plays the headset side of a tcp session: it connects to
// the chair's publisher, publishes on the conventional port above it, sends
// READY until the chair answers and keeps the session alive with heartbeats.
package fakepeer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kilianp07/chairlink/core/logger"
	"github.com/kilianp07/chairlink/core/session"
	"github.com/kilianp07/chairlink/core/wire"
	"github.com/kilianp07/chairlink/infra/transport/tcp"
)

// ChairTopics are the topics the chair publishes.
var ChairTopics = []string{
	session.TopicHeartbeat,
	session.TopicLights,
	session.TopicWarn,
	session.TopicGear,
	session.TopicTilt,
	session.TopicSpeed,
	session.TopicJoystickSettings,
}

// Config of a fake peer.
type Config struct {
	// Chair is the host:port of the chair's publisher.
	Chair string
	// ListenHost is where the peer publisher binds.
	ListenHost        string
	PortOffset        int
	HeartbeatInterval time.Duration
	ReadyInterval     time.Duration
}

func (c *Config) setDefaults() {
	if c.ListenHost == "" {
		c.ListenHost = "0.0.0.0"
	}
	if c.PortOffset == 0 {
		c.PortOffset = 1
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 2 * time.Second
	}
	if c.ReadyInterval == 0 {
		c.ReadyInterval = 200 * time.Millisecond
	}
}

// Peer is a connected fake headset.
type Peer struct {
	cfg Config
	log logger.Logger
	pub *tcp.Publisher
	sub *tcp.Subscriber
}

// Start opens the peer's publisher and subscribes to the chair.
func Start(cfg Config, log logger.Logger) (*Peer, error) {
	cfg.setDefaults()
	if log == nil {
		log = logger.Nop{}
	}
	_, portStr, err := net.SplitHostPort(cfg.Chair)
	if err != nil {
		return nil, fmt.Errorf("chair endpoint %q: %w", cfg.Chair, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("chair port %q: %w", portStr, err)
	}
	pub, err := tcp.Listen(net.JoinHostPort(cfg.ListenHost, strconv.Itoa(port+cfg.PortOffset)), 64, log)
	if err != nil {
		return nil, err
	}
	sub := tcp.Dial(cfg.Chair, 2*time.Second, 100*time.Millisecond, log)
	if err := sub.Subscribe(ChairTopics...); err != nil {
		_ = pub.Close()
		_ = sub.Close()
		return nil, err
	}
	return &Peer{cfg: cfg, log: log, pub: pub, sub: sub}, nil
}

// Handshake publishes READY until the chair's first message arrives, which is
// returned. READY messages sent before the chair subscribed are lost, so a
// single READY is not enough.
func (p *Peer) Handshake(ctx context.Context) (session.Message, error) {
	for {
		if err := p.pub.Publish(session.TopicReady, nil); err != nil {
			return session.Message{}, err
		}
		m, ok, err := p.sub.Poll(p.cfg.ReadyInterval)
		if err != nil {
			return session.Message{}, err
		}
		if ok {
			p.log.Infof("chair answered with %s", m.Topic)
			return m, nil
		}
		if ctx.Err() != nil {
			return session.Message{}, ctx.Err()
		}
	}
}

// Heartbeats sends heartbeats until ctx is cancelled.
func (p *Peer) Heartbeats(ctx context.Context) {
	t := time.NewTicker(p.cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		if err := p.pub.Publish(session.TopicHeartbeat, wire.EncodeBool(true)); err != nil {
			p.log.Warnf("heartbeat: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Send publishes a raw message to the chair.
func (p *Peer) Send(topic string, payload []byte) error { return p.pub.Publish(topic, payload) }

// Joystick sends a normalized joystick position.
func (p *Peer) Joystick(x, y float32) error {
	return p.Send(session.TopicJoystickPos, wire.EncodeFloat32Pair(x, y))
}

// Receive waits up to timeout for a message from the chair.
func (p *Peer) Receive(timeout time.Duration) (session.Message, bool, error) {
	return p.sub.Poll(timeout)
}

// ReceiveTopic waits for the next message on topic, skipping others.
func (p *Peer) ReceiveTopic(topic string, timeout time.Duration) (session.Message, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return session.Message{}, false, nil
		}
		m, ok, err := p.sub.Poll(left)
		if err != nil || !ok {
			return m, ok, err
		}
		if m.Topic == topic {
			return m, true, nil
		}
	}
}

// Close releases both channels.
func (p *Peer) Close() error {
	perr := p.pub.Close()
	serr := p.sub.Close()
	if perr != nil {
		return perr
	}
	return serr
}

// Describe renders a chair message for humans.
func Describe(m session.Message) string {
	switch m.Topic {
	case session.TopicLights, session.TopicWarn, session.TopicTilt, session.TopicHeartbeat:
		if v, err := wire.DecodeBool(m.Payload); err == nil {
			return fmt.Sprintf("%s=%t", m.Topic, v)
		}
	case session.TopicGear:
		if v, err := wire.DecodeInt32(m.Payload); err == nil {
			return fmt.Sprintf("%s=%d", m.Topic, v)
		}
	case session.TopicSpeed:
		if v, err := wire.DecodeFloat32(m.Payload); err == nil {
			return fmt.Sprintf("%s=%.2f", m.Topic, v)
		}
	case session.TopicJoystickSettings:
		return fmt.Sprintf("%s (%d bytes)", m.Topic, len(m.Payload))
	}
	return fmt.Sprintf("%s %x", m.Topic, m.Payload)
}
