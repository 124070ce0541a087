// Package session runs the peer session state machine: discovery, channel
// binding, READY handshake, steady-state exchange and recovery.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/chairlink/core/device"
	"github.com/kilianp07/chairlink/core/hardware"
	"github.com/kilianp07/chairlink/core/logger"
	"github.com/kilianp07/chairlink/core/metrics"
	"github.com/kilianp07/chairlink/internal/eventbus"
)

// Controller is the device model driven by inbound messages.
type Controller interface {
	Snapshot() device.Snapshot
	SetDirection(x, y float64)
	SetTiltMode(active bool) bool
	ToggleLights() bool
	ToggleWarn() bool
	SetGear(increase bool) int
	SetHorn(on bool)
	Heartbeat() error
	Speed() (hardware.SpeedReading, error)
}

// ConfigSource yields configuration blobs to forward to the peer. Ack is
// called only after the blob was published.
type ConfigSource interface {
	Pending() ([]byte, time.Time, error)
	Ack(version time.Time)
}

// Deps groups the collaborators of a Manager.
type Deps struct {
	Resolver  Resolver
	Transport Transport
	Announcer Announcer
	Device    Controller
	// ConfigPush is optional.
	ConfigPush ConfigSource
	Log        logger.Logger
	Sink       metrics.MetricsSink
	// Bus receives every state transition when set.
	Bus *eventbus.TypedBus[Transition]
}

// Manager owns the session lifecycle. Only one session exists at a time and a
// new attempt starts after the previous one released its channels.
type Manager struct {
	cfg  Config
	deps Deps
	log  logger.Logger
	sink metrics.MetricsSink
	now  func() time.Time

	mu       sync.RWMutex
	current  *Session
	attempts uint64
}

// NewManager validates the configuration and collaborators.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	if deps.Resolver == nil || deps.Transport == nil || deps.Device == nil {
		return nil, fmt.Errorf("resolver, transport and device are required")
	}
	if deps.Announcer == nil {
		deps.Announcer = NopAnnouncer{}
	}
	if deps.Log == nil {
		deps.Log = logger.Nop{}
	}
	if deps.Sink == nil {
		deps.Sink = metrics.NopSink{}
	}
	return &Manager{cfg: cfg, deps: deps, log: deps.Log, sink: deps.Sink, now: time.Now}, nil
}

// State returns the state of the current session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return StateIdle
	}
	return m.current.State
}

// Current returns a copy of the current session, if any.
func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false
	}
	s := *m.current
	s.ch = nil
	return s, true
}

// Run executes session attempts until ctx is cancelled. Every failure is
// recovered by releasing the channels, backing off and discovering again.
func (m *Manager) Run(ctx context.Context) error {
	for {
		sess := m.newSession()
		err := m.attempt(ctx, sess)
		m.release(sess)
		if ctx.Err() != nil {
			m.setState(sess, StateIdle, nil)
			return nil
		}
		m.setState(sess, StateFailed, err)
		m.log.Warnf("session %d failed: %v", sess.Attempt, err)
		if !sleepCtx(ctx, m.cfg.RetryBackoff) {
			m.setState(sess, StateIdle, nil)
			return nil
		}
	}
}

func (m *Manager) newSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	s := &Session{Attempt: m.attempts, State: StateIdle}
	m.current = s
	return s
}

func (m *Manager) attempt(ctx context.Context, sess *Session) error {
	m.setState(sess, StateDiscovering, nil)
	peer, err := m.discover(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	sess.Peer = peer
	m.mu.Unlock()

	m.setState(sess, StateBinding, nil)
	if err := m.bind(ctx, sess); err != nil {
		return err
	}

	m.setState(sess, StateAwaitingReady, nil)
	if err := m.handshake(ctx, sess); err != nil {
		return err
	}

	now := m.now()
	m.mu.Lock()
	sess.LastPeerHeartbeatAt = now
	m.mu.Unlock()
	m.setState(sess, StateActive, nil)
	m.log.Infof("session %d active with peer %s (local %s)", sess.Attempt, sess.Peer, sess.Local)
	return m.steady(ctx, sess)
}

// discover retries the resolver until it succeeds or ctx ends.
func (m *Manager) discover(ctx context.Context) (string, error) {
	for {
		peer, err := m.deps.Resolver.Resolve(ctx)
		if err == nil && peer != "" {
			return peer, nil
		}
		if err == nil {
			err = errors.New("empty address")
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		m.log.Warnf("%v: %v; retrying in %s", ErrDiscovery, err, m.cfg.DiscoveryBackoff)
		if !sleepCtx(ctx, m.cfg.DiscoveryBackoff) {
			return "", ctx.Err()
		}
	}
}

func (m *Manager) bind(ctx context.Context, sess *Session) error {
	ch, err := m.deps.Transport.Bind(ctx, sess.Peer)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBind, err)
	}
	m.mu.Lock()
	sess.ch = ch
	sess.Local = ch.Local
	m.mu.Unlock()
	if err := m.deps.Announcer.Announce(ctx, ch.Local); err != nil {
		return fmt.Errorf("%w: announce %s: %w", ErrBind, ch.Local, err)
	}
	return nil
}

// handshake waits for READY, then switches to the operating topics and sends
// the initial state snapshot.
func (m *Manager) handshake(ctx context.Context, sess *Session) error {
	sub := sess.ch.Sub
	if err := sub.Subscribe(TopicReady); err != nil {
		return fmt.Errorf("%w: subscribe %s: %w", ErrBind, TopicReady, err)
	}
	deadline := m.now().Add(m.cfg.ReadyTimeout)
	var (
		msg Message
		ok  bool
		err error
	)
	for !ok {
		remaining := deadline.Sub(m.now())
		if remaining <= 0 {
			return fmt.Errorf("%w after %s", ErrHandshakeTimeout, m.cfg.ReadyTimeout)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Short slices keep cancellation responsive.
		msg, ok, err = sub.Poll(min(remaining, 100*time.Millisecond))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrChannel, err)
		}
	}
	if msg.Topic != TopicReady {
		return fmt.Errorf("%w: unexpected topic %q", ErrHandshakeTimeout, msg.Topic)
	}
	if err := sub.Unsubscribe(TopicReady); err != nil {
		return fmt.Errorf("%w: unsubscribe %s: %w", ErrChannel, TopicReady, err)
	}
	if err := sub.Subscribe(OperatingTopics...); err != nil {
		return fmt.Errorf("%w: subscribe: %w", ErrChannel, err)
	}
	return m.publishSnapshot(sess)
}

func (m *Manager) publishSnapshot(sess *Session) error {
	snap := m.deps.Device.Snapshot()
	for _, msg := range snapshotMessages(snap) {
		if err := sess.ch.Pub.Publish(msg.Topic, msg.Payload); err != nil {
			return fmt.Errorf("%w: publish %s: %w", ErrChannel, msg.Topic, err)
		}
	}
	return nil
}

func (m *Manager) steady(ctx context.Context, sess *Session) error {
	for {
		if err := m.step(sess); err != nil {
			return err
		}
		if !sleepCtx(ctx, m.cfg.LoopSlice) {
			return ctx.Err()
		}
	}
}

// step runs one iteration of the steady-state loop. The order is fixed.
func (m *Manager) step(sess *Session) error {
	pub, sub := sess.ch.Pub, sess.ch.Sub

	now := m.now()
	if now.Sub(sess.LastLocalHeartbeatSentAt) >= m.cfg.PeerHeartbeatInterval {
		if err := pub.Publish(TopicHeartbeat, heartbeatPayload); err != nil {
			return fmt.Errorf("%w: publish heartbeat: %w", ErrChannel, err)
		}
		m.mu.Lock()
		sess.LastLocalHeartbeatSentAt = now
		m.mu.Unlock()
	}

	if now.Sub(sess.LastHardwareHeartbeatSentAt) >= m.cfg.HardwareHeartbeatInterval {
		if err := m.deps.Device.Heartbeat(); err == nil {
			m.mu.Lock()
			sess.LastHardwareHeartbeatSentAt = now
			m.mu.Unlock()
		}
	}

	if err := m.forwardConfig(pub); err != nil {
		return err
	}

	if err := m.publishSpeed(pub, now); err != nil {
		return err
	}

	msg, ok, err := sub.Poll(m.cfg.PollTimeout)
	if err != nil {
		return fmt.Errorf("%w: poll: %w", ErrChannel, err)
	}
	if ok {
		if err := m.handle(sess, msg); err != nil {
			return err
		}
	}

	m.mu.RLock()
	silent := m.now().Sub(sess.LastPeerHeartbeatAt)
	m.mu.RUnlock()
	if silent > m.cfg.PeerTimeout {
		return fmt.Errorf("%w: no heartbeat for %s", ErrPeerHeartbeatTimeout, silent.Truncate(time.Millisecond))
	}
	return nil
}

func (m *Manager) forwardConfig(pub Publisher) error {
	if m.deps.ConfigPush == nil {
		return nil
	}
	blob, version, err := m.deps.ConfigPush.Pending()
	if err != nil {
		m.log.Warnf("config push: %v", err)
		return nil
	}
	if blob == nil {
		return nil
	}
	if err := pub.Publish(TopicJoystickSettings, blob); err != nil {
		return fmt.Errorf("%w: publish %s: %w", ErrChannel, TopicJoystickSettings, err)
	}
	m.deps.ConfigPush.Ack(version)
	m.log.Infof("forwarded %d bytes of joystick settings", len(blob))
	if rec, ok := m.sink.(metrics.ConfigPushRecorder); ok {
		if err := rec.RecordConfigPush(len(blob), m.now()); err != nil {
			m.log.Debugf("record config push: %v", err)
		}
	}
	return nil
}

func (m *Manager) publishSpeed(pub Publisher, now time.Time) error {
	r, err := m.deps.Device.Speed()
	if err != nil {
		return nil
	}
	if err := pub.Publish(TopicSpeed, encodeSpeed(r)); err != nil {
		return fmt.Errorf("%w: publish %s: %w", ErrChannel, TopicSpeed, err)
	}
	if rec, ok := m.sink.(metrics.SpeedRecorder); ok {
		if err := rec.RecordSpeed(metrics.SpeedEvent{Setting: r.Setting, TrueSpeed: r.TrueSpeed, Limited: r.Limited, Time: now}); err != nil {
			m.log.Debugf("record speed: %v", err)
		}
	}
	return nil
}

func (m *Manager) release(sess *Session) {
	m.mu.Lock()
	ch := sess.ch
	sess.ch = nil
	m.mu.Unlock()
	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil {
		m.log.Warnf("session %d release: %v", sess.Attempt, err)
	}
}

func (m *Manager) setState(sess *Session, to State, cause error) {
	m.mu.Lock()
	from := sess.State
	sess.State = to
	peer := sess.Peer
	m.mu.Unlock()
	if from == to {
		return
	}
	now := m.now()
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	m.log.Debugw("session transition", map[string]any{
		"attempt": sess.Attempt,
		"from":    from.String(),
		"to":      to.String(),
		"reason":  reason,
	})
	if err := m.sink.RecordSessionState(metrics.SessionStateEvent{
		Attempt: sess.Attempt, From: from.String(), To: to.String(), Reason: reason, Time: now,
	}); err != nil {
		m.log.Debugf("record session state: %v", err)
	}
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(Transition{Attempt: sess.Attempt, Peer: peer, From: from, To: to, Err: cause, Time: now})
	}
}

// sleepCtx waits d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
