package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/chairlink/core/logger"
	"github.com/kilianp07/chairlink/core/session"
)

// ErrClosed is returned after the session connection was closed.
var ErrClosed = errors.New("mqtt: closed")

// TransportConfig selects the topic namespace. The chair publishes on
// <prefix>/<local>/<topic> and listens on <prefix>/<peer>/<topic>, where peer
// is the resolved peer name.
type TransportConfig struct {
	Config `json:",squash"`
	Prefix string `json:"prefix"`
	Local  string `json:"local"`
	Buffer int    `json:"buffer"`
}

// SetDefaults applies sane defaults.
func (c *TransportConfig) SetDefaults() {
	c.Config.SetDefaults()
	if c.Prefix == "" {
		c.Prefix = "chairlink"
	}
	if c.Local == "" {
		c.Local = "chair"
	}
	if c.Buffer == 0 {
		c.Buffer = 256
	}
}

// Transport opens one broker connection per session.
type Transport struct {
	cfg TransportConfig
	log logger.Logger
}

// NewTransport creates an MQTT transport.
func NewTransport(cfg TransportConfig, log logger.Logger) (*Transport, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Transport{cfg: cfg, log: log}, nil
}

// Bind connects a fresh client. The returned endpoint carries the local name
// the peer must subscribe to; there is no port.
func (t *Transport) Bind(ctx context.Context, peer string) (*session.Channels, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if peer == "" || strings.ContainsAny(peer, "/#+") {
		return nil, fmt.Errorf("invalid peer name %q", peer)
	}
	opts, err := NewClientOptions(t.cfg.Config, "session")
	if err != nil {
		return nil, err
	}
	c := &conn{
		cfg:    t.cfg,
		log:    t.log,
		pubNS:  t.cfg.Prefix + "/" + t.cfg.Local + "/",
		subNS:  t.cfg.Prefix + "/" + peer + "/",
		in:     make(chan session.Message, t.cfg.Buffer),
		topics: make(map[string]bool),
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		t.log.Warnf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		t.log.Warnf("reconnecting to MQTT broker")
	}
	// Subscriptions are restored on reconnect.
	opts.OnConnect = func(paho.Client) { c.resubscribe() }
	c.cli = newMQTTClient(opts)
	if err := waitToken(c.cli.Connect(), t.cfg.Timeout); err != nil {
		return nil, fmt.Errorf("connect %s: %w", t.cfg.Broker, err)
	}
	t.log.Infof("MQTT session publishing on %s*, subscribing to %s*", c.pubNS, c.subNS)
	return &session.Channels{
		Pub:   &publisher{c},
		Sub:   &subscriber{c},
		Local: session.Endpoint{Address: t.cfg.Local},
	}, nil
}

type conn struct {
	cfg   TransportConfig
	log   logger.Logger
	cli   pahoClient
	pubNS string
	subNS string
	in    chan session.Message

	mu      sync.Mutex
	topics  map[string]bool
	closers int
	closed  bool
}

func (c *conn) onMessage(_ paho.Client, m paho.Message) {
	topic := strings.TrimPrefix(m.Topic(), c.subNS)
	select {
	case c.in <- session.Message{Topic: topic, Payload: append([]byte(nil), m.Payload()...)}:
	default:
		c.log.Warnf("inbound queue full, dropping %s", topic)
	}
}

func (c *conn) subscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

func (c *conn) resubscribe() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	c.mu.Unlock()
	for _, t := range topics {
		if err := waitToken(c.cli.Subscribe(c.subNS+t, c.cfg.QoS, c.onMessage), c.cfg.Timeout); err != nil {
			c.log.Errorf("resubscribe %s: %v", t, err)
		}
	}
}

// release disconnects once both halves are closed.
func (c *conn) release() {
	c.mu.Lock()
	c.closers++
	last := c.closers == 2 && !c.closed
	if last {
		c.closed = true
	}
	c.mu.Unlock()
	if last && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type publisher struct{ c *conn }

func (p *publisher) Publish(topic string, payload []byte) error {
	if p.c.isClosed() {
		return ErrClosed
	}
	return waitToken(p.c.cli.Publish(p.c.pubNS+topic, p.c.cfg.QoS, false, payload), p.c.cfg.Timeout)
}

func (p *publisher) Close() error {
	p.c.release()
	return nil
}

type subscriber struct{ c *conn }

func (s *subscriber) Subscribe(topics ...string) error {
	for _, t := range topics {
		s.c.mu.Lock()
		s.c.topics[t] = true
		s.c.mu.Unlock()
		if err := waitToken(s.c.cli.Subscribe(s.c.subNS+t, s.c.cfg.QoS, s.c.onMessage), s.c.cfg.Timeout); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

func (s *subscriber) Unsubscribe(topics ...string) error {
	full := make([]string, 0, len(topics))
	s.c.mu.Lock()
	for _, t := range topics {
		delete(s.c.topics, t)
		full = append(full, s.c.subNS+t)
	}
	s.c.mu.Unlock()
	return waitToken(s.c.cli.Unsubscribe(full...), s.c.cfg.Timeout)
}

// Poll returns the next message on a subscribed topic. Messages that arrive
// for a topic unsubscribed in the meantime are skipped.
func (s *subscriber) Poll(timeout time.Duration) (session.Message, bool, error) {
	if s.c.isClosed() {
		return session.Message{}, false, ErrClosed
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case m := <-s.c.in:
			if s.c.subscribed(m.Topic) {
				return m, true, nil
			}
		case <-t.C:
			return session.Message{}, false, nil
		}
	}
}

func (s *subscriber) Close() error {
	s.c.release()
	return nil
}
