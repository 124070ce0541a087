// Package nats carries session traffic over a NATS server. The chair publishes
// on <prefix>.<local>.<topic> and reads <prefix>.<peer>.> through one
// synchronous subscription, filtering topics locally.
package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kilianp07/chairlink/core/logger"
	"github.com/kilianp07/chairlink/core/session"
)

// Config of the NATS transport.
type Config struct {
	URL               string        `json:"url"`
	Username          string        `json:"username"`
	Password          string        `json:"password"`
	Prefix            string        `json:"prefix"`
	Local             string        `json:"local"`
	ReconnectInterval time.Duration `json:"reconnect_interval"`
	MaxReconnects     int           `json:"max_reconnects"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Prefix == "" {
		c.Prefix = "chairlink"
	}
	if c.Local == "" {
		c.Local = "chair"
	}
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = 2 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = -1
	}
}

type conn interface {
	Publish(subj string, data []byte) error
	SubscribeSync(subj string) (subscription, error)
	Close()
}

type subscription interface {
	NextMsg(timeout time.Duration) (*nats.Msg, error)
	Unsubscribe() error
}

type natsConn struct{ *nats.Conn }

func (c natsConn) SubscribeSync(subj string) (subscription, error) {
	return c.Conn.SubscribeSync(subj)
}

var dial = func(cfg Config, log logger.Logger) (conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("chairlink-"+cfg.Local),
		nats.UserInfo(cfg.Username, cfg.Password),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return natsConn{nc}, nil
}

// ErrClosed is returned after the session connection was closed.
var ErrClosed = errors.New("nats: closed")

// Transport opens one NATS connection per session.
type Transport struct {
	cfg Config
	log logger.Logger
}

// New creates a NATS transport.
func New(cfg Config, log logger.Logger) *Transport {
	cfg.SetDefaults()
	if log == nil {
		log = logger.Nop{}
	}
	return &Transport{cfg: cfg, log: log}
}

// Bind connects and subscribes to everything the peer publishes.
func (t *Transport) Bind(ctx context.Context, peer string) (*session.Channels, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if peer == "" || strings.ContainsAny(peer, ".*> ") {
		return nil, fmt.Errorf("invalid peer name %q", peer)
	}
	nc, err := dial(t.cfg, t.log)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", t.cfg.URL, err)
	}
	subNS := t.cfg.Prefix + "." + peer + "."
	sub, err := nc.SubscribeSync(subNS + ">")
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s>: %w", subNS, err)
	}
	c := &shared{nc: nc, sub: sub, pubNS: t.cfg.Prefix + "." + t.cfg.Local + ".", subNS: subNS, topics: make(map[string]bool)}
	t.log.Infof("NATS session publishing on %s*, subscribing to %s>", c.pubNS, subNS)
	return &session.Channels{
		Pub:   &publisher{c},
		Sub:   &subscriber{c},
		Local: session.Endpoint{Address: t.cfg.Local},
	}, nil
}

type shared struct {
	nc    conn
	sub   subscription
	pubNS string
	subNS string

	mu      sync.Mutex
	topics  map[string]bool
	closers int
	closed  bool
}

func (s *shared) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *shared) release() error {
	s.mu.Lock()
	s.closers++
	last := s.closers == 2
	if last {
		s.closed = true
	}
	s.mu.Unlock()
	if !last {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.nc.Close()
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
		return nil
	}
	return err
}

type publisher struct{ s *shared }

func (p *publisher) Publish(topic string, payload []byte) error {
	if p.s.isClosed() {
		return ErrClosed
	}
	return p.s.nc.Publish(p.s.pubNS+topic, payload)
}

func (p *publisher) Close() error { return p.s.release() }

type subscriber struct{ s *shared }

func (s *subscriber) Subscribe(topics ...string) error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	for _, t := range topics {
		s.s.topics[t] = true
	}
	return nil
}

func (s *subscriber) Unsubscribe(topics ...string) error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	for _, t := range topics {
		delete(s.s.topics, t)
	}
	return nil
}

func (s *subscriber) subscribed(topic string) bool {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	return s.s.topics[topic]
}

// Poll waits for the next message on a subscribed topic.
func (s *subscriber) Poll(timeout time.Duration) (session.Message, bool, error) {
	if s.s.isClosed() {
		return session.Message{}, false, ErrClosed
	}
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return session.Message{}, false, nil
		}
		m, err := s.s.sub.NextMsg(left)
		if errors.Is(err, nats.ErrTimeout) {
			return session.Message{}, false, nil
		}
		if err != nil {
			return session.Message{}, false, err
		}
		topic := strings.TrimPrefix(m.Subject, s.s.subNS)
		if s.subscribed(topic) {
			return session.Message{Topic: topic, Payload: m.Data}, true, nil
		}
	}
}

func (s *subscriber) Close() error { return s.s.release() }
