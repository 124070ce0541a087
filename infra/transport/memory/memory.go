// Package memory is an in-process transport. Each Bind creates a Link whose
// far end can be driven like a remote peer from tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/chairlink/core/session"
)

// ErrClosed is returned by channels of a released link.
var ErrClosed = errors.New("link closed")

// Transport hands out in-memory links.
type Transport struct {
	mu       sync.Mutex
	bindErr  error
	nextPort int
	links    chan *Link
}

// New creates a transport. Links are delivered on Links() as they are bound.
func New() *Transport {
	return &Transport{nextPort: 40000, links: make(chan *Link, 64)}
}

// FailBind makes subsequent Bind calls return err. A nil err clears it.
func (t *Transport) FailBind(err error) {
	t.mu.Lock()
	t.bindErr = err
	t.mu.Unlock()
}

// Links delivers every bound link.
func (t *Transport) Links() <-chan *Link { return t.links }

// Bind creates a new link to peer.
func (t *Transport) Bind(_ context.Context, peer string) (*session.Channels, error) {
	t.mu.Lock()
	if t.bindErr != nil {
		err := t.bindErr
		t.mu.Unlock()
		return nil, err
	}
	port := t.nextPort
	t.nextPort += 2
	t.mu.Unlock()

	l := &Link{
		Peer:   peer,
		toPeer: make(chan session.Message, 1024),
		toUs:   make(chan session.Message, 1024),
		closed: make(chan struct{}),
		topics: make(map[string]bool),
	}
	select {
	case t.links <- l:
	default:
	}
	return &session.Channels{
		Pub:   &publisher{l: l},
		Sub:   &subscriber{l: l},
		Local: session.Endpoint{Address: "127.0.0.1", Port: port},
	}, nil
}

// Link is the pair of queues behind one bound session. The exported methods
// act as the remote peer.
type Link struct {
	Peer string

	toPeer chan session.Message
	toUs   chan session.Message

	mu        sync.Mutex
	topics    map[string]bool
	closeOnce sync.Once
	closed    chan struct{}
}

// Send delivers a message from the peer.
func (l *Link) Send(topic string, payload []byte) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}
	select {
	case l.toUs <- session.Message{Topic: topic, Payload: payload}:
		return nil
	case <-l.closed:
		return ErrClosed
	}
}

// Receive waits up to timeout for a message published to the peer.
func (l *Link) Receive(timeout time.Duration) (session.Message, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m := <-l.toPeer:
		return m, true
	case <-t.C:
		return session.Message{}, false
	}
}

// ReceiveTopic waits for the next message on topic, skipping others.
func (l *Link) ReceiveTopic(topic string, timeout time.Duration) (session.Message, bool) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return session.Message{}, false
		}
		m, ok := l.Receive(remaining)
		if !ok {
			return session.Message{}, false
		}
		if m.Topic == topic {
			return m, true
		}
	}
}

// Closed is closed once the local side released the link.
func (l *Link) Closed() <-chan struct{} { return l.closed }

// Subscribed reports whether the local side currently subscribes topic.
func (l *Link) Subscribed(topic string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.topics[topic]
}

func (l *Link) close() {
	l.closeOnce.Do(func() { close(l.closed) })
}

type publisher struct{ l *Link }

func (p *publisher) Publish(topic string, payload []byte) error {
	select {
	case <-p.l.closed:
		return ErrClosed
	default:
	}
	msg := session.Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	select {
	case p.l.toPeer <- msg:
	default:
		// Slow peer: drop the oldest message like a PUB socket would.
		select {
		case <-p.l.toPeer:
		default:
		}
		select {
		case p.l.toPeer <- msg:
		default:
		}
	}
	return nil
}

func (p *publisher) Close() error {
	p.l.close()
	return nil
}

type subscriber struct{ l *Link }

func (s *subscriber) Subscribe(topics ...string) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	for _, t := range topics {
		s.l.topics[t] = true
	}
	return nil
}

func (s *subscriber) Unsubscribe(topics ...string) error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	for _, t := range topics {
		delete(s.l.topics, t)
	}
	return nil
}

func (s *subscriber) Poll(timeout time.Duration) (session.Message, bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case <-s.l.closed:
			return session.Message{}, false, ErrClosed
		case m := <-s.l.toUs:
			if !s.l.Subscribed(m.Topic) {
				continue
			}
			return m, true, nil
		case <-t.C:
			return session.Message{}, false, nil
		}
	}
}

func (s *subscriber) Close() error {
	s.l.close()
	return nil
}
