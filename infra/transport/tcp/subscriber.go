package tcp

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/kilianp07/chairlink/core/logger"
	"github.com/kilianp07/chairlink/core/session"
)

// Subscriber connects to a remote publisher, redialing until Close, and
// filters topics locally.
type Subscriber struct {
	addr   string
	redial time.Duration
	dial   time.Duration
	log    logger.Logger

	in     chan session.Message
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	topics map[string]bool
	conn   net.Conn
	closed bool
}

// Dial starts a subscriber for the publisher at addr. The connection is
// established in the background.
func Dial(addr string, dialTimeout, redial time.Duration, log logger.Logger) *Subscriber {
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	if redial <= 0 {
		redial = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		addr:   addr,
		redial: redial,
		dial:   dialTimeout,
		log:    log,
		in:     make(chan session.Message, 1024),
		cancel: cancel,
		topics: make(map[string]bool),
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s
}

// Connected reports whether a connection to the publisher is up.
func (s *Subscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Subscriber) run(ctx context.Context) {
	defer s.wg.Done()
	d := net.Dialer{Timeout: s.dial}
	for {
		conn, err := d.DialContext(ctx, "tcp", s.addr)
		if err == nil {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				_ = conn.Close()
				return
			}
			s.conn = conn
			s.mu.Unlock()
			s.log.Debugf("connected to publisher %s", s.addr)
			s.read(ctx, conn)
			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			_ = conn.Close()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.redial):
		}
	}
}

func (s *Subscriber) read(ctx context.Context, conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		m, err := readFrame(r)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Debugf("publisher %s: %v", s.addr, err)
			}
			return
		}
		if !s.subscribed(m.Topic) {
			continue
		}
		select {
		case s.in <- m:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscriber) subscribed(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topics[topic]
}

func (s *Subscriber) Subscribe(topics ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		s.topics[t] = true
	}
	return nil
}

func (s *Subscriber) Unsubscribe(topics ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		delete(s.topics, t)
	}
	return nil
}

// Poll returns the next subscribed message or times out. Messages queued
// before an Unsubscribe are filtered here as well.
func (s *Subscriber) Poll(timeout time.Duration) (session.Message, bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case m := <-s.in:
			if !s.subscribed(m.Topic) {
				continue
			}
			return m, true, nil
		case <-t.C:
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return session.Message{}, false, ErrClosed
			}
			return session.Message{}, false, nil
		}
	}
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()
	s.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()
	return nil
}
