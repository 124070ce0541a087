package tcp

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/kilianp07/chairlink/core/logger"
	"github.com/kilianp07/chairlink/core/session"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("closed")

// Publisher accepts subscriber connections and fans every message out to
// them. A subscriber whose queue is full misses messages instead of stalling
// the publisher.
type Publisher struct {
	ln    net.Listener
	queue int
	log   logger.Logger

	mu     sync.Mutex
	conns  map[*pubConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

type pubConn struct {
	c    net.Conn
	out  chan session.Message
	done chan struct{}
}

// Listen starts a publisher on addr. Use port 0 for an ephemeral port.
func Listen(addr string, queue int, log logger.Logger) (*Publisher, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if queue <= 0 {
		queue = 256
	}
	if log == nil {
		log = logger.Nop{}
	}
	p := &Publisher{ln: ln, queue: queue, log: log, conns: make(map[*pubConn]struct{})}
	p.wg.Add(1)
	go p.accept()
	return p, nil
}

// Port returns the bound TCP port.
func (p *Publisher) Port() int { return p.ln.Addr().(*net.TCPAddr).Port }

// Subscribers returns the number of connected subscribers.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

func (p *Publisher) accept() {
	defer p.wg.Done()
	for {
		c, err := p.ln.Accept()
		if err != nil {
			return
		}
		pc := &pubConn{c: c, out: make(chan session.Message, p.queue), done: make(chan struct{})}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = c.Close()
			return
		}
		p.conns[pc] = struct{}{}
		p.mu.Unlock()
		p.log.Debugf("subscriber connected from %s", c.RemoteAddr())
		p.wg.Add(1)
		go p.write(pc)
	}
}

func (p *Publisher) write(pc *pubConn) {
	defer p.wg.Done()
	defer p.drop(pc)
	w := bufio.NewWriter(pc.c)
	for {
		select {
		case <-pc.done:
			return
		case m := <-pc.out:
			if err := writeFrame(w, m); err != nil {
				p.log.Debugf("subscriber %s: %v", pc.c.RemoteAddr(), err)
				return
			}
			// Flush once the queue is drained to batch bursts.
			if len(pc.out) == 0 {
				_ = pc.c.SetWriteDeadline(time.Now().Add(2 * time.Second))
				if err := w.Flush(); err != nil {
					p.log.Debugf("subscriber %s: %v", pc.c.RemoteAddr(), err)
					return
				}
			}
		}
	}
}

func (p *Publisher) drop(pc *pubConn) {
	p.mu.Lock()
	delete(p.conns, pc)
	p.mu.Unlock()
	_ = pc.c.Close()
}

// Publish queues the message for every connected subscriber.
func (p *Publisher) Publish(topic string, payload []byte) error {
	m := session.Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	for pc := range p.conns {
		select {
		case pc.out <- m:
		default:
		}
	}
	return nil
}

// Close stops accepting, disconnects every subscriber and waits for the
// writer goroutines.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for pc := range p.conns {
		close(pc.done)
		_ = pc.c.Close()
	}
	p.mu.Unlock()
	err := p.ln.Close()
	p.wg.Wait()
	return err
}
