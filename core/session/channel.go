package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Message is the unit exchanged with the peer.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher sends messages to the peer.
type Publisher interface {
	Publish(topic string, payload []byte) error
	Close() error
}

// Subscriber receives messages from the peer. Messages on topics that are not
// subscribed are discarded.
type Subscriber interface {
	Subscribe(topics ...string) error
	Unsubscribe(topics ...string) error
	// Poll waits up to timeout for one message. ok is false on timeout.
	Poll(timeout time.Duration) (msg Message, ok bool, err error)
	Close() error
}

// Endpoint is the local address the peer must connect to.
type Endpoint struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

func (e Endpoint) String() string { return net.JoinHostPort(e.Address, strconv.Itoa(e.Port)) }

// Channels is the publish/subscribe pair of one session.
type Channels struct {
	Pub   Publisher
	Sub   Subscriber
	Local Endpoint
}

// Close releases both channels.
func (c *Channels) Close() error {
	var perr, serr error
	if c.Pub != nil {
		perr = c.Pub.Close()
	}
	if c.Sub != nil {
		serr = c.Sub.Close()
	}
	if perr != nil {
		return fmt.Errorf("close publisher: %w", perr)
	}
	if serr != nil {
		return fmt.Errorf("close subscriber: %w", serr)
	}
	return nil
}

// Transport opens the channel pair towards a peer.
type Transport interface {
	Bind(ctx context.Context, peer string) (*Channels, error)
}

// Resolver finds the peer's network address.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Announcer tells the peer where the local publisher listens.
type Announcer interface {
	Announce(ctx context.Context, local Endpoint) error
}

// NopAnnouncer is used when the peer learns the endpoint by other means.
type NopAnnouncer struct{}

func (NopAnnouncer) Announce(context.Context, Endpoint) error { return nil }
