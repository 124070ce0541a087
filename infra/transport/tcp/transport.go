// Package tcp implements a brokerless publish/subscribe transport. The local
// publisher listens on an ephemeral port; the subscriber dials the peer's
// publisher, by convention one port above ours.
package tcp

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kilianp07/chairlink/core/logger"
	"github.com/kilianp07/chairlink/core/session"
)

// Config of the tcp transport.
type Config struct {
	// ListenHost is the interface the publisher binds to.
	ListenHost string `json:"listen_host"`
	// AdvertiseHost is announced to the peer. Empty detects the address of
	// the interface routing to the peer.
	AdvertiseHost string `json:"advertise_host"`
	// PeerPort fixes the peer publisher port. Zero uses local port + PeerPortOffset.
	PeerPort       int           `json:"peer_port"`
	PeerPortOffset int           `json:"peer_port_offset"`
	DialTimeout    time.Duration `json:"dial_timeout"`
	RedialInterval time.Duration `json:"redial_interval"`
	SendQueue      int           `json:"send_queue"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ListenHost == "" {
		c.ListenHost = "0.0.0.0"
	}
	if c.PeerPortOffset == 0 {
		c.PeerPortOffset = 1
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.RedialInterval == 0 {
		c.RedialInterval = 250 * time.Millisecond
	}
	if c.SendQueue == 0 {
		c.SendQueue = 256
	}
}

// Transport binds tcp channel pairs.
type Transport struct {
	cfg Config
	log logger.Logger
}

// New creates a tcp transport.
func New(cfg Config, log logger.Logger) *Transport {
	cfg.SetDefaults()
	if log == nil {
		log = logger.Nop{}
	}
	return &Transport{cfg: cfg, log: log}
}

// Bind opens the local publisher and starts dialing the peer's publisher.
func (t *Transport) Bind(ctx context.Context, peer string) (*session.Channels, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pub, err := Listen(net.JoinHostPort(t.cfg.ListenHost, "0"), t.cfg.SendQueue, t.log)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	port := pub.Port()
	peerPort := t.cfg.PeerPort
	if peerPort == 0 {
		peerPort = port + t.cfg.PeerPortOffset
	}
	host := t.cfg.AdvertiseHost
	if host == "" {
		host, err = outboundHost(peer, peerPort)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
	}
	sub := Dial(net.JoinHostPort(peer, strconv.Itoa(peerPort)), t.cfg.DialTimeout, t.cfg.RedialInterval, t.log)
	t.log.Infof("publishing on %s:%d, subscribing to %s:%d", host, port, peer, peerPort)
	return &session.Channels{
		Pub:   pub,
		Sub:   sub,
		Local: session.Endpoint{Address: host, Port: port},
	}, nil
}

// outboundHost returns the local address the kernel would use to reach peer.
// No packet is sent.
func outboundHost(peer string, port int) (string, error) {
	c, err := net.Dial("udp", net.JoinHostPort(peer, strconv.Itoa(port)))
	if err != nil {
		return "", fmt.Errorf("route to %s: %w", peer, err)
	}
	defer func() { _ = c.Close() }()
	return c.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
