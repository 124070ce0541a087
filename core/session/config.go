package session

import (
	"fmt"
	"time"
)

// Config holds the timings of the session state machine.
type Config struct {
	// DiscoveryBackoff is the wait between failed discovery attempts.
	DiscoveryBackoff time.Duration `json:"discovery_backoff"`
	// ReadyTimeout bounds the wait for the peer's READY message.
	ReadyTimeout time.Duration `json:"ready_timeout"`
	// PeerHeartbeatInterval paces heartbeats sent to the peer.
	PeerHeartbeatInterval time.Duration `json:"peer_heartbeat_interval"`
	// HardwareHeartbeatInterval paces heartbeats sent to the controller from
	// the session loop.
	HardwareHeartbeatInterval time.Duration `json:"hardware_heartbeat_interval"`
	// PeerTimeout declares the peer lost when no heartbeat arrived for this long.
	PeerTimeout time.Duration `json:"peer_timeout"`
	// RetryBackoff is the wait in FAILED before discovering again.
	RetryBackoff time.Duration `json:"retry_backoff"`
	// PollTimeout bounds each wait for an inbound message.
	PollTimeout time.Duration `json:"poll_timeout"`
	// LoopSlice is the sleep at the end of each steady-state iteration.
	LoopSlice time.Duration `json:"loop_slice"`
}

// SetDefaults applies the stock timings.
func (c *Config) SetDefaults() {
	if c.DiscoveryBackoff == 0 {
		c.DiscoveryBackoff = 2 * time.Second
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = 5 * time.Second
	}
	if c.PeerHeartbeatInterval == 0 {
		c.PeerHeartbeatInterval = 2 * time.Second
	}
	if c.HardwareHeartbeatInterval == 0 {
		c.HardwareHeartbeatInterval = 200 * time.Millisecond
	}
	if c.PeerTimeout == 0 {
		c.PeerTimeout = 10 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 10 * time.Millisecond
	}
	if c.LoopSlice == 0 {
		c.LoopSlice = 10 * time.Millisecond
	}
}

// Validate checks the timings are consistent.
func (c Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"discovery_backoff":           c.DiscoveryBackoff,
		"ready_timeout":               c.ReadyTimeout,
		"peer_heartbeat_interval":     c.PeerHeartbeatInterval,
		"hardware_heartbeat_interval": c.HardwareHeartbeatInterval,
		"peer_timeout":                c.PeerTimeout,
		"retry_backoff":               c.RetryBackoff,
		"poll_timeout":                c.PollTimeout,
		"loop_slice":                  c.LoopSlice,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.PeerTimeout <= c.PeerHeartbeatInterval {
		return fmt.Errorf("peer_timeout (%s) must exceed peer_heartbeat_interval (%s)", c.PeerTimeout, c.PeerHeartbeatInterval)
	}
	return nil
}
