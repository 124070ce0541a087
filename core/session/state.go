package session

import (
	"fmt"
	"time"
)

// State of a session attempt.
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateBinding
	StateAwaitingReady
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDiscovering:
		return "DISCOVERING"
	case StateBinding:
		return "BINDING"
	case StateAwaitingReady:
		return "AWAITING_READY"
	case StateActive:
		return "ACTIVE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transition is published on the event bus on every state change.
type Transition struct {
	Attempt uint64
	Peer    string
	From    State
	To      State
	Err     error
	Time    time.Time
}

// Session is the bookkeeping of one network attempt. It is never persisted.
type Session struct {
	Attempt uint64
	Peer    string
	Local   Endpoint
	State   State

	LastPeerHeartbeatAt         time.Time
	LastLocalHeartbeatSentAt    time.Time
	LastHardwareHeartbeatSentAt time.Time

	ch *Channels
}
