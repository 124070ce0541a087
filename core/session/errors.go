package session

import "errors"

var (
	// ErrDiscovery is returned when the peer address cannot be resolved.
	ErrDiscovery = errors.New("peer discovery failed")
	// ErrBind is returned when the local channels cannot be set up.
	ErrBind = errors.New("channel bind failed")
	// ErrHandshakeTimeout is returned when no READY arrives in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")
	// ErrPeerHeartbeatTimeout is returned when the peer went silent.
	ErrPeerHeartbeatTimeout = errors.New("peer heartbeat timeout")
	// ErrMalformedMessage marks an inbound message with a bad payload.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrChannel is returned when publishing or polling fails mid-session.
	ErrChannel = errors.New("channel error")
)
