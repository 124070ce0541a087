// Package discovery resolves the peer address and announces the local
// endpoint to the peer.
package discovery

import (
	"context"
	"errors"
	"net"
)

// ErrNoAddress is returned when no peer address is known.
var ErrNoAddress = errors.New("no peer address")

// Static always resolves to a configured address.
type Static struct {
	Address string `json:"address"`
}

// Resolve returns the configured address. Host names are looked up so an
// unknown host fails here rather than at bind time.
func (s Static) Resolve(ctx context.Context) (string, error) {
	if s.Address == "" {
		return "", ErrNoAddress
	}
	if net.ParseIP(s.Address) != nil {
		return s.Address, nil
	}
	addrs, err := net.DefaultResolver.LookupHost(ctx, s.Address)
	if err != nil {
		return "", err
	}
	return addrs[0], nil
}
