// Package discovery advertises and locates signaling hubs on the local
// network over mDNS, so clients on a LAN can find a hub without configuring
// its address.
package discovery

import (
	"context"
	"fmt"
	"net"
)

const (
	DefaultServiceType = "_pairlink-signal._tcp"
	DefaultDomain      = "local"
)

// ServiceInfo describes one advertised signaling hub.
type ServiceInfo struct {
	Name   string // instance name, usually the hub's host name
	Type   string // service type, e.g. "_pairlink-signal._tcp"
	Domain string // domain, e.g. "local"
	Addr   net.IP
	Port   int
}

// WSURL returns the websocket endpoint for this hub.
func (s ServiceInfo) WSURL() string {
	return fmt.Sprintf("ws://%s/ws", net.JoinHostPort(s.Addr.String(), fmt.Sprintf("%d", s.Port)))
}

// DiscoveryResult carries either a snapshot of known hubs or a lookup error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

// Adapter abstracts the mDNS layer for tests.
type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, service string) <-chan DiscoveryResult
}
