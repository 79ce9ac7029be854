// Package route implements the forwarding plane: mode dispatch
// (Router/Switch/Hub), MAC learning, longest-prefix-match destination
// lookup, unreachable-destination ICMP/ICMPv6 synthesis, IPv4
// fragmentation, and ARP/ND impersonation. Grounded on the packet
// dispatch loop, fragment reassembly, and ICMP synthesis idioms of
// _examples/telepresenceio-telepresence/pkg/client/daemon/tunrouter.go,
// adapted from L4 connection pooling to L2/L3 frame forwarding across
// tunnels.
package route

import (
	"context"
	"time"

	"github.com/relaymesh/relayd/internal/config"
	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/graph"
	"github.com/relaymesh/relayd/internal/vnd"
)

const (
	etherHeaderLen = 14

	etherTypeARP  = 0x0806
	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86DD
)

// Router is the forwarding plane. One Router serves the whole daemon;
// HandleFrame is called once per inbound Ethernet frame, whether it
// arrived from the local VND or from a peer tunnel.
type Router struct {
	Graph   *graph.Graph
	Device  vnd.Device
	Mode    config.Mode
	SelfMAC [6]byte

	MACExpire           time.Duration
	PriorityInheritance bool

	icmpLimiter *tokenBucket

	// OnLearnedSubnet is invoked whenever switch-mode MAC learning adds a
	// new subnet (refreshing an existing one's expiry is not reported), so
	// the caller (the meta peering manager) can broadcast ADD_SUBNET;
	// OnExpiredSubnet is invoked for each subnet the aging sweep removes,
	// for DEL_SUBNET. nil is a valid no-op for either.
	OnLearnedSubnet func(s *graph.Subnet)
	OnExpiredSubnet func(s *graph.Subnet)
}

// New constructs a Router. macExpire is the switch-mode learned-MAC
// aging interval (the MACExpire config key).
func New(g *graph.Graph, dev vnd.Device, mode config.Mode, selfMAC [6]byte, macExpire time.Duration) *Router {
	return &Router{
		Graph:       g,
		Device:      dev,
		Mode:        mode,
		SelfMAC:     selfMAC,
		MACExpire:   macExpire,
		icmpLimiter: newTokenBucket(3, time.Second),
	}
}

// HandleFrame dispatches one inbound Ethernet frame according to the
// configured mode. source is the Node the frame arrived from (self, if
// it came off the local VND).
func (r *Router) HandleFrame(ctx context.Context, source *graph.Node, frame []byte) {
	if len(frame) < etherHeaderLen {
		dlog.Warnf(ctx, "route: dropping short frame (%d bytes)", len(frame))
		return
	}

	switch r.Mode {
	case config.ModeHub:
		r.broadcastPacket(ctx, source, frame)
		return
	case config.ModeSwitch:
		r.routeMAC(ctx, source, frame)
		return
	case config.ModeRouter:
		etherType := uint16(frame[12])<<8 | uint16(frame[13])
		switch etherType {
		case etherTypeARP:
			r.routeARP(ctx, source, frame)
		case etherTypeIPv4:
			r.routeIPv4(ctx, source, frame)
		case etherTypeIPv6:
			r.routeIPv6(ctx, source, frame)
		default:
			dlog.Warnf(ctx, "route: dropping frame with unknown ethertype 0x%04x", etherType)
		}
	}
}

// send delivers packet (a full Ethernet frame) to dest: locally to the VND
// if dest is self, over its tunnel otherwise, dropping with a warning if
// dest has no usable tunnel.
func (r *Router) send(ctx context.Context, dest *graph.Node, packet []byte) {
	if dest == r.Graph.Self {
		if err := r.Device.WritePacket(ctx, packet); err != nil {
			dlog.Warnf(ctx, "route: write to device failed: %v", err)
		}
		return
	}
	if dest.Tunnel == nil {
		dlog.Warnf(ctx, "route: no tunnel to %s, dropping", dest.Name())
		return
	}
	if err := dest.Tunnel.SendPacket(packet); err != nil {
		dlog.Warnf(ctx, "route: send to %s failed: %v", dest.Name(), err)
	}
}

// broadcastPacket delivers packet to self (unless source is self) and then
// out over every one of self's edges marked mst, other than the one the
// packet arrived from. Each neighbor performs the same rule on its own
// mst edges, so the packet eventually reaches every node in the
// spanning tree without looping.
func (r *Router) broadcastPacket(ctx context.Context, source *graph.Node, packet []byte) {
	if source != r.Graph.Self {
		r.send(ctx, r.Graph.Self, packet)
	}
	for _, e := range r.Graph.Self.Edges {
		if !e.MST || e.To == source {
			continue
		}
		r.send(ctx, e.To, packet)
	}
}
