package route

import (
	"context"
	"time"

	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/graph"
)

// routeMAC implements Switch mode: a learning bridge keyed by the
// destination MAC, falling back to an MST broadcast when the
// destination is unknown.
func (r *Router) routeMAC(ctx context.Context, source *graph.Node, frame []byte) {
	destMAC, srcMAC := frame[0:6], frame[6:12]

	if source == r.Graph.Self {
		r.learnMAC(ctx, srcMAC)
	}

	var dk [6]byte
	copy(dk[:], destMAC)
	key := graph.SubnetKey{Kind: graph.SubnetMAC, Prefix: 48}
	copy(key.Addr[:6], dk[:])

	sn, ok := r.Graph.LookupExact(key)
	if !ok {
		r.broadcastPacket(ctx, source, frame)
		return
	}
	if sn.Owner == source {
		dlog.Warnf(ctx, "route: loop detected, %s is both source and owner of destination MAC", source.Name())
		return
	}
	if !sn.Owner.Reachable {
		dlog.Debugf(ctx, "route: destination MAC owner %s unreachable, dropping", sn.Owner.Name())
		return
	}
	r.send(ctx, sn.Owner, frame)
}

// learnMAC implements the source-side learning rule: create a MAC subnet
// owned by self on first sight, or refresh its expiry if already known.
// Every creation and every periodic sweep eviction is reported through
// OnLearnedSubnet/OnExpiredSubnet so the meta layer can broadcast
// ADD_SUBNET/DEL_SUBNET.
func (r *Router) learnMAC(ctx context.Context, srcMAC []byte) {
	var mac [6]byte
	copy(mac[:], srcMAC)
	key := graph.SubnetKey{Kind: graph.SubnetMAC, Prefix: 48}
	copy(key.Addr[:6], mac[:])

	self := r.Graph.Self
	if existing, ok := r.Graph.LookupExact(key); ok && existing.Owner == self {
		existing.Expires = time.Now().Add(r.MACExpire)
		return
	}

	sn := graph.NewMACSubnet(self, mac, time.Now().Add(r.MACExpire))
	r.Graph.AddSubnet(self, sn)
	dlog.Debugf(ctx, "route: learned MAC %s", sn)
	if r.OnLearnedSubnet != nil {
		r.OnLearnedSubnet(sn)
	}
}

// AgeLearnedSubnets sweeps self's learned MAC subnets for expiry, the
// periodic age_subnets pass. Intended to be driven by a recurring
// fdloop timer.
func (r *Router) AgeLearnedSubnets(now time.Time) {
	r.Graph.AgeSubnets(r.Graph.Self, now, func(s *graph.Subnet) {
		if r.OnExpiredSubnet != nil {
			r.OnExpiredSubnet(s)
		}
	})
}
