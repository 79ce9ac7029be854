package route

import (
	"context"
	"encoding/binary"

	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/graph"
)

const (
	arpHeaderLen  = 28
	arpOpRequest  = 1
	arpOpReply    = 2
	arpHTypeEther = 1
	arpPTypeIPv4  = 0x0800
)

// routeARP implements ARP impersonation: for a REQUEST whose target
// address is owned by a remote node, synthesise a REPLY locally instead
// of forwarding the broadcast, so the kernel on the querying host never
// needs to learn about the overlay.
func (r *Router) routeARP(ctx context.Context, source *graph.Node, frame []byte) {
	arp := frame[etherHeaderLen:]
	if len(arp) < arpHeaderLen {
		dlog.Warnf(ctx, "route: dropping short arp frame")
		return
	}

	htype := binary.BigEndian.Uint16(arp[0:2])
	ptype := binary.BigEndian.Uint16(arp[2:4])
	hlen, plen := arp[4], arp[5]
	op := binary.BigEndian.Uint16(arp[6:8])

	if htype != arpHTypeEther || ptype != arpPTypeIPv4 || hlen != 6 || plen != 4 {
		dlog.Warnf(ctx, "route: dropping malformed arp frame")
		return
	}
	if op != arpOpRequest {
		return
	}

	targetPA := arp[24:28]
	sn, ok := r.Graph.LookupLPM(graph.SubnetIPv4, targetPA)
	if !ok {
		dlog.Debugf(ctx, "route: arp request for unknown target, dropping")
		return
	}
	if sn.Owner == r.Graph.Self {
		return // self answers its own ARP through the normal kernel/VND path
	}

	senderHA := arp[8:14]
	senderPA := arp[14:18]

	reply := make([]byte, len(frame))
	copy(reply, frame)

	mangled := mangledMAC(r.SelfMAC)
	copy(reply[0:6], frame[6:12]) // ethernet dest = original sender
	copy(reply[6:12], mangled[:])

	replyARP := reply[etherHeaderLen:]
	binary.BigEndian.PutUint16(replyARP[6:8], arpOpReply)
	copy(replyARP[8:14], mangled[:]) // sender hardware = mangled self MAC
	copy(replyARP[14:18], targetPA)  // sender protocol = original target
	copy(replyARP[18:24], senderHA)  // target hardware = original sender
	copy(replyARP[24:28], senderPA)  // target protocol = original sender

	r.send(ctx, source, reply)
}

// mangledMAC XORs the low byte of the second octet with 0xFF, so a
// synthesised ARP/ND reply's hardware address is distinguishable from
// the daemon's real one on the wire.
func mangledMAC(mac [6]byte) [6]byte {
	out := mac
	out[1] ^= 0xFF
	return out
}
