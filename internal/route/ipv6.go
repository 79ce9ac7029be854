package route

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/graph"
)

const minIPv6HeaderLen = 40

const nextHeaderICMPv6 = 58

// routeIPv6 implements Router-mode IPv6 forwarding: longest-prefix-match
// lookup, loopback detection, unreachable synthesis, and
// Neighbor-Solicitation impersonation in place of IPv4's ARP
// impersonation. Unlike IPv4, no intermediary ever fragments an IPv6
// packet; an oversize packet instead gets an ICMPv6 Packet Too Big reply.
func (r *Router) routeIPv6(ctx context.Context, source *graph.Node, frame []byte) {
	ipHdr := frame[etherHeaderLen:]
	if len(ipHdr) < minIPv6HeaderLen {
		dlog.Warnf(ctx, "route: dropping short ipv6 frame")
		return
	}

	nextHeader := ipHdr[6]
	if nextHeader == nextHeaderICMPv6 {
		if r.maybeHandleNeighborSolicitation(ctx, source, frame) {
			return
		}
	}

	dst := ipHdr[24:40]
	sn, ok := r.Graph.LookupLPM(graph.SubnetIPv6, dst)
	if !ok {
		r.replyUnreachable6(ctx, frame, icmp6CodeNoRoute)
		return
	}
	if sn.Owner == source {
		dlog.Warnf(ctx, "route: loop detected, %s owns the destination subnet it sent from", source.Name())
		return
	}
	if !sn.Owner.Reachable {
		r.replyUnreachable6(ctx, frame, icmp6CodeNoRoute)
		return
	}

	via := sn.Owner.Via
	if via == nil {
		via = sn.Owner
	}
	if via != r.Graph.Self && via.Tunnel != nil {
		mtu := via.Tunnel.MTU()
		if len(frame) > mtu {
			if !r.icmpLimiter.Allow(time.Now()) {
				return
			}
			reply := synthICMPv6PacketTooBig(frame, uint32(mtu), r.SelfMAC)
			if reply != nil {
				r.send(ctx, r.Graph.Self, reply)
			}
			return
		}
	}

	r.send(ctx, sn.Owner, frame)
}

func (r *Router) replyUnreachable6(ctx context.Context, frame []byte, code uint8) {
	if !r.icmpLimiter.Allow(time.Now()) {
		return
	}
	ipHdr := frame[etherHeaderLen:]
	if len(ipHdr) < minIPv6HeaderLen {
		return
	}
	payloadLen := binary.BigEndian.Uint16(ipHdr[4:6])
	quoteLen := int(payloadLen)
	if quoteLen > 1192 {
		quoteLen = 1192
	}
	quote := ipHdr[:40+quoteLen]
	if len(quote) > len(ipHdr) {
		quote = ipHdr
	}

	body := make([]byte, 8+len(quote))
	body[0] = icmp6TypeDestUnreachable
	body[1] = code
	copy(body[8:], quote)

	var src, dst [16]byte
	copy(dst[:], ipHdr[8:24])
	copy(src[:], ipHdr[24:40])
	pseudo := pseudoHeaderSum(src, dst, uint32(len(body)), nextHeaderICMPv6)
	binary.BigEndian.PutUint16(body[2:4], checksum16WithPseudo(pseudo, body))

	reply := buildIPv6Reply(frame, r.SelfMAC, nextHeaderICMPv6, body)
	r.send(ctx, r.Graph.Self, reply)
}

// maybeHandleNeighborSolicitation validates and, if this is a Neighbor
// Solicitation for a remotely-owned address, impersonates the owner with
// a synthesised Neighbor Advertisement. Returns true if the frame was
// handled (consumed) here and must not also fall through to the normal
// forwarding path.
func (r *Router) maybeHandleNeighborSolicitation(ctx context.Context, source *graph.Node, frame []byte) bool {
	ipHdr := frame[etherHeaderLen:]
	icmp := ipHdr[40:]
	if len(icmp) < 24 || icmp[0] != icmp6TypeNeighborSolicitation {
		return false
	}

	var src, dst [16]byte
	copy(src[:], ipHdr[8:24])
	copy(dst[:], ipHdr[24:40])
	payloadLen := int(binary.BigEndian.Uint16(ipHdr[4:6]))
	if payloadLen > len(icmp) {
		return false
	}
	pseudo := pseudoHeaderSum(src, dst, uint32(payloadLen), nextHeaderICMPv6)
	if checksum16WithPseudo(pseudo, icmp[:payloadLen]) != 0 {
		dlog.Warnf(ctx, "route: dropping neighbor solicitation with bad checksum")
		return true
	}

	target := icmp[8:24]
	sn, ok := r.Graph.LookupLPM(graph.SubnetIPv6, target)
	if !ok || sn.Owner == r.Graph.Self {
		return false
	}

	mangled := mangledMAC(r.SelfMAC)
	naBody := make([]byte, 24+8) // 24-byte NA header + target link-layer option
	naBody[0] = icmp6TypeNeighborAdvertisement
	binary.BigEndian.PutUint32(naBody[4:8], 0x40000000) // Solicited flag
	copy(naBody[8:24], target)
	naBody[24] = 2 // option type: target link-layer address
	naBody[25] = 1 // length in units of 8 octets
	copy(naBody[26:32], mangled[:])

	var replySrc, replyDst [16]byte
	copy(replySrc[:], target)
	copy(replyDst[:], src[:])
	replyPseudo := pseudoHeaderSum(replySrc, replyDst, uint32(len(naBody)), nextHeaderICMPv6)
	binary.BigEndian.PutUint16(naBody[2:4], checksum16WithPseudo(replyPseudo, naBody))

	reply := buildIPv6Reply(frame, mangled, nextHeaderICMPv6, naBody)
	copy(reply[etherHeaderLen+8:etherHeaderLen+24], target)
	r.send(ctx, source, reply)
	return true
}
