package route

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/graph"
)

const minIPv4HeaderLen = 20

const (
	ipv4FlagDF      = 0x4000
	ipv4FlagMF      = 0x2000
	ipv4FragOffMask = 0x1FFF
)

// routeIPv4 implements Router-mode IPv4 forwarding: longest-prefix-match
// destination lookup, loopback detection, unreachable-destination ICMP
// synthesis, and MTU-driven fragmentation or a Fragmentation Needed
// reply.
func (r *Router) routeIPv4(ctx context.Context, source *graph.Node, frame []byte) {
	ipHdr := frame[etherHeaderLen:]
	if len(ipHdr) < minIPv4HeaderLen {
		dlog.Warnf(ctx, "route: dropping short ipv4 frame")
		return
	}

	dst := ipHdr[16:20]
	sn, ok := r.Graph.LookupLPM(graph.SubnetIPv4, dst)
	if !ok {
		r.replyUnreachable(ctx, frame, icmpCodeNetUnknown)
		return
	}
	if sn.Owner == source {
		dlog.Warnf(ctx, "route: loop detected, %s owns the destination subnet it sent from", source.Name())
		return
	}
	if !sn.Owner.Reachable {
		r.replyUnreachable(ctx, frame, icmpCodeNetUnreachable)
		return
	}

	via := sn.Owner.Via
	if via == nil {
		via = sn.Owner
	}
	if via != r.Graph.Self && via.Tunnel != nil {
		mtu := via.Tunnel.MTU()
		if len(frame) > mtu {
			r.handleOversizeIPv4(ctx, frame, sn.Owner, mtu)
			return
		}
	}

	r.send(ctx, sn.Owner, frame)
}

func (r *Router) replyUnreachable(ctx context.Context, frame []byte, code uint8) {
	if !r.icmpLimiter.Allow(time.Now()) {
		return
	}
	reply := synthICMPUnreachable(frame, code, 0, r.SelfMAC)
	if reply == nil {
		return
	}
	r.send(ctx, r.Graph.Self, reply) // the replying node is always the one writing to its own device
}

// handleOversizeIPv4 implements the DF/fragment split.
func (r *Router) handleOversizeIPv4(ctx context.Context, frame []byte, owner *graph.Node, mtu int) {
	ipHdr := frame[etherHeaderLen:]
	flagsFrag := binary.BigEndian.Uint16(ipHdr[6:8])

	if flagsFrag&ipv4FlagDF != 0 {
		if !r.icmpLimiter.Allow(time.Now()) {
			return
		}
		reply := synthICMPUnreachable(frame, icmpCodeFragNeeded, uint16(mtu), r.SelfMAC)
		if reply != nil {
			r.send(ctx, r.Graph.Self, reply)
		}
		return
	}

	for _, frag := range fragmentIPv4(frame, mtu) {
		r.send(ctx, owner, frag)
	}
}

// fragmentIPv4 splits an oversize IPv4 Ethernet frame into a sequence of
// Ethernet frames each carrying one IP fragment: chunk size
// (mtu - ether - ip) &^ 7 (RFC 791 8-byte alignment, resolved as the
// bitwise-clear form rather than a naive "-8"), MF carried on every
// fragment but the last, frag_off advanced by chunk/8 words per fragment,
// and the IP header checksum recomputed for each.
func fragmentIPv4(frame []byte, mtu int) [][]byte {
	ipHdr := frame[etherHeaderLen:]
	ihl := int(ipHdr[0]&0x0F) * 4
	payload := ipHdr[ihl:]

	chunkSize := (mtu - etherHeaderLen - ihl) &^ 7
	if chunkSize <= 0 {
		return nil
	}

	origFlagsFrag := binary.BigEndian.Uint16(ipHdr[6:8])
	origMF := origFlagsFrag&ipv4FlagMF != 0
	baseFragOff := origFlagsFrag & ipv4FragOffMask

	var frags [][]byte
	for off := 0; off < len(payload); off += chunkSize {
		end := off + chunkSize
		last := end >= len(payload)
		if last {
			end = len(payload)
		}
		chunk := payload[off:end]

		out := make([]byte, etherHeaderLen+ihl+len(chunk))
		copy(out[:etherHeaderLen], frame[:etherHeaderLen])
		copy(out[etherHeaderLen:etherHeaderLen+ihl], ipHdr[:ihl])
		copy(out[etherHeaderLen+ihl:], chunk)

		fragIP := out[etherHeaderLen:]
		binary.BigEndian.PutUint16(fragIP[2:4], uint16(ihl+len(chunk)))

		mf := !last || origMF
		fragOff := baseFragOff + uint16(off/8)
		flagsFrag := fragOff
		if mf {
			flagsFrag |= ipv4FlagMF
		}
		binary.BigEndian.PutUint16(fragIP[6:8], flagsFrag)

		fragIP[10], fragIP[11] = 0, 0
		binary.BigEndian.PutUint16(fragIP[10:12], checksum16(fragIP[:ihl]))

		frags = append(frags, out)
	}
	return frags
}
