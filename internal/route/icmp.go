package route

import "encoding/binary"

// ICMP types/codes used by the synthesis rules below.
const (
	icmpTypeDestUnreachable = 3
	icmpCodeNetUnreachable  = 0
	icmpCodeNetUnknown      = 6
	icmpCodeFragNeeded      = 4

	icmp6TypeDestUnreachable = 1
	icmp6TypePacketTooBig    = 2
	icmp6CodeNoRoute         = 0

	icmp6TypeNeighborSolicitation  = 135
	icmp6TypeNeighborAdvertisement = 136
)

// synthICMPUnreachable builds a complete Ethernet+IPv4+ICMP "Destination
// Unreachable" frame in reply to origFrame, addressed back to its source.
// nextHopMTU is only meaningful for icmpCodeFragNeeded; it is ignored
// otherwise.
func synthICMPUnreachable(origFrame []byte, code uint8, nextHopMTU uint16, selfMAC [6]byte) []byte {
	ipHdr := origFrame[etherHeaderLen:]
	ihl := int(ipHdr[0]&0x0F) * 4
	if ihl < 20 || len(ipHdr) < ihl {
		return nil
	}

	// RFC 792: ICMP error carries the offending IP header plus its first
	// 8 bytes of payload.
	quoteLen := ihl + 8
	if quoteLen > len(ipHdr) {
		quoteLen = len(ipHdr)
	}
	quote := ipHdr[:quoteLen]

	icmpBody := make([]byte, 8+len(quote))
	icmpBody[0] = icmpTypeDestUnreachable
	icmpBody[1] = code
	binary.BigEndian.PutUint16(icmpBody[6:8], nextHopMTU)
	copy(icmpBody[8:], quote)
	binary.BigEndian.PutUint16(icmpBody[2:4], checksum16(icmpBody))

	return buildIPv4Reply(origFrame, selfMAC, 1 /* ICMP */, icmpBody)
}

// buildIPv4Reply wraps payload (already a complete upper-layer datagram,
// checksum included) in a new IPv4 header addressed from the original
// destination back to the original source, and an Ethernet header swapping
// MAC addresses, with selfMAC as the new source hardware address.
func buildIPv4Reply(origFrame []byte, selfMAC [6]byte, protocol uint8, payload []byte) []byte {
	origEther := origFrame[:etherHeaderLen]
	origIP := origFrame[etherHeaderLen:]

	totalLen := 20 + len(payload)
	out := make([]byte, etherHeaderLen+totalLen)

	copy(out[0:6], origEther[6:12]) // dest = original source MAC
	copy(out[6:12], selfMAC[:])
	out[12], out[13] = 0x08, 0x00 // IPv4

	ip := out[etherHeaderLen:]
	ip[0] = 0x45 // version 4, IHL 5
	ip[1] = 0
	binary.BigEndian.PutUint16(ip[2:4], uint16(totalLen))
	binary.BigEndian.PutUint16(ip[4:6], 0) // id
	binary.BigEndian.PutUint16(ip[6:8], 0) // flags/frag
	ip[8] = 64                             // TTL
	ip[9] = protocol
	copy(ip[16:20], origIP[12:16]) // src = original dest
	copy(ip[12:16], origIP[16:20]) // dst = original src
	binary.BigEndian.PutUint16(ip[10:12], checksum16(ip[:20]))
	copy(ip[20:], payload)

	return out
}

// synthICMPv6PacketTooBig builds an ICMPv6 Packet Too Big reply carrying
// mtu, standing in for the no-intermediary-fragmentation rule IPv6
// requires of every on-path router.
func synthICMPv6PacketTooBig(origFrame []byte, mtu uint32, selfMAC [6]byte) []byte {
	ipHdr := origFrame[etherHeaderLen:]
	if len(ipHdr) < 40 {
		return nil
	}
	quoteLen := len(ipHdr)
	if quoteLen > 1232 { // keep the reply itself comfortably under a minimum IPv6 MTU
		quoteLen = 1232
	}
	quote := ipHdr[:quoteLen]

	body := make([]byte, 8+len(quote))
	body[0] = icmp6TypePacketTooBig
	body[1] = 0
	binary.BigEndian.PutUint32(body[4:8], mtu)
	copy(body[8:], quote)

	var src, dst [16]byte
	copy(dst[:], ipHdr[8:24])  // reply to original source
	copy(src[:], ipHdr[24:40]) // from original destination
	pseudo := pseudoHeaderSum(src, dst, uint32(len(body)), 58 /* ICMPv6 */)
	binary.BigEndian.PutUint16(body[2:4], checksum16WithPseudo(pseudo, body))

	return buildIPv6Reply(origFrame, selfMAC, 58, body)
}

func buildIPv6Reply(origFrame []byte, selfMAC [6]byte, nextHeader uint8, payload []byte) []byte {
	origEther := origFrame[:etherHeaderLen]
	origIP := origFrame[etherHeaderLen:]

	out := make([]byte, etherHeaderLen+40+len(payload))
	copy(out[0:6], origEther[6:12])
	copy(out[6:12], selfMAC[:])
	out[12], out[13] = 0x86, 0xDD

	ip := out[etherHeaderLen:]
	ip[0] = 0x60 // version 6
	binary.BigEndian.PutUint16(ip[4:6], uint16(len(payload)))
	ip[6] = nextHeader
	ip[7] = 64 // hop limit
	copy(ip[8:24], origIP[24:40])  // src = original dest
	copy(ip[24:40], origIP[8:24]) // dst = original src
	copy(ip[40:], payload)
	return out
}
