package graph

// Edge/peer option bits. Peer options (IndirectData, TCPOnly,
// PMTUDiscovery) and per-edge flags are kept as a single flat bitmask
// propagated verbatim end to end, with named bits layered over it rather
// than splitting storage — see DESIGN.md.
const (
	OptionIndirectData uint32 = 1 << iota
	OptionTCPOnly
	OptionPMTUDiscovery
)

// HasIndirectData reports whether opts carries the IndirectData bit.
func HasIndirectData(opts uint32) bool { return opts&OptionIndirectData != 0 }
