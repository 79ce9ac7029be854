package graph

// Edge is a directed statement "node From asserts it has a link to node To
// with weight w". A bidirectional logical link exists iff both
// directions are present, tracked here via the Reverse back-pointer.
type Edge struct {
	From, To *Node

	// Address is the transport address of To as observed by From.
	Address string
	Weight  int
	Options uint32

	// Reverse points at the opposite-direction Edge, if one has been
	// learned, and is kept symmetric by AddEdge/DelEdge.
	Reverse *Edge

	// MST is the status.mst flag, owned exclusively by RunMST.
	MST bool
}

// Bidirectional reports whether a reverse edge is currently known.
func (e *Edge) Bidirectional() bool { return e.Reverse != nil }

// EdgeKey orders the global edge set by (weight, from.name, to.name) for
// the Kruskal-variant MST scan.
type EdgeKey struct {
	Weight int
	From   string
	To     string
}

func edgeKeyLess(a, b EdgeKey) bool {
	if a.Weight != b.Weight {
		return a.Weight < b.Weight
	}
	if a.From != b.From {
		return a.From < b.From
	}
	return a.To < b.To
}

func edgeKeyEqual(a, b EdgeKey) bool { return a == b }
