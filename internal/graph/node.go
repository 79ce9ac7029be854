// Package graph is the in-memory topology database: Nodes, Edges and
// Subnets, their caches, and the MST/SSSP algorithms that derive
// broadcast and unicast forwarding state from them. Plain pointers
// stand in for a handle/arena layer, since Go's garbage collector
// already resolves the cyclic-ownership problem such a layer would
// otherwise exist to solve; see DESIGN.md.
package graph

import (
	"regexp"

	"github.com/relaymesh/relayd/internal/tunnel"
)

// NamePattern is the name grammar required of a Node.
var NamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Node represents one participant daemon identity.
type Node struct {
	name string // immutable after creation

	Subnets map[SubnetKey]*Subnet
	Edges   map[string]*Edge // outgoing edges keyed by destination node name

	// Address is the transport address of this node as last observed.
	Address string

	// Tunnel is the live Up tunnel to this node, if it is a direct peer.
	// Nil for nodes only known indirectly.
	Tunnel tunnel.Tunnel

	// Forwarding scratch, recomputed by SSSP.
	NextHop   *Node
	Via       *Node
	Reachable bool
	Indirect  bool
	Options   uint32
	MTU       int
}

// Name returns the immutable node name.
func (n *Node) Name() string { return n.name }

func newNode(name string) *Node {
	return &Node{
		name:    name,
		Subnets: make(map[SubnetKey]*Subnet),
		Edges:   make(map[string]*Edge),
	}
}
