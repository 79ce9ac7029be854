package graph

import (
	"time"

	"github.com/relaymesh/relayd/internal/ordmap"
)

// ReachabilityObserver is notified when a Node's Reachable flag flips:
// the "became reachable / became unreachable" hook.
type ReachabilityObserver func(n *Node, reachable bool)

// Graph is the single value holding nodes, edges, subnets and their
// caches, created once at startup and threaded through every handler
// instead of package globals.
type Graph struct {
	Self *Node

	nodes   *ordmap.Map[string, *Node]
	edges   *ordmap.Map[EdgeKey, *Edge]
	subnets *ordmap.Map[SubnetKey, *Subnet]
	cache   map[SubnetKey]*Subnet

	OnReachability ReachabilityObserver
}

// New creates a Graph whose self node is named selfName.
func New(selfName string) *Graph {
	g := &Graph{
		nodes:   ordmap.New[string, *Node](func(a, b string) bool { return a < b }, func(a, b string) bool { return a == b }),
		edges:   ordmap.New[EdgeKey, *Edge](edgeKeyLess, edgeKeyEqual),
		subnets: ordmap.New[SubnetKey, *Subnet](subnetKeyLess, subnetKeyEqual),
		cache:   make(map[SubnetKey]*Subnet),
	}
	g.Self = g.GetOrCreateNode(selfName)
	g.Self.Reachable = true
	g.Self.NextHop = g.Self
	g.Self.Via = g.Self
	return g
}

// GetOrCreateNode returns the Node named name, creating it (unreachable,
// no edges, no subnets) if this is its first mention.
func (g *Graph) GetOrCreateNode(name string) *Node {
	if n, ok := g.nodes.Get(name); ok {
		return n
	}
	n := newNode(name)
	g.nodes.Insert(name, n)
	return n
}

// Node looks up a node by name without creating it.
func (g *Graph) Node(name string) (*Node, bool) { return g.nodes.Get(name) }

// EachNode visits every node in ascending name order.
func (g *Graph) EachNode(fn func(*Node)) {
	g.nodes.Each(func(_ string, n *Node) { fn(n) })
}

// NodeCount returns the number of known nodes.
func (g *Graph) NodeCount() int { return g.nodes.Len() }

// AddEdge learns that from asserts a link to to with the given observed
// address, weight and options. Idempotent: adding the same edge twice
// updates its attributes in place rather than creating a duplicate.
// Reverse links are (re)computed symmetrically.
func (g *Graph) AddEdge(from, to *Node, address string, weight int, options uint32) *Edge {
	if e, ok := from.Edges[to.name]; ok {
		if e.Weight != weight {
			g.edges.Remove(EdgeKey{Weight: e.Weight, From: from.name, To: to.name})
			g.edges.Insert(EdgeKey{Weight: weight, From: from.name, To: to.name}, e)
		}
		e.Address = address
		e.Weight = weight
		e.Options = options
		return e
	}
	e := &Edge{From: from, To: to, Address: address, Weight: weight, Options: options}
	from.Edges[to.name] = e
	g.edges.Insert(EdgeKey{Weight: weight, From: from.name, To: to.name}, e)

	if rev, ok := to.Edges[from.name]; ok {
		e.Reverse = rev
		rev.Reverse = e
	}
	return e
}

// DelEdge removes the edge from->to, if any; a no-op for an unknown
// edge. Its reverse (if any) has its Reverse pointer cleared rather
// than being removed itself.
func (g *Graph) DelEdge(from, to *Node) bool {
	e, ok := from.Edges[to.name]
	if !ok {
		return false
	}
	if e.Reverse != nil {
		e.Reverse.Reverse = nil
	}
	delete(from.Edges, to.name)
	g.edges.Remove(EdgeKey{Weight: e.Weight, From: from.name, To: to.name})
	return true
}

// EachEdge visits every edge in (weight, from, to) order — the order the
// Kruskal-variant MST scan requires.
func (g *Graph) EachEdge(fn func(*Edge)) {
	g.edges.Each(func(_ EdgeKey, e *Edge) { fn(e) })
}

// EdgeCount returns the number of known (directed) edges.
func (g *Graph) EdgeCount() int { return g.edges.Len() }

// AddSubnet inserts (or refreshes the expiry of) a subnet owned by
// owner, flushing the lookup cache to keep it coherent with the
// underlying collection. Returns the stored Subnet (which may be the
// pre-existing one if the key already existed).
func (g *Graph) AddSubnet(owner *Node, s *Subnet) *Subnet {
	s.Owner = owner
	key := s.Key()
	if existing, ok := owner.Subnets[key]; ok {
		existing.Expires = s.Expires
		g.FlushCache()
		return existing
	}
	owner.Subnets[key] = s
	g.subnets.Insert(key, s)
	g.FlushCache()
	return s
}

// DelSubnet removes the subnet identified by key from owner, flushing the
// cache. A no-op if not present.
func (g *Graph) DelSubnet(owner *Node, key SubnetKey) bool {
	if _, ok := owner.Subnets[key]; !ok {
		return false
	}
	delete(owner.Subnets, key)
	g.subnets.Remove(key)
	g.FlushCache()
	return true
}

// FlushCache empties the lookup cache. Must be called after any add/del
// of any Subnet.
func (g *Graph) FlushCache() {
	for k := range g.cache {
		delete(g.cache, k)
	}
}

// LookupExact returns the subnet stored at exactly key, e.g. for MAC
// destination lookup, which always requires an exact match.
func (g *Graph) LookupExact(key SubnetKey) (*Subnet, bool) {
	if s, ok := g.cache[key]; ok {
		return s, true
	}
	s, ok := g.subnets.Get(key)
	if ok {
		g.cache[key] = s
	}
	return s, ok
}

// LookupLPM returns the longest-prefix-matching subnet of the given kind
// containing addr (4 bytes for IPv4, 16 for IPv6). It probes the ordered
// collection at the widest possible prefix and walks toward the
// predecessor, narrowing the candidate prefix until a containing subnet
// is found. The cache is consulted first, keyed by (kind, addr,
// maxPrefix) — a hit only ever reflects a previous full-width query.
func (g *Graph) LookupLPM(kind SubnetKind, addr []byte) (*Subnet, bool) {
	maxPrefix := 32
	if kind == SubnetIPv6 {
		maxPrefix = 128
	}
	var probe SubnetKey
	probe.Kind = kind
	copy(probe.Addr[:], addr)
	probe.Prefix = maxPrefix

	if s, ok := g.cache[probe]; ok {
		return s, true
	}

	key, s, ok := g.subnets.Floor(probe)
	for ok && key.Kind == kind {
		if s.Contains(addr) {
			g.cache[probe] = s
			return s, true
		}
		key, s, ok = g.subnets.Predecessor(key)
	}
	return nil, false
}

// AgeSubnets deletes every MAC subnet owned by owner whose expiry has
// passed as of now, invoking onExpire for each (so the caller can
// broadcast DEL_SUBNET) before removing it.
func (g *Graph) AgeSubnets(owner *Node, now time.Time, onExpire func(*Subnet)) {
	var expired []SubnetKey
	for key, s := range owner.Subnets {
		if s.Kind == SubnetMAC && s.Expired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		s := owner.Subnets[key]
		if onExpire != nil {
			onExpire(s)
		}
		g.DelSubnet(owner, key)
	}
}
