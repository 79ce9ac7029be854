package graph

import "sort"

// sortedEdges returns n's outgoing edges ordered by destination name, so
// that BFS visits neighbors deterministically: cross-tunnel arrival
// order is otherwise unspecified, but a single BFS run must still be
// reproducible.
func sortedEdges(n *Node) []*Edge {
	edges := make([]*Edge, 0, len(n.Edges))
	for _, e := range n.Edges {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].To.name < edges[j].To.name })
	return edges
}

// RunSSSP recomputes the shortest-path/reachability tree from Self using
// a BFS, firing OnReachability for every node whose Reachable flag
// flipped versus the previous run.
func (g *Graph) RunSSSP() {
	old := make(map[string]bool, g.nodes.Len())
	g.EachNode(func(n *Node) {
		old[n.name] = n.Reachable
		n.Reachable = false
		n.NextHop = nil
		n.Via = nil
		n.Indirect = false
		n.Options = 0
	})

	self := g.Self
	self.Reachable = true
	self.NextHop = self
	self.Via = self
	self.Indirect = false

	visited := map[string]bool{self.name: true}
	queue := []*Node{self}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		for _, e := range sortedEdges(n) {
			if !e.Bidirectional() {
				continue
			}
			t := e.To

			newIndirect := n.Indirect ||
				HasIndirectData(e.Options) ||
				(n != self && n.Address != e.Reverse.Address)

			var newNextHop *Node
			if n == self {
				newNextHop = t
			} else {
				newNextHop = n.NextHop
			}

			var newVia *Node
			if newIndirect {
				newVia = n.Via
			} else {
				newVia = t
			}

			switch {
			case !visited[t.name]:
				t.NextHop = newNextHop
				t.Via = newVia
				t.Indirect = newIndirect
				t.Options = e.Options
				t.Reachable = true
				visited[t.name] = true
				queue = append(queue, t)
			case t.Indirect && !newIndirect:
				// Upgrade from indirect to direct; re-enqueue so nodes
				// reachable through t can also upgrade.
				t.NextHop = newNextHop
				t.Via = newVia
				t.Indirect = newIndirect
				t.Options = e.Options
				queue = append(queue, t)
			default:
				// Not an improvement; skip.
			}
		}
	}

	g.EachNode(func(n *Node) {
		if old[n.name] != n.Reachable && g.OnReachability != nil {
			g.OnReachability(n, n.Reachable)
		}
	})
}
