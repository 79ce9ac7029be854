package graph

import "sort"

// RunMST recomputes status.mst over the global edge set using a
// Kruskal variant: walk the weight-ordered edge set, marking an edge
// (and its reverse) mst iff it is bidirectional and exactly one endpoint
// is currently visited. An edge skipped because both endpoints are
// unvisited is revisited once a safe edge has grown the visited set, by
// rescanning from the head — this avoids an explicit union-find forest
// at the cost of an O(|E|·|V|) bound, acceptable at the tens-of-nodes
// target scale.
func (g *Graph) RunMST() {
	g.EachEdge(func(e *Edge) { e.MST = false })

	var edges []*Edge
	g.EachEdge(func(e *Edge) { edges = append(edges, e) })

	var names []string
	g.EachNode(func(n *Node) { names = append(names, n.name) })
	sort.Strings(names)

	visited := make(map[string]bool, len(names))
	for _, seedName := range names {
		if visited[seedName] {
			continue
		}
		visited[seedName] = true
		for {
			added := false
			for _, e := range edges {
				if !e.Bidirectional() {
					continue
				}
				fv, tv := visited[e.From.name], visited[e.To.name]
				if fv == tv {
					continue // both visited or both unvisited: not a safe edge right now
				}
				e.MST = true
				e.Reverse.MST = true
				if fv {
					visited[e.To.name] = true
				} else {
					visited[e.From.name] = true
				}
				added = true
				break // rescan from the head
			}
			if !added {
				break
			}
		}
	}
}
