package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func biEdge(g *Graph, a, b *Node, weight int) {
	g.AddEdge(a, b, "", weight, 0)
	g.AddEdge(b, a, "", weight, 0)
}

func TestRunMSTTriangle(t *testing.T) {
	g := New("self")
	a := g.GetOrCreateNode("a")
	b := g.GetOrCreateNode("b")
	c := g.GetOrCreateNode("c")
	biEdge(g, a, b, 1)
	biEdge(g, b, c, 1)
	biEdge(g, a, c, 1)

	g.RunMST()

	mstCount := 0
	g.EachEdge(func(e *Edge) {
		if e.MST {
			mstCount++
		}
	})
	// A spanning tree over 3 nodes has 2 undirected edges == 4 directed entries.
	assert.Equal(t, 4, mstCount)
}

func TestRunMSTOneSidedEdgeNeverMST(t *testing.T) {
	g := New("self")
	a := g.GetOrCreateNode("a")
	b := g.GetOrCreateNode("b")
	g.AddEdge(a, b, "", 1, 0) // no reverse: not bidirectional

	g.RunMST()

	g.EachEdge(func(e *Edge) {
		assert.False(t, e.MST, "a unidirectional edge must never be marked mst")
	})
}

func TestRunMSTDisconnectedComponents(t *testing.T) {
	g := New("self")
	a := g.GetOrCreateNode("a")
	b := g.GetOrCreateNode("b")
	c := g.GetOrCreateNode("c")
	d := g.GetOrCreateNode("d")
	biEdge(g, a, b, 1)
	biEdge(g, c, d, 1)

	g.RunMST()

	mstCount := 0
	g.EachEdge(func(e *Edge) {
		if e.MST {
			mstCount++
		}
	})
	assert.Equal(t, 4, mstCount, "each 2-node component contributes its single edge in both directions")
}
