package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSSSPDirectChain mirrors scenario E1: A-B-C chain, unicast from A to
// C must nexthop through B.
func TestSSSPDirectChain(t *testing.T) {
	g := New("a")
	b := g.GetOrCreateNode("b")
	c := g.GetOrCreateNode("c")
	biEdge(g, g.Self, b, 1)
	biEdge(g, b, c, 1)

	g.RunSSSP()

	assert.True(t, c.Reachable)
	assert.Same(t, b, c.NextHop)
	assert.Same(t, c, c.Via)
	assert.False(t, c.Indirect)
}

// TestSSSPEdgeChurnConvergence mirrors scenario E5.
func TestSSSPEdgeChurnConvergence(t *testing.T) {
	g := New("a")
	b := g.GetOrCreateNode("b")
	c := g.GetOrCreateNode("c")
	biEdge(g, g.Self, b, 1)
	biEdge(g, b, c, 1)
	biEdge(g, g.Self, c, 1)
	g.RunSSSP()
	require.True(t, c.Reachable)

	var transitions []bool
	g.OnReachability = func(n *Node, reachable bool) {
		if n == c {
			transitions = append(transitions, reachable)
		}
	}

	// DEL_EDGE(A,C) and DEL_EDGE(C,A): C stays reachable via B.
	g.DelEdge(g.Self, c)
	g.DelEdge(c, g.Self)
	g.RunSSSP()
	assert.True(t, c.Reachable)
	assert.Same(t, b, c.NextHop)
	assert.Empty(t, transitions, "no transition while C is still reachable via B")

	// DEL_EDGE(B,C) and DEL_EDGE(C,B): C becomes unreachable.
	g.DelEdge(b, c)
	g.DelEdge(c, b)
	g.RunSSSP()
	assert.False(t, c.Reachable)
	assert.Equal(t, []bool{false}, transitions, "exactly one became-unreachable notification")
}

// TestSSSPIndirectUpgrade exercises the re-visit-on-upgrade rule. BFS
// visits neighbors in name order, so self's indirect path through "x"
// (x < y) is discovered and queued before the direct path through "y"
// dequeues and must upgrade target's reachability from indirect to
// direct.
func TestSSSPIndirectUpgrade(t *testing.T) {
	g := New("a")
	x := g.GetOrCreateNode("x")
	y := g.GetOrCreateNode("y")
	target := g.GetOrCreateNode("z")

	biEdge(g, g.Self, x, 1)
	biEdge(g, g.Self, y, 1)

	// x->target carries IndirectData: reachable, but indirectly.
	eXT := g.AddEdge(x, target, "", 1, OptionIndirectData)
	eTX := g.AddEdge(target, x, "", 1, OptionIndirectData)
	eXT.Reverse, eTX.Reverse = eTX, eXT

	// y->target is a plain direct edge.
	biEdge(g, y, target, 1)

	g.RunSSSP()

	assert.True(t, target.Reachable)
	assert.False(t, target.Indirect, "the direct y-target edge must upgrade the earlier indirect x-target path")
	assert.Same(t, y, target.NextHop)
	assert.Same(t, target, target.Via)
}
