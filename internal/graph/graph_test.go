package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEdgeIdempotent(t *testing.T) {
	g := New("self")
	a := g.GetOrCreateNode("a")
	b := g.GetOrCreateNode("b")

	e1 := g.AddEdge(a, b, "10.0.0.1:655", 5, 0)
	require.Equal(t, 1, g.EdgeCount())
	e2 := g.AddEdge(a, b, "10.0.0.1:655", 5, 0)
	assert.Same(t, e1, e2)
	assert.Equal(t, 1, g.EdgeCount(), "re-adding the same edge must not duplicate it")
}

func TestDelEdgeUnknownIsNoop(t *testing.T) {
	g := New("self")
	a := g.GetOrCreateNode("a")
	b := g.GetOrCreateNode("b")
	assert.False(t, g.DelEdge(a, b))
}

func TestEdgeReverseInvariant(t *testing.T) {
	g := New("self")
	a := g.GetOrCreateNode("a")
	b := g.GetOrCreateNode("b")
	eAB := g.AddEdge(a, b, "", 1, 0)
	assert.Nil(t, eAB.Reverse)
	eBA := g.AddEdge(b, a, "", 1, 0)
	require.NotNil(t, eAB.Reverse)
	require.NotNil(t, eBA.Reverse)
	assert.Same(t, eBA, eAB.Reverse)
	assert.Same(t, eAB, eBA.Reverse)
	assert.True(t, eAB.Bidirectional())

	g.DelEdge(b, a)
	assert.Nil(t, eAB.Reverse, "deleting the reverse edge must clear the remaining edge's back-pointer")
	assert.False(t, eAB.Bidirectional())
}

func TestSubnetCacheFlushedOnMutation(t *testing.T) {
	g := New("self")
	c := g.GetOrCreateNode("c")
	s := NewIPv4Subnet(c, [4]byte{10, 0, 0, 0}, 24)
	g.AddSubnet(c, s)

	found, ok := g.LookupLPM(SubnetIPv4, []byte{10, 0, 0, 5})
	require.True(t, ok)
	assert.Same(t, s, found)
	assert.Len(t, g.cache, 1)

	g.DelSubnet(c, s.Key())
	assert.Empty(t, g.cache, "cache must be empty after any subnet mutation")
	_, ok = g.LookupLPM(SubnetIPv4, []byte{10, 0, 0, 5})
	assert.False(t, ok)
}

func TestLongestPrefixMatch(t *testing.T) {
	g := New("self")
	a := g.GetOrCreateNode("a")
	b := g.GetOrCreateNode("b")
	g.AddSubnet(a, NewIPv4Subnet(a, [4]byte{10, 0, 0, 0}, 16))
	g.AddSubnet(b, NewIPv4Subnet(b, [4]byte{10, 0, 5, 0}, 24))

	s, ok := g.LookupLPM(SubnetIPv4, []byte{10, 0, 5, 7})
	require.True(t, ok)
	assert.Same(t, b, s.Owner, "the /24 owned by b is more specific than the /16 owned by a")

	s, ok = g.LookupLPM(SubnetIPv4, []byte{10, 0, 9, 1})
	require.True(t, ok)
	assert.Same(t, a, s.Owner, "falls back to the containing /16")

	_, ok = g.LookupLPM(SubnetIPv4, []byte{192, 168, 0, 1})
	assert.False(t, ok)
}

func TestMACSubnetAging(t *testing.T) {
	g := New("self")
	a := g.GetOrCreateNode("a")
	past := time.Now().Add(-time.Minute)
	s := NewMACSubnet(a, [6]byte{0x02, 0, 0, 0, 0, 1}, past)
	g.AddSubnet(a, s)

	var expired []*Subnet
	g.AgeSubnets(a, time.Now(), func(s *Subnet) { expired = append(expired, s) })
	assert.Len(t, expired, 1)
	_, ok := g.LookupExact(s.Key())
	assert.False(t, ok)
}
