package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/relayd/internal/graph"
	"github.com/relaymesh/relayd/internal/tunnel"
)

// recordingTunnel is a minimal tunnel.Tunnel that records every META line
// sent through it, for asserting forwarding/broadcast behavior without a
// real network connection.
type recordingTunnel struct {
	sent   []string
	closed bool
}

func (t *recordingTunnel) SendMeta(buf []byte) error {
	t.sent = append(t.sent, string(buf))
	return nil
}
func (t *recordingTunnel) SendPacket(buf []byte) error { return nil }
func (t *recordingTunnel) State() tunnel.State         { return tunnel.StateUp }
func (t *recordingTunnel) MTU() int                    { return 1500 }
func (t *recordingTunnel) PeerIdentity() string        { return "" }
func (t *recordingTunnel) Close() error                { t.closed = true; return nil }

func newTestPeer(name string) (*Peer, *recordingTunnel) {
	rt := &recordingTunnel{}
	p := NewPeer(name, "203.0.113.1", rt)
	return p, rt
}

func TestForwardMutationSkipsOrigin(t *testing.T) {
	g := graph.New("self")
	m := NewManager(g, false)

	origin, originTun := newTestPeer("origin")
	other, otherTun := newTestPeer("other")
	m.Peers.Put(origin)
	m.Peers.Put(other)

	require.NoError(t, m.forwardMutation(origin, "hello"))
	assert.Empty(t, originTun.sent, "the message must not be echoed back to its origin")
	assert.Equal(t, []string{"hello"}, otherTun.sent)
}

func TestForwardMutationSuppressedInTunnelServerMode(t *testing.T) {
	g := graph.New("self")
	m := NewManager(g, true)

	origin, _ := newTestPeer("origin")
	other, otherTun := newTestPeer("other")
	m.Peers.Put(origin)
	m.Peers.Put(other)

	require.NoError(t, m.forwardMutation(origin, "hello"))
	assert.Empty(t, otherTun.sent, "a hub must never re-broadcast a leaf's mutation")
}

func TestHandleAddEdgeAppliesAndForwards(t *testing.T) {
	g := graph.New("self")
	m := NewManager(g, false)

	origin, _ := newTestPeer("a")
	other, otherTun := newTestPeer("other")
	m.Peers.Put(origin)
	m.Peers.Put(other)

	line := EncodeAddEdge(AddEdge{Nonce: 1, From: "self", To: "a", Address: "1.2.3.4:655", Port: 655, Weight: 1})
	msg, err := Decode(line[:len(line)-1])
	require.NoError(t, err)
	require.NoError(t, m.handleAddEdge(nil, origin, msg))

	_, ok := g.Node("a")
	assert.True(t, ok)
	assert.Len(t, otherTun.sent, 1)
}

func TestHandleAddEdgeDuplicateNonceIgnored(t *testing.T) {
	g := graph.New("self")
	m := NewManager(g, false)
	origin, _ := newTestPeer("a")
	m.Peers.Put(origin)

	line := EncodeAddEdge(AddEdge{Nonce: 7, From: "self", To: "a", Weight: 1})
	msg, err := Decode(line[:len(line)-1])
	require.NoError(t, err)
	require.NoError(t, m.handleAddEdge(nil, origin, msg))
	require.NoError(t, m.handleAddEdge(nil, origin, msg))
	assert.Equal(t, 1, g.EdgeCount(), "a duplicate nonce must not reapply the mutation")
}

func TestHandleIDRepliesWithAck(t *testing.T) {
	g := graph.New("self")
	m := NewManager(g, false)
	m.SelfPort = 655
	m.SelfWeight = 3

	peer, tun := newTestPeer("a")
	msg, err := Decode(EncodeID("a", ProtocolVersion))
	require.NoError(t, err)
	require.NoError(t, m.handleID(nil, peer, msg))

	require.Len(t, tun.sent, 1)
	ackMsg, err := Decode(tun.sent[0])
	require.NoError(t, err)
	ack, err := DecodeACK(ackMsg)
	require.NoError(t, err)
	assert.Equal(t, 655, ack.Port)
	assert.Equal(t, 3, ack.Weight)
}

func TestHandleIDRejectsWrongVersion(t *testing.T) {
	g := graph.New("self")
	m := NewManager(g, false)
	peer, _ := newTestPeer("a")
	msg, err := Decode(EncodeID("a", ProtocolVersion+1))
	require.NoError(t, err)
	assert.Error(t, m.handleID(nil, peer, msg))
}

func TestHandleAckCreatesEdgeAndBroadcasts(t *testing.T) {
	g := graph.New("self")
	m := NewManager(g, false)

	peer, _ := newTestPeer("a")
	other, otherTun := newTestPeer("other")
	m.Peers.Put(peer)
	m.Peers.Put(other)

	msg, err := Decode(EncodeACK(655, 2, 0))
	require.NoError(t, err)
	require.NoError(t, m.handleAck(nil, peer, msg))

	a, ok := g.Node("a")
	require.True(t, ok)
	edge := g.Self.Edges["a"]
	require.NotNil(t, edge)
	assert.Equal(t, "203.0.113.1:655", edge.Address)
	assert.Equal(t, 2, edge.Weight)
	assert.Same(t, a, edge.To)
	assert.Len(t, otherTun.sent, 1, "the new edge must be broadcast to other peers")
}

func TestForwardTargetedDropsWhenUnreachable(t *testing.T) {
	g := graph.New("self")
	m := NewManager(g, false)
	err := m.forwardTargeted("nowhere", "line")
	assert.Error(t, err)
}
