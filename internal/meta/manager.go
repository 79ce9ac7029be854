package meta

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/graph"
	"github.com/relaymesh/relayd/internal/relayerr"
)

// Manager is the peering manager: it owns the active peer registry, the
// request-dedup set, and the broadcast/forward policy for mutation
// opcodes. It does not own transport setup (dialing, accepting,
// authenticating); those are internal/tunnel's job, wired in by whatever
// constructs a Manager.
type Manager struct {
	Graph        *graph.Graph
	Peers        *Registry
	Seen         *SeenSet
	TunnelServer bool

	// SelfPort/SelfWeight are advertised in our own ACK reply, becoming
	// the Port/Weight fields of the Edge the peer creates for self->us.
	SelfPort   int
	SelfWeight int

	// OnGraphChanged is called after a mutation has been applied to the
	// graph (edge mutations have already re-run SSSP and MST); may be nil.
	OnGraphChanged func(ctx context.Context)
}

// NewManager constructs a Manager over an existing graph.
func NewManager(g *graph.Graph, tunnelServer bool) *Manager {
	return &Manager{
		Graph:        g,
		Peers:        NewRegistry(),
		Seen:         NewSeenSet(1024),
		TunnelServer: tunnelServer,
		SelfWeight:   1,
	}
}

// Greet sends our ID, the first meta message a newly connected peer
// sends on either side of the connection.
func (m *Manager) Greet(p *Peer) error {
	return p.SendLine(EncodeID(m.Graph.Self.Name(), ProtocolVersion))
}

// AddPeer registers p in the peer registry and wires its tunnel onto the
// corresponding graph Node, so the forwarding plane's send() can reach it.
// Returns the evicted peer, if a connection under the same name already
// existed (concurrent-duplicate-connection rule).
func (m *Manager) AddPeer(p *Peer) (evicted *Peer) {
	evicted = m.Peers.Put(p)
	node := m.Graph.GetOrCreateNode(p.Name)
	node.Tunnel = p.Tun
	return evicted
}

// RemovePeer unregisters p and clears its Node's Tunnel, unless a newer
// connection already replaced it there.
func (m *Manager) RemovePeer(p *Peer) {
	m.Peers.Remove(p)
	if node, ok := m.Graph.Node(p.Name); ok && node.Tunnel == p.Tun {
		node.Tunnel = nil
	}
}

// HandleMeta splits a META record into its (usually single) newline-
// terminated lines and dispatches each in turn. A tunnel's ReadLoop hands
// a Manager exactly one record's bytes at a time via this entry point.
func (m *Manager) HandleMeta(ctx context.Context, from *Peer, raw []byte) {
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := m.dispatch(ctx, from, line); err != nil {
			dlog.Warnf(ctx, "meta: from %s: %v", from.Name, err)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, from *Peer, line string) error {
	msg, err := Decode(line)
	if err != nil {
		return err
	}

	switch msg.Op {
	case OpID:
		return m.handleID(ctx, from, msg)
	case OpACK:
		return m.handleAck(ctx, from, msg)
	case OpPing:
		return from.SendLine(Encode(OpPong))
	case OpPong:
		return nil
	case OpAddSubnet:
		return m.handleAddSubnet(ctx, from, msg)
	case OpDelSubnet:
		return m.handleDelSubnet(ctx, from, msg)
	case OpAddEdge:
		return m.handleAddEdge(ctx, from, msg)
	case OpDelEdge:
		return m.handleDelEdge(ctx, from, msg)
	case OpKeyChanged:
		return m.handleKeyChanged(ctx, from, msg)
	case OpReqKey:
		return m.handleReqKey(ctx, from, msg)
	case OpAnsKey:
		return m.handleAnsKey(ctx, from, msg)
	default:
		return relayerr.Newf(relayerr.ProtocolError, "meta: unhandled opcode %s", msg.Op)
	}
}

// handleID completes the first half of the peering handshake: the
// transport layer has already verified the peer's identity during its
// own out-of-scope handshake, so ID here only checks protocol
// compatibility before replying with our own ACK.
func (m *Manager) handleID(ctx context.Context, from *Peer, msg Message) error {
	id, err := DecodeID(msg)
	if err != nil {
		return err
	}
	if id.Version != ProtocolVersion {
		return relayerr.Newf(relayerr.ProtocolError, "meta: %s: unsupported protocol version %d", from.Name, id.Version)
	}
	return from.SendLine(EncodeACK(m.SelfPort, m.SelfWeight, 0))
}

// handleAck finalises peering: it creates the Edge self->peer advertised
// by from's ACK and broadcasts the corresponding ADD_EDGE.
func (m *Manager) handleAck(ctx context.Context, from *Peer, msg Message) error {
	ack, err := DecodeACK(msg)
	if err != nil {
		return err
	}
	peerNode := m.Graph.GetOrCreateNode(from.Name)
	address := from.Address
	if address != "" {
		address = fmt.Sprintf("%s:%d", address, ack.Port)
	}
	peerNode.Address = address
	m.Graph.AddEdge(m.Graph.Self, peerNode, address, ack.Weight, ack.Options)
	m.Graph.RunSSSP()
	m.Graph.RunMST()
	m.changed(ctx)
	return m.Broadcast(EncodeAddEdge(AddEdge{
		Nonce:   NewNonce(),
		From:    m.Graph.Self.Name(),
		To:      from.Name,
		Address: address,
		Port:    ack.Port,
		Options: ack.Options,
		Weight:  ack.Weight,
	}))
}

func (m *Manager) changed(ctx context.Context) {
	if m.OnGraphChanged != nil {
		m.OnGraphChanged(ctx)
	}
}

func (m *Manager) handleAddSubnet(ctx context.Context, from *Peer, msg Message) error {
	as, err := DecodeAddSubnet(msg)
	if err != nil {
		return err
	}
	if m.Seen.Seen(as.Nonce) {
		return nil
	}
	owner := m.Graph.GetOrCreateNode(as.Owner)
	sn, err := graph.ParseSubnetString(owner, as.Subnet)
	if err != nil {
		return relayerr.Wrap(relayerr.ProtocolError, err)
	}
	m.Graph.AddSubnet(owner, sn)
	m.changed(ctx)
	return m.forwardMutation(from, Encode(OpAddSubnet, msg.Fields...))
}

func (m *Manager) handleDelSubnet(ctx context.Context, from *Peer, msg Message) error {
	ds, err := DecodeDelSubnet(msg)
	if err != nil {
		return err
	}
	if m.Seen.Seen(ds.Nonce) {
		return nil
	}
	owner := m.Graph.GetOrCreateNode(ds.Owner)
	sn, err := graph.ParseSubnetString(owner, ds.Subnet)
	if err != nil {
		return relayerr.Wrap(relayerr.ProtocolError, err)
	}
	m.Graph.DelSubnet(owner, sn.Key())
	m.changed(ctx)
	return m.forwardMutation(from, Encode(OpDelSubnet, msg.Fields...))
}

func (m *Manager) handleAddEdge(ctx context.Context, from *Peer, msg Message) error {
	ae, err := DecodeAddEdge(msg)
	if err != nil {
		return err
	}
	if m.Seen.Seen(ae.Nonce) {
		return nil
	}
	fromNode := m.Graph.GetOrCreateNode(ae.From)
	toNode := m.Graph.GetOrCreateNode(ae.To)
	m.Graph.AddEdge(fromNode, toNode, ae.Address, ae.Weight, ae.Options)
	m.Graph.RunSSSP()
	m.Graph.RunMST()
	m.changed(ctx)
	return m.forwardMutation(from, Encode(OpAddEdge, msg.Fields...))
}

func (m *Manager) handleDelEdge(ctx context.Context, from *Peer, msg Message) error {
	de, err := DecodeDelEdge(msg)
	if err != nil {
		return err
	}
	if m.Seen.Seen(de.Nonce) {
		return nil
	}
	fromNode := m.Graph.GetOrCreateNode(de.From)
	toNode := m.Graph.GetOrCreateNode(de.To)
	m.Graph.DelEdge(fromNode, toNode)
	m.Graph.RunSSSP()
	m.Graph.RunMST()
	m.changed(ctx)
	return m.forwardMutation(from, Encode(OpDelEdge, msg.Fields...))
}

func (m *Manager) handleKeyChanged(ctx context.Context, from *Peer, msg Message) error {
	kc, err := DecodeKeyChanged(msg)
	if err != nil {
		return err
	}
	if m.Seen.Seen(kc.Nonce) {
		return nil
	}
	dlog.Debugf(ctx, "meta: key changed for %s", kc.Name)
	return m.forwardMutation(from, Encode(OpKeyChanged, msg.Fields...))
}

// handleReqKey and handleAnsKey are targeted (not broadcast) messages:
// forward along the unicast nexthop toward "to". When this node is the
// destination the message is only logged: no ANS_KEY reply is sent and no
// key is installed.
func (m *Manager) handleReqKey(ctx context.Context, from *Peer, msg Message) error {
	rk, err := DecodeReqKey(msg)
	if err != nil {
		return err
	}
	if rk.To == m.Graph.Self.Name() {
		dlog.Debugf(ctx, "meta: REQ_KEY for self from %s", rk.From)
		return nil
	}
	return m.forwardTargeted(rk.To, Encode(OpReqKey, msg.Fields...))
}

func (m *Manager) handleAnsKey(ctx context.Context, from *Peer, msg Message) error {
	ak, err := DecodeAnsKey(msg)
	if err != nil {
		return err
	}
	if ak.To == m.Graph.Self.Name() {
		dlog.Debugf(ctx, "meta: ANS_KEY for self from %s", ak.From)
		return nil
	}
	return m.forwardTargeted(ak.To, Encode(OpAnsKey, msg.Fields...))
}

// forwardTargeted routes a unicast message toward dest's BFS nexthop,
// dropping it if there is no route.
func (m *Manager) forwardTargeted(dest, line string) error {
	n, ok := m.Graph.Node(dest)
	if !ok || !n.Reachable || n.NextHop == nil {
		return relayerr.Newf(relayerr.Unreachable, "meta: no route to %s", dest)
	}
	if n.NextHop == m.Graph.Self {
		return nil // nexthop is self: message has arrived, nothing to relay
	}
	peer, ok := m.Peers.Get(n.NextHop.Name())
	if !ok {
		return relayerr.Newf(relayerr.Unreachable, "meta: nexthop %s has no active tunnel", n.NextHop.Name())
	}
	return peer.SendLine(line)
}

// forwardMutation applies broadcast policy: send to every active peer
// other than the one the message arrived from. In TunnelServer (star
// hub) mode the hub never re-broadcasts a leaf's mutation to other
// leaves; see the resolution recorded in DESIGN.md.
func (m *Manager) forwardMutation(from *Peer, line string) error {
	if m.TunnelServer {
		return nil
	}
	var errs *multierror.Error
	m.Peers.Each(func(p *Peer) {
		if p == from {
			return
		}
		if err := p.SendLine(line); err != nil {
			errs = multierror.Append(errs, relayerr.Wrap(relayerr.Transient, err))
		}
	})
	return errs.ErrorOrNil()
}

// Broadcast sends line to every active peer, used for messages this node
// itself originates (e.g. its own ADD_SUBNET for a freshly learned MAC).
func (m *Manager) Broadcast(line string) error {
	var errs *multierror.Error
	m.Peers.Each(func(p *Peer) {
		if err := p.SendLine(line); err != nil {
			errs = multierror.Append(errs, relayerr.Wrap(relayerr.Transient, err))
		}
	})
	return errs.ErrorOrNil()
}
