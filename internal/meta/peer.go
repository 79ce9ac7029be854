package meta

import (
	"sync"

	"github.com/relaymesh/relayd/internal/tunnel"
)

// Peer is one active meta-protocol connection, pairing a tunnel with the
// graph Node name it was authenticated as.
type Peer struct {
	Name string
	Tun  tunnel.Tunnel

	// Address is the remote host (no port) this connection was reached
	// at, as observed at the transport layer. It becomes the Address
	// field of the self->peer Edge created on ACK.
	Address string

	// Outgoing is set when this peer originated from our own ConnectTo
	// list, so the outgoing connection manager knows to retry it on
	// disconnect instead of waiting for the far end to reconnect.
	Outgoing bool

	// Closed is closed exactly once, by whoever wires up the tunnel's
	// OnClosed callback, when the underlying tunnel goes down for any
	// reason. Outgoing.Run watches it to trigger a reconnect.
	Closed chan struct{}
}

// NewPeer wraps an authenticated tunnel as a Peer ready for registration.
// address is the remote host this tunnel connects to, used for the Edge
// created once ID/ACK peering completes.
func NewPeer(name, address string, tun tunnel.Tunnel) *Peer {
	return &Peer{Name: name, Address: address, Tun: tun, Closed: make(chan struct{})}
}

// SendLine writes one meta-protocol line to the peer's tunnel as a single
// META record. Errors surface as relayerr.TunnelClosed via tunnel.Tunnel.
func (p *Peer) SendLine(line string) error {
	return p.Tun.SendMeta([]byte(line))
}

// Registry tracks the set of currently peered connections by name.
// Concurrent-duplicate-connection handling (the older connection is
// terminated in favor of the newer one) lives here since it is Registry
// that knows whether a name is already taken.
type Registry struct {
	mu    sync.Mutex
	peers map[string]*Peer
}

// NewRegistry returns an empty peer registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// Put installs peer under its Name. If a peer already exists under that
// name, it is returned as evicted so the caller can close its tunnel and
// re-run BFS, matching the "older connection is terminated" rule.
func (r *Registry) Put(p *Peer) (evicted *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted = r.peers[p.Name]
	r.peers[p.Name] = p
	return evicted
}

// Remove drops a peer if it is still the one registered under its name
// (a newer connection may already have replaced it).
func (r *Registry) Remove(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[p.Name]; ok && cur == p {
		delete(r.peers, p.Name)
	}
}

// Get looks up the active peer for a node name.
func (r *Registry) Get(name string) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[name]
	return p, ok
}

// Each calls fn for every currently registered peer. fn must not mutate
// the registry.
func (r *Registry) Each(fn func(*Peer)) {
	r.mu.Lock()
	snapshot := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		snapshot = append(snapshot, p)
	}
	r.mu.Unlock()
	for _, p := range snapshot {
		fn(p)
	}
}

// Len reports the number of active peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
