package meta

import (
	"context"
	"time"

	"github.com/relaymesh/relayd/internal/dlog"
)

const outgoingRetryStep = 5 * time.Second

// Dialer opens one outgoing tunnel connection to addr, blocking until the
// handshake completes or fails. Supplied by whatever wires up
// internal/tunnel.Dial plus an Authenticator; kept abstract here so this
// package does not need to know about net.Conn.
type Dialer func(ctx context.Context, addr string) (*Peer, error)

// Outgoing is the outgoing-connection manager: for each configured
// ConnectTo it maintains capped retry — on failure, retry after
// timeout += 5s, capped at maxTimeout (default 900s) — reset to the
// initial delay as soon as a dial succeeds, without waiting for the
// peer's ACK. Grounded on the doubling-backoff
// idiom of a retry helper found elsewhere in the ecosystem, adapted
// here to a linear-step rather than exponential-doubling growth rule.
type Outgoing struct {
	addr       string
	dial       Dialer
	maxTimeout time.Duration
	manager    *Manager

	cancel context.CancelFunc
}

// NewOutgoing starts (but does not yet connect) a retrying connector for
// one ConnectTo address.
func NewOutgoing(addr string, dial Dialer, maxTimeout time.Duration, manager *Manager) *Outgoing {
	return &Outgoing{addr: addr, dial: dial, maxTimeout: maxTimeout, manager: manager}
}

// Run blocks, connecting and reconnecting to o.addr until ctx is canceled.
// Each successful connection resets the retry delay; each failure grows it
// by outgoingRetryStep, capped at o.maxTimeout.
func (o *Outgoing) Run(ctx context.Context) {
	delay := outgoingRetryStep
	for {
		peer, err := o.dial(ctx, o.addr)
		if err != nil {
			dlog.Debugf(ctx, "meta: connect to %s failed, retrying in %s: %v", o.addr, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay += outgoingRetryStep
			if delay > o.maxTimeout {
				delay = o.maxTimeout
			}
			continue
		}

		delay = outgoingRetryStep
		peer.Outgoing = true
		if evicted := o.manager.AddPeer(peer); evicted != nil {
			// Concurrent duplicate connection to the same name: the
			// older connection loses.
			_ = evicted.Tun.Close()
			o.manager.Graph.RunSSSP()
		}
		if err := o.manager.Greet(peer); err != nil {
			dlog.Debugf(ctx, "meta: greeting %s failed: %v", o.addr, err)
		}

		select {
		case <-ctx.Done():
			_ = peer.Tun.Close()
			o.manager.RemovePeer(peer)
			return
		case <-peer.Closed:
			o.manager.RemovePeer(peer)
			o.manager.Graph.RunSSSP()
			// fall through to the top of the loop and reconnect
		}
	}
}
