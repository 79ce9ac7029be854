package daemon

import (
	"context"
	"strconv"
	"time"

	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/fdloop"
	"github.com/relaymesh/relayd/internal/meta"
	"github.com/relaymesh/relayd/internal/relayerr"
	"github.com/relaymesh/relayd/internal/tunnel"
)

const (
	macAgeInterval = 60 * time.Second
	defaultPort    = "655"
)

// Run binds the listener, starts one Outgoing connector per ConnectTo
// entry, starts the device read pump, and runs the event loop until ctx
// is canceled. It blocks for the lifetime of the daemon.
func (d *Daemon) Run(ctx context.Context, loop *fdloop.Loop) error {
	port := defaultPort
	if d.Meta.SelfPort > 0 {
		port = strconv.Itoa(d.Meta.SelfPort)
	}
	bindAddr := d.Config.ResolveBindAddr(port)
	ln, err := tunnel.Listen(bindAddr, d.auth, defaultDeviceMTU)
	if err != nil {
		return relayerr.Wrap(relayerr.ConfigError, err)
	}
	d.listener = ln
	defer ln.Close()

	go d.acceptLoop(ctx, loop)

	for _, addr := range d.Config.ConnectTo {
		out := meta.NewOutgoing(addr, d.dialer(loop), d.Config.MaxTimeout, d.Meta)
		d.outgoing = append(d.outgoing, out)
		go out.Run(ctx)
	}

	go d.deviceReadLoop(ctx, loop)

	loop.AddTimer(time.Now().Add(macAgeInterval), macAgeInterval, func() bool {
		d.Router.AgeLearnedSubnets(time.Now())
		return true
	})

	return loop.Run(ctx)
}

// acceptLoop accepts inbound tunnel connections and hands each off to
// adoptConn for Peer registration.
func (d *Daemon) acceptLoop(ctx context.Context, loop *fdloop.Loop) {
	for {
		var peer *meta.Peer
		conn, err := d.listener.Accept(ctx, d.connCallbacks(ctx, loop, &peer))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			dlog.Warnf(ctx, "daemon: accept failed: %v", err)
			continue
		}
		d.adopt(ctx, loop, conn, &peer, false)
	}
}

// dialer adapts tunnel.Dial plus Peer adoption into the meta.Dialer shape
// Outgoing expects, so each retry attempt registers through the same path
// as an inbound accept.
func (d *Daemon) dialer(loop *fdloop.Loop) meta.Dialer {
	return func(ctx context.Context, addr string) (*meta.Peer, error) {
		var peer *meta.Peer
		conn, err := tunnel.Dial(ctx, addr, d.auth, defaultDeviceMTU, d.connCallbacks(ctx, loop, &peer))
		if err != nil {
			return nil, err
		}
		host, _ := splitHostPort(addr)
		peer = meta.NewPeer(conn.PeerIdentity(), host, conn)
		go conn.ReadLoop(ctx)
		return peer, nil
	}
}

// connCallbacks builds the tunnel.Callbacks for a connection whose Peer
// is not yet known (authentication, and thus PeerIdentity, only completes
// inside Dial/Accept). peerSlot is filled in by the caller immediately
// after Dial/Accept returns and before ReadLoop starts, so by the time
// any of these callbacks actually fire *peerSlot is always valid.
func (d *Daemon) connCallbacks(ctx context.Context, loop *fdloop.Loop, peerSlot **meta.Peer) tunnel.Callbacks {
	return tunnel.Callbacks{
		OnMeta: func(ctx context.Context, buf []byte) {
			loop.Dispatch(func() { d.Meta.HandleMeta(ctx, *peerSlot, buf) })
		},
		OnPacket: func(ctx context.Context, buf []byte) {
			loop.Dispatch(func() {
				node, ok := d.Graph.Node((*peerSlot).Name)
				if !ok {
					return
				}
				d.Router.HandleFrame(ctx, node, buf)
			})
		},
		OnClosed: func(ctx context.Context, cause error) {
			p := *peerSlot
			close(p.Closed)
			loop.Dispatch(func() {
				d.Meta.RemovePeer(p)
				d.Graph.RunSSSP()
			})
		},
	}
}

// adopt registers an inbound Conn's freshly authenticated Peer and greets
// it, mirroring the path Outgoing drives for dialed connections.
func (d *Daemon) adopt(ctx context.Context, loop *fdloop.Loop, conn *tunnel.Conn, peerSlot **meta.Peer, outgoing bool) {
	peer := meta.NewPeer(conn.PeerIdentity(), "", conn)
	peer.Outgoing = outgoing
	*peerSlot = peer
	loop.Dispatch(func() {
		if evicted := d.Meta.AddPeer(peer); evicted != nil {
			_ = evicted.Tun.Close()
			d.Graph.RunSSSP()
		}
		if err := d.Meta.Greet(peer); err != nil {
			dlog.Debugf(ctx, "daemon: greeting inbound peer %s failed: %v", peer.Name, err)
		}
	})
	go conn.ReadLoop(ctx)
}

// deviceReadLoop pumps frames off the local VND into the router, via
// Dispatch so HandleFrame always runs on the loop goroutine even though
// the device read itself blocks on a separate goroutine.
func (d *Daemon) deviceReadLoop(ctx context.Context, loop *fdloop.Loop) {
	for {
		frame, err := d.Device.ReadPacket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			dlog.Warnf(ctx, "daemon: device read failed: %v", err)
			continue
		}
		buf := append([]byte(nil), frame...)
		loop.Dispatch(func() {
			d.Router.HandleFrame(ctx, d.Graph.Self, buf)
		})
	}
}
