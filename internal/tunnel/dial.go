package tunnel

import (
	"context"
	"net"

	"github.com/relaymesh/relayd/internal/relayerr"
)

// Dial connects to addr, authenticates, and returns an Up Conn. Grounded
// on the connector-endpoint contract and the dial idiom of
// pkg/connpool/dialer.go.
func Dial(ctx context.Context, addr string, auth Authenticator, mtu int, cb Callbacks) (*Conn, error) {
	d := net.Dialer{}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	identity, err := auth.Authenticate(ctx, nc, true)
	if err != nil {
		_ = nc.Close()
		return nil, relayerr.Wrap(relayerr.AuthFailed, err)
	}
	return NewConn(nc, identity, mtu, cb), nil
}

// Listener accepts inbound handshakes, grounded on
// pkg/connpool/listener.go's accept-loop-plus-callback shape.
type Listener struct {
	ln   net.Listener
	auth Authenticator
	mtu  int
}

// Listen binds addr and returns a Listener ready to Accept.
func Listen(addr string, auth Authenticator, mtu int) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, auth: auth, mtu: mtu}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }
func (l *Listener) Close() error   { return l.ln.Close() }

// Accept blocks for the next inbound connection, authenticates it, and
// returns an Up Conn wired with cb.
func (l *Listener) Accept(ctx context.Context, cb Callbacks) (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	identity, err := l.auth.Authenticate(ctx, nc, false)
	if err != nil {
		_ = nc.Close()
		return nil, relayerr.Wrap(relayerr.AuthFailed, err)
	}
	return NewConn(nc, identity, l.mtu, cb), nil
}
