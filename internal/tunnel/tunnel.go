// Package tunnel implements the tunnel transport contract: a reliable,
// in-order, authenticated duplex channel carrying length-prefixed META
// and PACKET records. The cryptographic handshake itself is out of
// scope; Authenticator is the seam an implementation plugs a real
// handshake into.
//
// Framing on the wire:
//
//	u16 type   (0 = PACKET, 1 = META)
//	u16 len
//	u8  data[len]
//
// grounded on the length-prefixed multiplexed record framing of
// pkg/connpool/muxtunnel.go.
package tunnel

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/relaymesh/relayd/internal/dlog"
	"github.com/relaymesh/relayd/internal/relayerr"
)

// RecordType distinguishes the two record kinds carried by a Tunnel.
type RecordType uint16

const (
	RecordPacket RecordType = 0
	RecordMeta   RecordType = 1
)

// MaxRecordSize is the reassembly buffer cap (4 KiB).
const MaxRecordSize = 4096

// State is a Tunnel's position in the Down→Connecting→Handshake→Up→Down
// state machine. Closure is terminal.
type State int

const (
	StateDown State = iota
	StateConnecting
	StateHandshake
	StateUp
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateConnecting:
		return "connecting"
	case StateHandshake:
		return "handshake"
	case StateUp:
		return "up"
	default:
		return "unknown"
	}
}

// Callbacks are invoked exactly once per inbound record.
type Callbacks struct {
	OnPacket func(ctx context.Context, buf []byte)
	OnMeta   func(ctx context.Context, buf []byte)
	// OnClosed is invoked once, when the tunnel transitions to Down for
	// any reason (peer close, local close, or protocol error).
	OnClosed func(ctx context.Context, cause error)
}

// Authenticator performs (or fakes, in tests) the handshake that yields a
// verified peer identity. It is the seam that keeps the cryptographic
// handshake itself out of scope.
type Authenticator interface {
	// Authenticate runs over conn and returns the verified peer identity
	// string, which the core then must match against a known Node name.
	Authenticate(ctx context.Context, conn net.Conn, isInitiator bool) (identity string, err error)
}

// Tunnel is the authenticated transport contract the routing core sends
// and receives records over.
type Tunnel interface {
	// SendMeta/SendPacket buffer-and-drain to completion; both fail with
	// relayerr.TunnelClosed if the peer has gone away.
	SendMeta(buf []byte) error
	SendPacket(buf []byte) error
	State() State
	// MTU is the observed path MTU; it may change at any time.
	MTU() int
	PeerIdentity() string
	Close() error
}

// Conn is a concrete Tunnel over a net.Conn (TCP by default), grounded on
// the dial/accept split of pkg/connpool/dialer.go and
// pkg/connpool/listener.go. Sends are synchronous: SendMeta/SendPacket
// write the record header and body to the net.Conn before returning and
// block the calling goroutine until the writes complete.
type Conn struct {
	mu     sync.Mutex
	conn   net.Conn
	state  State
	mtu    int
	peer   string
	cb     Callbacks
	closed bool
}

// NewConn wraps an already-authenticated net.Conn as an Up tunnel.
func NewConn(conn net.Conn, peerIdentity string, mtu int, cb Callbacks) *Conn {
	return &Conn{conn: conn, state: StateUp, mtu: mtu, peer: peerIdentity, cb: cb}
}

func (c *Conn) State() State        { c.mu.Lock(); defer c.mu.Unlock(); return c.state }
func (c *Conn) MTU() int            { c.mu.Lock(); defer c.mu.Unlock(); return c.mtu }
func (c *Conn) SetMTU(mtu int)      { c.mu.Lock(); c.mtu = mtu; c.mu.Unlock() }
func (c *Conn) PeerIdentity() string { return c.peer }

func (c *Conn) send(rt RecordType, buf []byte) error {
	c.mu.Lock()
	if c.closed || c.state != StateUp {
		c.mu.Unlock()
		return relayerr.Wrap(relayerr.TunnelClosed, fmt.Errorf("tunnel to %s is not up", c.peer))
	}
	conn := c.conn
	c.mu.Unlock()

	if len(buf) > 0xFFFF {
		return relayerr.Wrap(relayerr.ProtocolError, fmt.Errorf("record of %d bytes exceeds wire length field", len(buf)))
	}
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint16(hdr[0:2], uint16(rt))
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(buf)))
	if _, err := conn.Write(hdr); err != nil {
		return c.fail(err)
	}
	if len(buf) > 0 {
		if _, err := conn.Write(buf); err != nil {
			return c.fail(err)
		}
	}
	return nil
}

func (c *Conn) fail(err error) error {
	_ = c.Close()
	return relayerr.Wrap(relayerr.TunnelClosed, err)
}

func (c *Conn) SendMeta(buf []byte) error   { return c.send(RecordMeta, buf) }
func (c *Conn) SendPacket(buf []byte) error { return c.send(RecordPacket, buf) }

// Close transitions the tunnel to Down. Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateDown
	conn := c.conn
	c.mu.Unlock()
	return conn.Close()
}

// ReadLoop blocks reading records from the underlying conn and dispatches
// them to Callbacks until error or close. Run this in its own goroutine;
// the daemon does so for every Conn, on every platform.
func (c *Conn) ReadLoop(ctx context.Context) {
	r := bufio.NewReaderSize(c.conn, MaxRecordSize+4)
	var cause error
	for {
		hdr := make([]byte, 4)
		if _, err := io.ReadFull(r, hdr); err != nil {
			cause = err
			break
		}
		rt := RecordType(binary.BigEndian.Uint16(hdr[0:2]))
		ln := binary.BigEndian.Uint16(hdr[2:4])
		if ln > MaxRecordSize {
			cause = relayerr.Wrap(relayerr.ProtocolError, fmt.Errorf("record of %d bytes exceeds %d byte buffer", ln, MaxRecordSize))
			break
		}
		buf := make([]byte, ln)
		if ln > 0 {
			if _, err := io.ReadFull(r, buf); err != nil {
				cause = err
				break
			}
		}
		switch rt {
		case RecordPacket:
			if c.cb.OnPacket != nil {
				c.cb.OnPacket(ctx, buf)
			}
		case RecordMeta:
			if c.cb.OnMeta != nil {
				c.cb.OnMeta(ctx, buf)
			}
		default:
			cause = relayerr.Wrap(relayerr.ProtocolError, fmt.Errorf("unknown record type %d", rt))
		}
		if cause != nil {
			break
		}
	}
	_ = c.Close()
	dlog.Debugf(ctx, "tunnel to %s closed: %v", c.peer, cause)
	if c.cb.OnClosed != nil {
		c.cb.OnClosed(ctx, cause)
	}
}
