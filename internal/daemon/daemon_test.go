package daemon

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/relayd/internal/config"
	"github.com/relaymesh/relayd/internal/graph"
	"github.com/relaymesh/relayd/internal/meta"
	"github.com/relaymesh/relayd/internal/tunnel"
	"github.com/relaymesh/relayd/internal/vnd"
)

// recordingTunnel is a minimal tunnel.Tunnel that records every META line
// sent through it, mirroring internal/meta's own test double.
type recordingTunnel struct {
	sent []string
}

func (t *recordingTunnel) SendMeta(buf []byte) error {
	t.sent = append(t.sent, string(buf))
	return nil
}
func (t *recordingTunnel) SendPacket(buf []byte) error { return nil }
func (t *recordingTunnel) State() tunnel.State         { return tunnel.StateUp }
func (t *recordingTunnel) MTU() int                    { return 1500 }
func (t *recordingTunnel) PeerIdentity() string        { return "" }
func (t *recordingTunnel) Close() error                { return nil }

func newRecordingPeer(name string) (*meta.Peer, *recordingTunnel) {
	rt := &recordingTunnel{}
	return meta.NewPeer(name, "203.0.113.1", rt), rt
}

type noopHooks struct{}

func (noopHooks) Up(ctx context.Context, script string, env map[string]string) error   { return nil }
func (noopHooks) Down(ctx context.Context, script string, env map[string]string) error { return nil }

func testStore(t *testing.T, text string) *config.Store {
	t.Helper()
	s := config.New()
	require.NoError(t, s.Parse(strings.NewReader(text)))
	return s
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg, err := config.LoadDaemon(testStore(t, "Name = self\nDevice = /dev/net/tun\n"))
	require.NoError(t, err)

	hosts := map[string]*config.Host{
		"self": {Name: "self", Port: "655", Weight: 2, Subnets: []string{"10.0.0.1/32"}},
	}

	d, err := New("testnet", cfg, hosts, Options{
		Hooks: noopHooks{},
		OpenDevice: func(name string, mtu int) (vnd.Device, error) {
			return vnd.NewLoopback(name, mtu), nil
		},
	})
	require.NoError(t, err)
	return d
}

func TestNewSeedsSelfSubnetsAndWeight(t *testing.T) {
	d := newTestDaemon(t)
	assert.Equal(t, 655, d.Meta.SelfPort)
	assert.Equal(t, 2, d.Meta.SelfWeight)

	key := graph.SubnetKey{Kind: graph.SubnetIPv4, Prefix: 32}
	key.Addr[0], key.Addr[1], key.Addr[2], key.Addr[3] = 10, 0, 0, 1
	sn, ok := d.Graph.LookupExact(key)
	require.True(t, ok)
	assert.Same(t, d.Graph.Self, sn.Owner)
}

func TestOnLearnedSubnetBroadcastsAddSubnet(t *testing.T) {
	d := newTestDaemon(t)
	peer, tun := newRecordingPeer("other")
	d.Meta.Peers.Put(peer)

	sn := graph.NewMACSubnet(d.Graph.Self, [6]byte{1, 2, 3, 4, 5, 6}, time.Now().Add(time.Hour))
	d.onLearnedSubnet(sn)

	require.Len(t, tun.sent, 1)
	msg, err := meta.Decode(tun.sent[0])
	require.NoError(t, err)
	assert.Equal(t, meta.OpAddSubnet, msg.Op)
}

func TestOnExpiredSubnetBroadcastsDelSubnet(t *testing.T) {
	d := newTestDaemon(t)
	peer, tun := newRecordingPeer("other")
	d.Meta.Peers.Put(peer)

	sn := graph.NewMACSubnet(d.Graph.Self, [6]byte{1, 2, 3, 4, 5, 6}, time.Now())
	d.onExpiredSubnet(sn)

	require.Len(t, tun.sent, 1)
	msg, err := meta.Decode(tun.sent[0])
	require.NoError(t, err)
	assert.Equal(t, meta.OpDelSubnet, msg.Op)
}

func TestOnReachabilityRunsHookWithoutError(t *testing.T) {
	d := newTestDaemon(t)
	n := d.Graph.GetOrCreateNode("peer")
	n.Address = "198.51.100.7:655"

	// Must not panic even though no real hook script exists on disk.
	d.onReachability(n, true)
	d.onReachability(n, false)
}

func TestDeriveMACIsStableAndLocallyAdministered(t *testing.T) {
	a := deriveMAC("self")
	b := deriveMAC("self")
	c := deriveMAC("other")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, byte(0x02), a[0]&0x02, "locally administered bit must be set")
	assert.Equal(t, byte(0), a[0]&0x01, "unicast bit must be clear")
}

func TestSplitHostPort(t *testing.T) {
	h, p := splitHostPort("203.0.113.1:655")
	assert.Equal(t, "203.0.113.1", h)
	assert.Equal(t, "655", p)

	h, p = splitHostPort("")
	assert.Equal(t, "", h)
	assert.Equal(t, "", p)
}
