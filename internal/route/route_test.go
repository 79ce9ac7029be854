package route

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/relayd/internal/config"
	"github.com/relaymesh/relayd/internal/graph"
	"github.com/relaymesh/relayd/internal/vnd"
)

func buildIPv4Frame(t *testing.T, src, dst [4]byte, payloadLen int, df bool) []byte {
	t.Helper()
	frame := make([]byte, etherHeaderLen+20+payloadLen)
	frame[12], frame[13] = 0x08, 0x00
	ip := frame[etherHeaderLen:]
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], uint16(20+payloadLen))
	if df {
		binary.BigEndian.PutUint16(ip[6:8], ipv4FlagDF)
	}
	ip[8] = 64
	ip[9] = 17
	copy(ip[12:16], src[:])
	copy(ip[16:20], dst[:])
	binary.BigEndian.PutUint16(ip[10:12], checksum16(ip[:20]))
	return frame
}

func TestChecksum16KnownValue(t *testing.T) {
	hdr := []byte{0x45, 0x00, 0x00, 0x3c, 0x1c, 0x46, 0x40, 0x00, 0x40, 0x06,
		0x00, 0x00, 0xac, 0x10, 0x0a, 0x63, 0xac, 0x10, 0x0a, 0x0c}
	sum := checksum16(hdr)
	binary.BigEndian.PutUint16(hdr[10:12], sum)
	// A correct checksum makes the header's own checksum field self-consistent:
	// the one's-complement sum of the header with the correct checksum filled
	// in is 0xFFFF, so checksum16 (its complement) yields 0.
	assert.Equal(t, uint16(0), checksum16(hdr))
}

func TestFragmentIPv4SplitsAndMarksMF(t *testing.T) {
	frame := buildIPv4Frame(t, [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 2}, 2000, false)
	frags := fragmentIPv4(frame, 576)

	require.Greater(t, len(frags), 1)
	for i, f := range frags {
		ip := f[etherHeaderLen:]
		flagsFrag := binary.BigEndian.Uint16(ip[6:8])
		isLast := i == len(frags)-1
		mf := flagsFrag&ipv4FlagMF != 0
		assert.Equal(t, !isLast, mf, "fragment %d MF flag", i)
		assert.Zero(t, (binary.BigEndian.Uint16(ip[2:4])-20)%8, "fragment %d payload not 8-byte aligned except possibly the last", i)
	}
}

func TestRouteIPv4UnreachableWhenNoSubnetMatches(t *testing.T) {
	g := graph.New("self")
	dev := vnd.NewLoopback("tun0", 1500)
	r := New(g, dev, config.ModeRouter, [6]byte{0x02, 0, 0, 0, 0, 1}, time.Minute)

	frame := buildIPv4Frame(t, [4]byte{10, 0, 0, 1}, [4]byte{192, 168, 1, 1}, 8, false)
	r.HandleFrame(context.Background(), g.Self, frame)

	select {
	case out := <-dev.Written():
		ip := out[etherHeaderLen:]
		assert.Equal(t, uint8(1), ip[9], "reply must be an ICMP packet")
		icmp := ip[20:]
		assert.Equal(t, uint8(icmpTypeDestUnreachable), icmp[0])
		assert.Equal(t, uint8(icmpCodeNetUnknown), icmp[1])
	case <-time.After(time.Second):
		t.Fatal("no icmp unreachable reply written to device")
	}
}

func TestRouteIPv4DeliversToOwner(t *testing.T) {
	g := graph.New("self")
	peer := g.GetOrCreateNode("peer")
	g.AddSubnet(peer, graph.NewIPv4Subnet(peer, [4]byte{10, 0, 0, 0}, 24))
	// SSSP must mark peer reachable via a real edge for delivery to proceed.
	g.AddEdge(g.Self, peer, "", 1, 0)
	g.AddEdge(peer, g.Self, "", 1, 0)
	g.RunSSSP()

	dev := vnd.NewLoopback("tun0", 1500)
	r := New(g, dev, config.ModeRouter, [6]byte{0x02, 0, 0, 0, 0, 1}, time.Minute)

	var delivered bool
	// peer has no tunnel configured, so send() will just warn and drop;
	// this test only asserts that the destination lookup itself succeeds
	// and does not synthesise an unreachable reply.
	frame := buildIPv4Frame(t, [4]byte{10, 0, 0, 1}, [4]byte{10, 0, 0, 5}, 8, false)
	r.HandleFrame(context.Background(), g.Self, frame)

	select {
	case <-dev.Written():
		delivered = true
	case <-time.After(200 * time.Millisecond):
	}
	assert.False(t, delivered, "a reachable owner must not trigger a device-bound icmp reply")
}

func TestMACLearningCreatesSubnetOnFirstSight(t *testing.T) {
	g := graph.New("self")
	dev := vnd.NewLoopback("tun0", 1500)
	r := New(g, dev, config.ModeSwitch, [6]byte{0x02, 0, 0, 0, 0, 1}, time.Minute)

	var learned *graph.Subnet
	r.OnLearnedSubnet = func(s *graph.Subnet) { learned = s }

	frame := make([]byte, etherHeaderLen+2)
	copy(frame[0:6], []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	copy(frame[6:12], []byte{0x02, 1, 2, 3, 4, 5})

	r.HandleFrame(context.Background(), g.Self, frame)

	require.NotNil(t, learned)
	assert.Same(t, g.Self, learned.Owner)
}

func TestTokenBucketLimitsToMaxPerWindow(t *testing.T) {
	b := newTokenBucket(3, time.Second)
	now := time.Now()
	for i := 0; i < 3; i++ {
		assert.True(t, b.Allow(now), "token %d", i)
	}
	assert.False(t, b.Allow(now), "fourth request in the same window must be denied")
	assert.True(t, b.Allow(now.Add(time.Second)), "a new window refills the bucket")
}
