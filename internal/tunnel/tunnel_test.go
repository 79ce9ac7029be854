package tunnel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireAuth struct{ name string }

func (w wireAuth) Authenticate(ctx context.Context, conn net.Conn, initiator bool) (string, error) {
	return w.name, nil
}

func TestConnRoundTrip(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", wireAuth{"a"}, 1400)
	require.NoError(t, err)
	defer ln.Close()

	serverRecv := make(chan []byte, 1)
	clientRecv := make(chan []byte, 1)

	serverDone := make(chan *Conn, 1)
	go func() {
		conn, err := ln.Accept(context.Background(), Callbacks{
			OnMeta: func(ctx context.Context, buf []byte) { serverRecv <- buf },
		})
		require.NoError(t, err)
		serverDone <- conn
	}()

	client, err := Dial(context.Background(), ln.Addr().String(), wireAuth{"b"}, 1400, Callbacks{
		OnPacket: func(ctx context.Context, buf []byte) { clientRecv <- buf },
	})
	require.NoError(t, err)
	defer client.Close()

	server := <-serverDone
	defer server.Close()

	go server.ReadLoop(context.Background())
	go client.ReadLoop(context.Background())

	require.NoError(t, client.SendMeta([]byte("ADD_EDGE 1 2")))
	select {
	case got := <-serverRecv:
		assert.Equal(t, "ADD_EDGE 1 2", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for meta record")
	}

	require.NoError(t, server.SendPacket([]byte{1, 2, 3, 4}))
	select {
	case got := <-clientRecv:
		assert.Equal(t, []byte{1, 2, 3, 4}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet record")
	}

	assert.Equal(t, "b", client.PeerIdentity())
	assert.Equal(t, StateUp, client.State())
}
