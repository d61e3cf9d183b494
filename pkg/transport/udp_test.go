package transport

import (
	"errors"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
)

func newTestPeer(t *testing.T) *UDPPeer {
	t.Helper()
	p, err := NewUDPPeer(UDPConfig{Network: "udp4", Address: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func dialPeer(t *testing.T, p Peer) *net.UDPConn {
	t.Helper()
	c, err := net.DialUDP("udp4", nil, p.LocalAddr())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readClient(t *testing.T, c *net.UDPConn) ([]byte, error) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1500)
	n, err := c.Read(buf)
	return buf[:n], err
}

func TestUDPPeerListenRecvSend(t *testing.T) {
	p := newTestPeer(t)
	client := dialPeer(t, p)

	_, err := client.Write([]byte("hello"))
	require.NoError(t, err)

	require.NoError(t, p.Listen(2*time.Second))
	assert.Equal(t, StateConnected, p.State())
	assert.Equal(t, client.LocalAddr().(*net.UDPAddr).Port, p.RemoteAddr().Port)

	got, err := p.Recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	require.NoError(t, p.Send([]byte("world")))
	reply, err := readClient(t, client)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), reply)
}

func TestUDPPeerTimeouts(t *testing.T) {
	p := newTestPeer(t)

	err := p.Listen(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTimeout(err))

	_, err = p.Recv(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, p.Send([]byte{1}), ErrNotConnected)

	client := dialPeer(t, p)
	_, err = client.Write([]byte{1})
	require.NoError(t, err)
	require.NoError(t, p.Listen(time.Second))
	_, err = p.Recv(time.Second)
	require.NoError(t, err)

	_, err = p.Recv(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestUDPPeerClose(t *testing.T) {
	p := newTestPeer(t)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Listen(time.Millisecond), ErrClosed)
	assert.ErrorIs(t, p.Reset(0), ErrClosed)
	assert.ErrorIs(t, p.Send([]byte{1}), ErrClosed)
	_, err := p.Recv(time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUDPPeerResetKeepsPort(t *testing.T) {
	p := newTestPeer(t)
	port := p.Port()

	first := dialPeer(t, p)
	_, err := first.Write([]byte("one"))
	require.NoError(t, err)
	require.NoError(t, p.Listen(time.Second))
	firstID := p.ConnectionID()

	require.NoError(t, p.Reset(0))
	assert.Equal(t, port, p.Port())
	assert.Equal(t, StateUnconnected, p.State())
	assert.Nil(t, p.RemoteAddr())
	assert.NotEqual(t, firstID, p.ConnectionID())

	second := dialPeer(t, p)
	_, err = second.Write([]byte("two"))
	require.NoError(t, err)
	require.NoError(t, p.Listen(time.Second))
	got, err := p.Recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
	assert.Equal(t, second.LocalAddr().(*net.UDPAddr).Port, p.RemoteAddr().Port)
}

func TestUDPPeerListenWhileConnectedRebinds(t *testing.T) {
	p := newTestPeer(t)
	port := p.Port()

	first := dialPeer(t, p)
	_, err := first.Write([]byte("one"))
	require.NoError(t, err)
	require.NoError(t, p.Listen(time.Second))

	second := dialPeer(t, p)
	go func() {
		time.Sleep(50 * time.Millisecond)
		second.Write([]byte("two"))
	}()
	require.NoError(t, p.Listen(2*time.Second))
	assert.Equal(t, port, p.Port())
	assert.Equal(t, second.LocalAddr().(*net.UDPAddr).Port, p.RemoteAddr().Port)
}

func TestUDPPeerFakeClose(t *testing.T) {
	p := newTestPeer(t)
	port := p.Port()
	client := dialPeer(t, p)

	_, err := client.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, p.Listen(time.Second))
	_, err = p.Recv(time.Second)
	require.NoError(t, err)

	require.NoError(t, p.FakeClose())
	assert.Equal(t, StateFakeClosed, p.State())
	assert.Equal(t, port, p.Port())
	assert.ErrorIs(t, p.FakeClose(), ErrFakeClosed)

	_, err = client.Write([]byte("are you there"))
	require.NoError(t, err)
	_, err = readClient(t, client)
	assert.True(t, errors.Is(err, syscall.ECONNREFUSED), "client read: got %v, want ECONNREFUSED", err)

	require.NoError(t, p.FakeUnclose())
	assert.Equal(t, StateConnected, p.State())
	assert.ErrorIs(t, p.FakeUnclose(), ErrFakeClosed)

	_, err = client.Write([]byte("back"))
	require.NoError(t, err)
	got, err := p.Recv(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("back"), got)
}

func TestUDPPeerConnectAndPortUnreachable(t *testing.T) {
	p := newTestPeer(t)

	server, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer server.Close()

	require.NoError(t, p.Connect(server.LocalAddr().String()))
	require.NoError(t, p.Send([]byte("ping")))
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 16)
	n, from, err := server.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
	assert.Equal(t, p.Port(), from.Port)

	unused, err := unusedAddr(p.Conn())
	require.NoError(t, err)
	require.NoError(t, p.Connect(unused.String()))
	require.NoError(t, p.Send([]byte("anyone")))
	_, err = p.Recv(2 * time.Second)
	assert.ErrorIs(t, err, ErrPortUnreachable)
}

func TestUDPPeerResetToPort(t *testing.T) {
	p := newTestPeer(t)
	probe, err := unusedAddr(p.Conn())
	require.NoError(t, err)

	require.NoError(t, p.Reset(probe.Port))
	assert.Equal(t, probe.Port, p.Port())
}

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(e log.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func TestUDPPeerProtocolLog(t *testing.T) {
	p := newTestPeer(t)
	rec := &recordingLogger{}
	p.SetLogger(rec)

	client := dialPeer(t, p)
	_, err := client.Write([]byte{0x40, 0x01, 0x13, 0x37})
	require.NoError(t, err)
	require.NoError(t, p.Listen(time.Second))
	_, err = p.Recv(time.Second)
	require.NoError(t, err)
	require.NoError(t, p.Send([]byte{0x60, 0x00, 0x13, 0x37}))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var states, datagrams int
	for _, e := range rec.events {
		switch {
		case e.StateChange != nil:
			states++
			assert.Equal(t, "CONNECTED", e.StateChange.NewState)
		case e.Datagram != nil:
			datagrams++
			assert.Equal(t, 4, e.Datagram.Size)
			assert.Equal(t, p.ConnectionID(), e.ConnectionID)
		}
	}
	assert.Equal(t, 1, states)
	assert.Equal(t, 2, datagrams)
}
