package transport

import (
	"errors"
	"net"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
)

// MaxDatagramSize is the largest UDP payload the peer receives.
const MaxDatagramSize = 65507

// Transport errors.
var (
	// ErrTimeout is returned when Listen or Recv saw no datagram in time.
	// The peer stays usable.
	ErrTimeout = errors.New("transport timeout")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("peer closed")

	// ErrNotConnected is returned by Send and Recv before Listen or Connect.
	ErrNotConnected = errors.New("peer not connected")

	// ErrPortUnreachable is returned when the client answered with ICMP
	// Port Unreachable.
	ErrPortUnreachable = errors.New("port unreachable")

	// ErrHandshake is returned when a DTLS handshake fails.
	ErrHandshake = errors.New("dtls handshake failed")

	// ErrFakeClosed is returned by FakeClose when already fake-closed and
	// by FakeUnclose when not.
	ErrFakeClosed = errors.New("fake close state")
)

// PeerState is the association state of a peer.
type PeerState int

const (
	// StateUnconnected indicates a bound socket without a client.
	StateUnconnected PeerState = iota

	// StateConnected indicates a socket connected to its client.
	StateConnected

	// StateFakeClosed indicates a socket connected to an unused port.
	StateFakeClosed

	// StateClosed indicates a closed peer.
	StateClosed
)

// String returns the state name.
func (s PeerState) String() string {
	switch s {
	case StateUnconnected:
		return "UNCONNECTED"
	case StateConnected:
		return "CONNECTED"
	case StateFakeClosed:
		return "FAKE_CLOSED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Peer is a datagram endpoint bound to a single client.
// Implemented by UDPPeer and DTLSPeer.
type Peer interface {
	// Reset drops the client and re-binds. Port 0 keeps the current local
	// port; any other value binds that port.
	Reset(port int) error

	// Listen waits for the first datagram and connects to its sender. The
	// datagram stays queued for Recv.
	Listen(timeout time.Duration) error

	// Connect associates the peer with addr ("host:port").
	Connect(addr string) error

	// Close releases the socket.
	Close() error

	// Send writes one datagram to the client.
	Send(data []byte) error

	// Recv reads one datagram from the client.
	Recv(timeout time.Duration) ([]byte, error)

	// FakeClose makes the client see ICMP Port Unreachable while the
	// local port stays bound.
	FakeClose() error

	// FakeUnclose reconnects to the client remembered by FakeClose.
	FakeUnclose() error

	// LocalAddr returns the bound address.
	LocalAddr() *net.UDPAddr

	// RemoteAddr returns the client address, or nil.
	RemoteAddr() *net.UDPAddr

	// State returns the association state.
	State() PeerState

	// ConnectionID identifies the current association in protocol logs.
	ConnectionID() string

	// SetLogger installs a protocol capture logger.
	SetLogger(l log.Logger)
}

// Compile-time interface satisfaction checks.
var (
	_ Peer = (*UDPPeer)(nil)
	_ Peer = (*DTLSPeer)(nil)
)
