package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
)

// Default CoAP ports.
const (
	DefaultPort       = 5683
	DefaultSecurePort = 5684
)

// UDPConfig configures a UDPPeer.
type UDPConfig struct {
	// Network is "udp", "udp4" or "udp6" (default "udp").
	Network string

	// Address to bind (default "127.0.0.1:0").
	Address string

	// Logger for operational logging (default slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives datagram and state events (optional).
	ProtocolLogger log.Logger
}

// UDPPeer is a Peer over a plain UDP socket.
type UDPPeer struct {
	mu sync.Mutex

	network string
	conn    *net.UDPConn
	state   PeerState

	// Client address while connected or fake-closed
	remote *net.UDPAddr

	connID string
	logger *slog.Logger
	plog   log.Logger
}

// NewUDPPeer binds a new unconnected peer.
func NewUDPPeer(cfg UDPConfig) (*UDPPeer, error) {
	if cfg.Network == "" {
		cfg.Network = "udp"
	}
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.ProtocolLogger = log.OrNoop(cfg.ProtocolLogger)

	addr, err := net.ResolveUDPAddr(cfg.Network, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cfg.Address, err)
	}
	conn, err := listenUDP(cfg.Network, addr, false)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	p := &UDPPeer{
		network: cfg.Network,
		conn:    conn,
		state:   StateUnconnected,
		connID:  uuid.NewString(),
		logger:  cfg.Logger,
		plog:    cfg.ProtocolLogger,
	}
	p.logger.Info("udp peer bound", "local", conn.LocalAddr())
	return p, nil
}

// SetLogger installs a protocol capture logger.
func (p *UDPPeer) SetLogger(l log.Logger) {
	l = log.OrNoop(l)
	p.mu.Lock()
	p.plog = l
	p.mu.Unlock()
}

// Reset drops the client. Port 0 keeps the local port through a
// port-preserving re-bind.
func (p *UDPPeer) Reset(port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return ErrClosed
	}
	local := p.conn.LocalAddr().(*net.UDPAddr)
	if port == 0 || port == local.Port {
		if err := p.rebindLocked(); err != nil {
			return err
		}
	} else {
		conn, err := listenUDP(p.network, &net.UDPAddr{IP: local.IP, Port: port, Zone: local.Zone}, false)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		p.conn.Close()
		p.conn = conn
	}
	p.remote = nil
	p.connID = uuid.NewString()
	p.setStateLocked(StateUnconnected, "reset")
	return nil
}

func (p *UDPPeer) rebindLocked() error {
	conn, err := rebind(p.network, p.conn)
	if err != nil {
		return err
	}
	p.conn = conn
	return nil
}

// Listen drops any client, waits for the first datagram and connects to
// its sender. The datagram is left queued for Recv.
func (p *UDPPeer) Listen(timeout time.Duration) error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.state != StateUnconnected {
		if err := p.rebindLocked(); err != nil {
			p.mu.Unlock()
			return err
		}
		p.remote = nil
		p.setStateLocked(StateUnconnected, "listen")
	}
	conn := p.conn
	p.mu.Unlock()

	from, err := peekSender(conn, timeout)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != conn {
		return ErrClosed
	}
	if err := connectSocket(conn, from); err != nil {
		return err
	}
	p.remote = from
	p.connID = uuid.NewString()
	p.setStateLocked(StateConnected, "accepted "+from.String())
	return nil
}

// Connect associates the peer with addr.
func (p *UDPPeer) Connect(addr string) error {
	raddr, err := net.ResolveUDPAddr(p.network, addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return ErrClosed
	}
	if err := connectSocket(p.conn, raddr); err != nil {
		return err
	}
	p.remote = raddr
	p.connID = uuid.NewString()
	p.setStateLocked(StateConnected, "connect "+raddr.String())
	return nil
}

// Close releases the socket. Later operations return ErrClosed.
func (p *UDPPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return nil
	}
	p.setStateLocked(StateClosed, "close")
	return p.conn.Close()
}

// Send writes one datagram to the client.
func (p *UDPPeer) Send(data []byte) error {
	conn, err := p.active()
	if err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		return mapIOError(err)
	}
	p.logDatagram(log.DirectionOut, data)
	return nil
}

// Recv reads one datagram. A zero timeout blocks.
func (p *UDPPeer) Recv(timeout time.Duration) ([]byte, error) {
	conn, err := p.active()
	if err != nil {
		return nil, err
	}
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, mapIOError(err)
	}
	buf := make([]byte, MaxDatagramSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, mapIOError(err)
	}
	data := buf[:n]
	p.logDatagram(log.DirectionIn, data)
	return data, nil
}

func (p *UDPPeer) active() (*net.UDPConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateClosed:
		return nil, ErrClosed
	case StateUnconnected:
		return nil, ErrNotConnected
	}
	return p.conn, nil
}

// FakeClose connects the socket to an unused port so the client's
// datagrams are answered with ICMP Port Unreachable.
func (p *UDPPeer) FakeClose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateClosed:
		return ErrClosed
	case StateUnconnected:
		return ErrNotConnected
	case StateFakeClosed:
		return fmt.Errorf("%w: already fake-closed", ErrFakeClosed)
	}
	unused, err := unusedAddr(p.conn)
	if err != nil {
		return err
	}
	if err := connectSocket(p.conn, unused); err != nil {
		return err
	}
	p.setStateLocked(StateFakeClosed, "connected to unused "+unused.String())
	return nil
}

// FakeUnclose reconnects to the client remembered by FakeClose.
func (p *UDPPeer) FakeUnclose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateClosed:
		return ErrClosed
	case StateFakeClosed:
	default:
		return fmt.Errorf("%w: not fake-closed", ErrFakeClosed)
	}
	if err := connectSocket(p.conn, p.remote); err != nil {
		return err
	}
	p.setStateLocked(StateConnected, "fake unclose")
	return nil
}

// LocalAddr returns the bound address.
func (p *UDPPeer) LocalAddr() *net.UDPAddr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.LocalAddr().(*net.UDPAddr)
}

// RemoteAddr returns the client address, or nil when unconnected.
func (p *UDPPeer) RemoteAddr() *net.UDPAddr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

// Port returns the bound local port.
func (p *UDPPeer) Port() int {
	return p.LocalAddr().Port
}

// State returns the association state.
func (p *UDPPeer) State() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ConnectionID identifies the current association.
func (p *UDPPeer) ConnectionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connID
}

// Conn returns the current socket. It changes on Reset and Listen.
func (p *UDPPeer) Conn() *net.UDPConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *UDPPeer) setStateLocked(s PeerState, reason string) {
	old := p.state
	p.state = s
	p.logger.Debug("peer state", "conn_id", p.connID, "old", old, "new", s, "reason", reason)
	p.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   addrString(p.remote),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityPeer,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

func (p *UDPPeer) logDatagram(dir log.Direction, data []byte) {
	p.mu.Lock()
	plog, connID, remote := p.plog, p.connID, p.remote
	p.mu.Unlock()

	p.logger.Debug("datagram", "conn_id", connID, "direction", dir, "size", len(data))
	plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		RemoteAddr:   addrString(remote),
		Datagram:     log.NewDatagramEvent(data),
	})
}

func addrString(a *net.UDPAddr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// JoinHostPort formats an address for Connect.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// IsTimeout reports whether err is a recoverable receive timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
