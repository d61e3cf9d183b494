package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/dtls/v2"

	"github.com/lwm2m-harness/lwm2m-go/pkg/cert"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
)

// DefaultHandshakeTimeout bounds a DTLS handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// ErrLegacyBootstrapDisabled is returned by DTLSPeer.ConnectBootstrap
// unless DTLSConfig.AllowLegacyBootstrap is set.
var ErrLegacyBootstrapDisabled = errors.New("server-initiated dtls session disabled")

// DTLSConfig holds the credentials and limits of a DTLS peer.
type DTLSConfig struct {
	// PSKIdentity and PSKKey select pre-shared key mode.
	PSKIdentity []byte
	PSKKey      []byte

	// Certificates selects X.509 mode.
	Certificates []tls.Certificate

	// RootCAs verifies the client certificate chain. When nil, any client
	// certificate inside its validity window is accepted.
	RootCAs *x509.CertPool

	// CipherSuites overrides the defaults (CCM_8 for the chosen mode).
	CipherSuites []dtls.CipherSuiteID

	// HandshakeTimeout bounds each handshake (default 10s).
	HandshakeTimeout time.Duration

	// InsecureSkipVerify disables certificate verification when the peer
	// acts as DTLS client. Only for testing.
	InsecureSkipVerify bool

	// AllowLegacyBootstrap permits ConnectBootstrap, i.e. the bootstrap
	// server opening a session towards a client that never asked for
	// bootstrap, as LwM2M 1.0 allowed. Off by default.
	AllowLegacyBootstrap bool
}

func (c *DTLSConfig) pionConfig(server bool) (*dtls.Config, error) {
	cfg := &dtls.Config{
		ExtendedMasterSecret: dtls.RequestExtendedMasterSecret,
		CipherSuites:         c.CipherSuites,
		InsecureSkipVerify:   c.InsecureSkipVerify,
	}
	switch {
	case len(c.PSKKey) > 0:
		identity, key := c.PSKIdentity, c.PSKKey
		cfg.PSKIdentityHint = identity
		cfg.PSK = func(hint []byte) ([]byte, error) {
			// On the server side hint is the identity the client sent.
			if server && len(identity) > 0 && string(hint) != string(identity) {
				return nil, fmt.Errorf("unknown psk identity %q", hint)
			}
			return key, nil
		}
		if len(cfg.CipherSuites) == 0 {
			cfg.CipherSuites = []dtls.CipherSuiteID{dtls.TLS_PSK_WITH_AES_128_CCM_8}
		}
	case len(c.Certificates) > 0:
		cfg.Certificates = c.Certificates
		if server {
			roots := c.RootCAs
			cfg.ClientAuth = dtls.RequireAnyClientCert
			cfg.VerifyPeerCertificate = func(raw [][]byte, _ [][]*x509.Certificate) error {
				chain, err := cert.ParseChain(raw)
				if err != nil {
					return err
				}
				return cert.VerifyClient(chain[0], chain[1:], roots, time.Now())
			}
		} else {
			cfg.RootCAs = c.RootCAs
		}
		if len(cfg.CipherSuites) == 0 {
			cfg.CipherSuites = []dtls.CipherSuiteID{
				dtls.TLS_ECDHE_ECDSA_WITH_AES_128_CCM_8,
				dtls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			}
		}
	default:
		return nil, fmt.Errorf("dtls: neither psk nor certificate configured")
	}
	return cfg, nil
}

// DTLSPeer is a Peer that runs a DTLS session over a UDPPeer.
type DTLSPeer struct {
	mu sync.Mutex

	udp     *UDPPeer
	config  DTLSConfig
	session *dtls.Conn
}

// NewDTLSPeer binds a UDP socket for DTLS.
func NewDTLSPeer(udpCfg UDPConfig, cfg DTLSConfig) (*DTLSPeer, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if _, err := cfg.pionConfig(true); err != nil {
		return nil, err
	}
	udp, err := NewUDPPeer(udpCfg)
	if err != nil {
		return nil, err
	}
	return &DTLSPeer{udp: udp, config: cfg}, nil
}

// Datagram returns the underlying UDP peer for FakeClose and re-binding.
func (p *DTLSPeer) Datagram() *UDPPeer {
	return p.udp
}

// SetLogger installs a protocol capture logger on the datagram peer.
func (p *DTLSPeer) SetLogger(l log.Logger) {
	p.udp.SetLogger(l)
}

// dropSession closes the DTLS session. Its socket has already been
// replaced or closed by the datagram peer.
func (p *DTLSPeer) dropSession() {
	p.mu.Lock()
	s := p.session
	p.session = nil
	p.mu.Unlock()
	if s != nil {
		_ = s.Close()
	}
}

// Reset drops the session and re-binds the socket.
func (p *DTLSPeer) Reset(port int) error {
	err := p.udp.Reset(port)
	p.dropSession()
	return err
}

// Listen waits for the first datagram, connects to its sender and runs
// the server handshake.
func (p *DTLSPeer) Listen(timeout time.Duration) error {
	if err := p.udp.Listen(timeout); err != nil {
		p.dropSession()
		return err
	}
	p.dropSession()
	cfg, err := p.config.pionConfig(true)
	if err != nil {
		return err
	}
	return p.handshake(func(ctx context.Context, conn net.Conn) (*dtls.Conn, error) {
		return dtls.ServerWithContext(ctx, conn, cfg)
	})
}

// ConnectBootstrap opens a session to addr for a server-initiated
// bootstrap.
func (p *DTLSPeer) ConnectBootstrap(addr string) error {
	if !p.config.AllowLegacyBootstrap {
		return ErrLegacyBootstrapDisabled
	}
	return p.Connect(addr)
}

// Connect opens a session to addr as DTLS client.
func (p *DTLSPeer) Connect(addr string) error {
	if err := p.udp.Connect(addr); err != nil {
		return err
	}
	p.dropSession()
	cfg, err := p.config.pionConfig(false)
	if err != nil {
		return err
	}
	return p.handshake(func(ctx context.Context, conn net.Conn) (*dtls.Conn, error) {
		return dtls.ClientWithContext(ctx, conn, cfg)
	})
}

func (p *DTLSPeer) handshake(run func(context.Context, net.Conn) (*dtls.Conn, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.HandshakeTimeout)
	defer cancel()

	session, err := run(ctx, p.udp.Conn())
	if err != nil {
		p.udp.logger.Warn("dtls handshake failed", "remote", p.udp.RemoteAddr(), "error", err)
		// pion closes the socket on failure; get a fresh one on the same port.
		if rerr := p.udp.Reset(0); rerr != nil {
			p.udp.logger.Warn("re-bind after failed handshake", "error", rerr)
		}
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	p.mu.Lock()
	p.session = session
	p.mu.Unlock()
	attrs := []any{"remote", p.udp.RemoteAddr()}
	if info := cert.GetInfo(p.PeerCertificate()); info != nil {
		attrs = append(attrs, "certificate", info.String())
	}
	p.udp.logger.Info("dtls session established", attrs...)
	return nil
}

// PeerCertificate returns the leaf certificate the client presented, or nil
// in PSK mode and without a session.
func (p *DTLSPeer) PeerCertificate() *x509.Certificate {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	raw := s.ConnectionState().PeerCertificates
	if len(raw) == 0 {
		return nil
	}
	leaf, err := x509.ParseCertificate(raw[0])
	if err != nil {
		return nil
	}
	return leaf
}

// Close closes the session and the socket.
func (p *DTLSPeer) Close() error {
	p.dropSession()
	return p.udp.Close()
}

func (p *DTLSPeer) current() (*dtls.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		if p.udp.State() == StateClosed {
			return nil, ErrClosed
		}
		return nil, ErrNotConnected
	}
	return p.session, nil
}

// Send encrypts and writes one record.
func (p *DTLSPeer) Send(data []byte) error {
	s, err := p.current()
	if err != nil {
		return err
	}
	if _, err := s.Write(data); err != nil {
		return mapIOError(err)
	}
	p.udp.logDatagram(log.DirectionOut, data)
	return nil
}

// Recv reads and decrypts one record. A zero timeout blocks.
func (p *DTLSPeer) Recv(timeout time.Duration) ([]byte, error) {
	s, err := p.current()
	if err != nil {
		return nil, err
	}
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := s.SetReadDeadline(deadline); err != nil {
		return nil, mapIOError(err)
	}
	buf := make([]byte, MaxDatagramSize)
	n, err := s.Read(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, mapIOError(err)
	}
	data := buf[:n]
	p.udp.logDatagram(log.DirectionIn, data)
	return data, nil
}

// FakeClose provokes ICMP Port Unreachable on the datagram socket. The
// session state is kept.
func (p *DTLSPeer) FakeClose() error { return p.udp.FakeClose() }

// FakeUnclose reconnects the datagram socket to the client.
func (p *DTLSPeer) FakeUnclose() error { return p.udp.FakeUnclose() }

// LocalAddr returns the bound address.
func (p *DTLSPeer) LocalAddr() *net.UDPAddr { return p.udp.LocalAddr() }

// RemoteAddr returns the client address.
func (p *DTLSPeer) RemoteAddr() *net.UDPAddr { return p.udp.RemoteAddr() }

// State returns the state of the datagram socket.
func (p *DTLSPeer) State() PeerState { return p.udp.State() }

// ConnectionID identifies the current association.
func (p *DTLSPeer) ConnectionID() string { return p.udp.ConnectionID() }
