package config

import (
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/lwm2m-harness/lwm2m-go/pkg/discovery"
	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
	"github.com/lwm2m-harness/lwm2m-go/pkg/transport"
)

// ListenAddress returns the host:port to bind.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Listen.Address, strconv.Itoa(c.Port()))
}

// OpenPeer binds the UDP or DTLS peer selected by the security mode.
func (c *Config) OpenPeer(logger *slog.Logger, plog log.Logger) (transport.Peer, error) {
	udp := transport.UDPConfig{
		Address:        c.ListenAddress(),
		Logger:         logger,
		ProtocolLogger: plog,
	}
	if !c.Secure() {
		peer, err := transport.NewUDPPeer(udp)
		if err != nil {
			return nil, err
		}
		return peer, nil
	}
	dtlsCfg, err := c.Security.DTLS()
	if err != nil {
		return nil, err
	}
	peer, err := transport.NewDTLSPeer(udp, dtlsCfg)
	if err != nil {
		return nil, err
	}
	return peer, nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ServerInfo describes the listener for DNS-SD advertisement.
func (c *Config) ServerInfo() *discovery.ServerInfo {
	return &discovery.ServerInfo{
		Instance: c.Discovery.Instance,
		Port:     c.Port(),
		Secure:   c.Secure(),
		Role:     c.Discovery.Role,
	}
}
