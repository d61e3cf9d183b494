package discovery

import (
	"context"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser publishes LwM2M servers over DNS-SD so that clients on the
// local link can find a registration or bootstrap endpoint.
type Advertiser interface {
	Advertise(ctx context.Context, info *ServerInfo) error
	// Update rewrites the TXT record of a running advertisement in place.
	Update(info *ServerInfo) error
	Stop(instance string) error
	StopAll()
}

// AdvertiserConfig selects the interface to answer on (empty for all) and
// the record TTL.
type AdvertiserConfig struct {
	Interface string
	TTL       time.Duration
}

// DefaultAdvertiserConfig answers on all interfaces with DefaultTTL.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: DefaultTTL}
}

var _ Advertiser = (*MDNSAdvertiser)(nil)

// registration is a live DNS-SD record set.
type registration interface {
	SetText(text []string)
	Shutdown()
}

// registerFunc publishes a service and returns its registration.
type registerFunc func(instance, service string, port int, text []string, ifaces []net.Interface, ttl time.Duration) (registration, error)

func zeroconfRegister(instance, service string, port int, text []string, ifaces []net.Interface, ttl time.Duration) (registration, error) {
	var opts []zeroconf.ServerOption
	if ttl > 0 {
		opts = append(opts, zeroconf.TTL(uint32(ttl.Seconds())))
	}
	server, err := zeroconf.Register(instance, service, Domain, port, text, ifaces, opts...)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// interfaces returns the configured interface, or nil for all interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}
