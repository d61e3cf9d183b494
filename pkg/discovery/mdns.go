package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSAdvertiser implements Advertiser using zeroconf.
type MDNSAdvertiser struct {
	config   AdvertiserConfig
	register registerFunc

	mu      sync.Mutex
	servers map[string]*advertisement // keyed by instance name
}

type advertisement struct {
	info ServerInfo
	reg  registration
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{
		config:   config,
		register: zeroconfRegister,
		servers:  make(map[string]*advertisement),
	}
}

// Advertise starts advertising info. An existing advertisement with the
// same instance name is replaced.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *ServerInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateInstanceName(info.Instance); err != nil {
		return err
	}
	if info.Port <= 0 || info.Port > 0xFFFF {
		return fmt.Errorf("%w: %d", ErrInvalidPort, info.Port)
	}
	txt, err := EncodeServerTXT(info)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.servers[info.Instance]; ok {
		existing.reg.Shutdown()
		delete(a.servers, info.Instance)
	}

	service := ServiceType(info.Secure)
	reg, err := a.register(info.Instance, service, info.Port,
		TXTRecordsToStrings(txt), interfaces(a.config.Interface), a.config.TTL)
	if err != nil {
		return fmt.Errorf("register %s: %w", service, err)
	}
	a.servers[info.Instance] = &advertisement{info: *info, reg: reg}

	slog.Info("discovery: advertising",
		"instance", info.Instance, "service", service, "port", info.Port, "role", info.Role)
	return nil
}

// Update replaces the TXT record of a running advertisement.
func (a *MDNSAdvertiser) Update(info *ServerInfo) error {
	txt, err := EncodeServerTXT(info)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	adv, ok := a.servers[info.Instance]
	if !ok {
		return ErrNotFound
	}
	if adv.info.Port != info.Port || adv.info.Secure != info.Secure {
		return fmt.Errorf("%w: port or service type changed, re-advertise instead", ErrAlreadyExists)
	}
	adv.reg.SetText(TXTRecordsToStrings(txt))
	adv.info = *info
	return nil
}

// Stop withdraws the advertisement for instance.
func (a *MDNSAdvertiser) Stop(instance string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	adv, ok := a.servers[instance]
	if !ok {
		return ErrNotFound
	}
	adv.reg.Shutdown()
	delete(a.servers, instance)
	slog.Info("discovery: stopped", "instance", instance)
	return nil
}

// StopAll withdraws every advertisement.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, adv := range a.servers {
		adv.reg.Shutdown()
		delete(a.servers, name)
	}
}

// Advertising returns the instance names currently advertised.
func (a *MDNSAdvertiser) Advertising() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.servers))
	for name := range a.servers {
		names = append(names, name)
	}
	return names
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// MDNSBrowser finds LwM2M servers on the local link.
type MDNSBrowser struct {
	config BrowserConfig
}

// NewMDNSBrowser creates a new browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	return &MDNSBrowser{config: config}
}

// Browse searches for servers of the given transport until ctx is done.
// Services are aggregated by instance name; each is emitted once, when
// first seen.
func (b *MDNSBrowser) Browse(ctx context.Context, secure bool) (<-chan *Service, error) {
	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	go func() {
		defer close(out)

		services := make(map[string]*Service)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToService(entry, secure)
				if svc == nil {
					continue
				}
				if existing, found := services[svc.Instance]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.Instance] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				delete(services, entry.Instance)

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType(secure), Domain, entries, removed, opts...)
	}()

	return out, nil
}

// entryToService converts a zeroconf entry, dropping entries without a
// valid LwM2M TXT record.
func entryToService(entry *zeroconf.ServiceEntry, secure bool) *Service {
	info, err := DecodeServerTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Service{
		Instance:  entry.Instance,
		Host:      strings.TrimSuffix(entry.HostName, "."),
		Port:      uint16(entry.Port),
		Addresses: addrs,
		Secure:    secure,
		Role:      info.Role,
		Path:      info.Path,
		Version:   info.Version,
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}
