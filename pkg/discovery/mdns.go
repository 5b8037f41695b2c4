package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Advertisement is a running mDNS registration.
type Advertisement struct {
	mu     sync.Mutex
	server *zeroconf.Server
	stop   context.CancelFunc
}

// selectInterfaces returns the interfaces to use, or nil for all.
func selectInterfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise registers info until ctx is done or Stop is called.
func Advertise(ctx context.Context, info Info) (*Advertisement, error) {
	if err := ValidateInstanceName(info.Name); err != nil {
		return nil, err
	}
	if info.Port <= 0 || info.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, info.Port)
	}

	var opts []zeroconf.ServerOption
	if info.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(info.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Name,
		ServiceType,
		Domain,
		info.Port,
		TXTRecordsToStrings(EncodeTXT(info)),
		selectInterfaces(info.Interface),
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register oscquery service: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &Advertisement{server: server, stop: cancel}
	go func() {
		<-ctx.Done()
		a.shutdown()
	}()
	return a, nil
}

// Update replaces the TXT records.
func (a *Advertisement) Update(info Info) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.SetText(TXTRecordsToStrings(EncodeTXT(info)))
	}
}

// Stop withdraws the advertisement. It is safe to call more than once.
func (a *Advertisement) Stop() {
	a.stop()
	a.shutdown()
}

func (a *Advertisement) shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// BrowserConfig configures browsing.
type BrowserConfig struct {
	// Interface restricts browsing to one interface (default: all).
	Interface string

	// Timeout bounds Find (default: 5s).
	Timeout time.Duration
}

// Browser looks up OSCQuery servers.
type Browser struct {
	config BrowserConfig
}

// NewBrowser returns a browser.
func NewBrowser(config BrowserConfig) *Browser {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &Browser{config: config}
}

// Browse reports each server once per instance name. Addresses seen on
// further interfaces are merged into the known entry. The channel is
// closed when ctx is done.
func (b *Browser) Browse(ctx context.Context) (<-chan Service, error) {
	out := make(chan Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := selectInterfaces(b.config.Interface); ifaces != nil {
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
				svc := entryToService(entry)
				if existing, found := services[svc.Instance]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.Instance] = &svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()
	return out, nil
}

// Find returns the first server whose instance name is name.
func (b *Browser) Find(ctx context.Context, name string) (Service, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()
	services, err := b.Browse(ctx)
	if err != nil {
		return Service{}, err
	}
	for svc := range services {
		if svc.Instance == name {
			return svc, nil
		}
	}
	return Service{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Browse browses all interfaces with the default configuration.
func Browse(ctx context.Context) (<-chan Service, error) {
	return NewBrowser(BrowserConfig{}).Browse(ctx)
}

func entryToService(entry *zeroconf.ServiceEntry) Service {
	txt := StringsToTXTRecords(entry.Text)
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return Service{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: addrs,
		OSCPort:   txt.oscPort(),
		TXT:       txt,
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

// removeAddresses drops the addresses of entry from addresses.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
