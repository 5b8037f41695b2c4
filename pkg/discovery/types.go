package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service type and domain.
const (
	ServiceType = "_oscjson._tcp"
	Domain      = "local."
)

// MaxInstanceNameLen is the DNS label limit for instance names.
const MaxInstanceNameLen = 63

// TXT keys.
const (
	TXTKeyOSCPort      = "osc.port"
	TXTKeyOSCTransport = "osc.transport"
)

// Discovery errors.
var (
	ErrInvalidInstanceName = errors.New("invalid instance name")
	ErrInvalidPort         = errors.New("invalid port")
	ErrNotFound            = errors.New("service not found")
)

// Info describes an OSCQuery server to advertise.
type Info struct {
	// Name is the instance name, usually the device name.
	Name string

	// Port is the HTTP/WebSocket port.
	Port int

	// OSCPort is the OSC side channel port (optional).
	OSCPort int

	// OSCTransport is "UDP" or "TCP" (default: UDP when OSCPort is set).
	OSCTransport string

	// Interface restricts the advertisement to one interface (default: all).
	Interface string

	// TTL overrides the DNS record TTL.
	TTL time.Duration
}

// Service is a discovered OSCQuery server.
type Service struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
	OSCPort   int
	TXT       TXTRecordMap
}

// Endpoint returns host:port for the first known address, falling back
// to the advertised host name.
func (s Service) Endpoint() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}
