// Package discovery implements mDNS/DNS-SD discovery for OSCQuery servers.
//
// Servers advertise the "_oscjson._tcp" service on their HTTP port. The
// instance name is the device name. TXT records are optional; this package
// publishes the OSC side channel port and transport so that clients can
// skip the HOST_INFO request:
//
//	osc.port=1234
//	osc.transport=UDP
//
// Browsing aggregates the addresses of one instance seen on several
// interfaces into a single Service.
package discovery
