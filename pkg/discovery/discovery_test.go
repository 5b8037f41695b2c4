package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTXT(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want TXTRecordMap
	}{
		{"no side channel", Info{Name: "synth", Port: 5678}, TXTRecordMap{}},
		{"default transport", Info{Name: "synth", Port: 5678, OSCPort: 1234}, TXTRecordMap{
			TXTKeyOSCPort: "1234", TXTKeyOSCTransport: "UDP",
		}},
		{"tcp", Info{Name: "synth", Port: 5678, OSCPort: 9000, OSCTransport: "tcp"}, TXTRecordMap{
			TXTKeyOSCPort: "9000", TXTKeyOSCTransport: "TCP",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeTXT(tt.info))
		})
	}
}

func TestTXTStrings(t *testing.T) {
	txt := TXTRecordMap{"b": "2", "a": "1", "flag": ""}
	strs := TXTRecordsToStrings(txt)
	assert.Equal(t, []string{"a=1", "b=2", "flag="}, strs)

	parsed := StringsToTXTRecords([]string{"a=1", "b=x=y", "flag", "=orphan", ""})
	assert.Equal(t, TXTRecordMap{"a": "1", "b": "x=y", "flag": ""}, parsed)
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName("My Synth"))
	assert.ErrorIs(t, ValidateInstanceName(""), ErrInvalidInstanceName)
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("x", MaxInstanceNameLen+1)), ErrInvalidInstanceName)
	assert.ErrorIs(t, ValidateInstanceName("bad\nname"), ErrInvalidInstanceName)
}

func TestAdvertiseRejectsInvalidInfo(t *testing.T) {
	_, err := Advertise(context.Background(), Info{Name: "", Port: 5678})
	assert.True(t, errors.Is(err, ErrInvalidInstanceName))

	_, err = Advertise(context.Background(), Info{Name: "synth", Port: 0})
	assert.True(t, errors.Is(err, ErrInvalidPort))
}

func TestEntryToService(t *testing.T) {
	entry := &zeroconf.ServiceEntry{ServiceRecord: zeroconf.ServiceRecord{Instance: "synth", Service: ServiceType, Domain: Domain}}
	entry.HostName = "synth.local."
	entry.Port = 5678
	entry.Text = []string{"osc.port=1234", "osc.transport=UDP"}
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	svc := entryToService(entry)
	assert.Equal(t, "synth", svc.Instance)
	assert.Equal(t, 5678, svc.Port)
	assert.Equal(t, 1234, svc.OSCPort)
	assert.Equal(t, []string{"192.168.1.20", "fe80::1"}, svc.Addresses)
	assert.Equal(t, "192.168.1.20:5678", svc.Endpoint())

	svc.Addresses = nil
	assert.Equal(t, "synth.local.:5678", svc.Endpoint())

	entry.Text = []string{"osc.port=notaport"}
	assert.Equal(t, 0, entryToService(entry).OSCPort)
}

func TestAddressAggregation(t *testing.T) {
	addrs := mergeAddresses([]string{"10.0.0.1"}, []string{"10.0.0.1", "10.0.0.2"})
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, addrs)

	gone := &zeroconf.ServiceEntry{ServiceRecord: zeroconf.ServiceRecord{Instance: "synth", Service: ServiceType, Domain: Domain}}
	gone.AddrIPv4 = []net.IP{net.ParseIP("10.0.0.1")}
	addrs = removeAddresses(addrs, gone)
	require.Len(t, addrs, 1)
	assert.Equal(t, "10.0.0.2", addrs[0])
}

func TestFindHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBrowser(BrowserConfig{}).Find(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
