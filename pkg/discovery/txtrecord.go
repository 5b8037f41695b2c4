package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info Info) TXTRecordMap {
	txt := make(TXTRecordMap)
	if info.OSCPort > 0 {
		txt[TXTKeyOSCPort] = strconv.Itoa(info.OSCPort)
		transport := info.OSCTransport
		if transport == "" {
			transport = "UDP"
		}
		txt[TXTKeyOSCTransport] = strings.ToUpper(transport)
	}
	return txt
}

// oscPort returns the advertised OSC port, or 0.
func (t TXTRecordMap) oscPort() int {
	p, err := strconv.Atoi(t[TXTKeyOSCPort])
	if err != nil || p <= 0 || p > 65535 {
		return 0
	}
	return p
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value"
// strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			// Key without value (boolean flag)
			v = ""
		}
		txt[k] = v
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidInstanceName)
	}
	if len(name) > MaxInstanceNameLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidInstanceName, len(name), MaxInstanceNameLen)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: control character", ErrInvalidInstanceName)
		}
	}
	return nil
}
