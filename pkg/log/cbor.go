package log

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// A capture file is a CBOR sequence (RFC 8742) of Event maps. Files written
// by FileLogger start with the self-describe tag 55799 so CBOR aware tools
// recognize them; readers accept files with or without it.
var captureMagic = []byte{0xd9, 0xd9, 0xf7}

var (
	captureEnc = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
		TimeTag:       cbor.EncTagRequired,
	})
	captureDec = mustDecMode(cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyQuiet,
		MaxNestedLevels: 16,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic("log: capture encoding: " + err.Error())
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic("log: capture decoding: " + err.Error())
	}
	return m
}

// EncodeEvent returns the capture record of event.
func EncodeEvent(event Event) ([]byte, error) {
	return captureEnc.Marshal(event)
}

// DecodeEvent parses one capture record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := captureDec.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns an encoder appending capture records to w.
func NewEncoder(w io.Writer) *cbor.Encoder { return captureEnc.NewEncoder(w) }

// NewDecoder returns a decoder reading successive capture records from r.
func NewDecoder(r io.Reader) *cbor.Decoder { return captureDec.NewDecoder(r) }
