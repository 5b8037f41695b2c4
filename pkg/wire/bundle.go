package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Bundle groups packets that take effect at the same time.
type Bundle struct {
	Timetag  Timetag
	Elements []Packet
}

// NewBundle returns an empty bundle to be executed at t. The zero time
// means immediately.
func NewBundle(t time.Time) *Bundle {
	if t.IsZero() {
		return &Bundle{Timetag: Immediately}
	}
	return &Bundle{Timetag: NewTimetag(t)}
}

// Append adds packets to the bundle.
func (b *Bundle) Append(p ...Packet) {
	b.Elements = append(b.Elements, p...)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b *Bundle) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	writePaddedString(&buf, bundleTag)
	var word [8]byte
	binary.BigEndian.PutUint64(word[:], uint64(b.Timetag))
	buf.Write(word[:])
	for _, e := range b.Elements {
		data, err := e.MarshalBinary()
		if err != nil {
			return nil, err
		}
		binary.BigEndian.PutUint32(word[:4], uint32(len(data)))
		buf.Write(word[:4])
		buf.Write(data)
	}
	if buf.Len() > MaxPacketSize {
		return nil, fmt.Errorf("%w: bundle of %d bytes exceeds %d", ErrMalformed, buf.Len(), MaxPacketSize)
	}
	return buf.Bytes(), nil
}

// Messages flattens the bundle into its messages, depth first.
func (b *Bundle) Messages() []*Message {
	var out []*Message
	for _, e := range b.Elements {
		switch t := e.(type) {
		case *Message:
			out = append(out, t)
		case *Bundle:
			out = append(out, t.Messages()...)
		}
	}
	return out
}

func parseBundle(data []byte) (*Bundle, error) {
	tag, n, err := readPaddedString(data)
	if err != nil {
		return nil, err
	}
	if tag != bundleTag {
		return nil, fmt.Errorf("%w: bundle tag %q", ErrMalformed, tag)
	}
	data = data[n:]
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: missing time tag", ErrMalformed)
	}
	b := &Bundle{Timetag: Timetag(binary.BigEndian.Uint64(data))}
	data = data[8:]
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: short element size", ErrMalformed)
		}
		size := int(binary.BigEndian.Uint32(data))
		data = data[4:]
		if size > len(data) {
			return nil, fmt.Errorf("%w: element length %d", ErrMalformed, size)
		}
		elem, err := ParsePacket(data[:size])
		if err != nil {
			return nil, err
		}
		b.Elements = append(b.Elements, elem)
		data = data[size:]
	}
	return b, nil
}
