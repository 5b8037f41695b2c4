package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxPacketSize is the largest UDP payload a packet may occupy.
const MaxPacketSize = 65507

const bundleTag = "#bundle"

// Codec errors.
var (
	ErrMalformed       = errors.New("malformed OSC packet")
	ErrUnsupportedType = errors.New("unsupported OSC argument type")
)

// Impulse is the argument of the 'I' type tag.
type Impulse struct{}

// Char is the argument of the 'c' type tag.
type Char byte

// Packet is a Message or a Bundle.
type Packet interface {
	MarshalBinary() ([]byte, error)
}

// ParsePacket decodes one packet.
func ParsePacket(data []byte) (Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty packet", ErrMalformed)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrMalformed, len(data))
	}
	switch {
	case data[0] == '#':
		return parseBundle(data)
	case addressStart(data[0]):
		return parseMessage(data)
	}
	return nil, fmt.Errorf("%w: unexpected first byte %q", ErrMalformed, data[0])
}

// addressStart reports whether c may begin a message address. Besides OSC
// paths, Minuit addresses start with the application name.
func addressStart(c byte) bool {
	return c == '/' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func padBytesNeeded(n int) int {
	return (4 - n%4) % 4
}

func writePaddedString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	n := len(s) + 1
	buf.Write(make([]byte, 1+padBytesNeeded(n)))
}

func readPaddedString(data []byte) (string, int, error) {
	pos := bytes.IndexByte(data, 0)
	if pos < 0 {
		return "", 0, fmt.Errorf("%w: unterminated string", ErrMalformed)
	}
	n := pos + 1
	n += padBytesNeeded(n)
	if n > len(data) {
		return "", 0, fmt.Errorf("%w: string padding past end", ErrMalformed)
	}
	return string(data[:pos]), n, nil
}

func writeBlob(buf *bytes.Buffer, b []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(b)))
	buf.Write(size[:])
	buf.Write(b)
	buf.Write(make([]byte, padBytesNeeded(len(b))))
}

func readBlob(data []byte) ([]byte, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: short blob size", ErrMalformed)
	}
	size := int(binary.BigEndian.Uint32(data))
	if size < 0 || size > len(data)-4 {
		return nil, 0, fmt.Errorf("%w: blob length %d", ErrMalformed, size)
	}
	out := make([]byte, size)
	copy(out, data[4:4+size])
	n := 4 + size + padBytesNeeded(size)
	if n > len(data) {
		return nil, 0, fmt.Errorf("%w: blob padding past end", ErrMalformed)
	}
	return out, n, nil
}

// typeTag returns the tag of one argument, appending array brackets for
// nested slices.
func typeTag(tags *strings.Builder, arg any) error {
	switch t := arg.(type) {
	case int32:
		tags.WriteByte('i')
	case int64:
		tags.WriteByte('h')
	case float32:
		tags.WriteByte('f')
	case float64:
		tags.WriteByte('d')
	case string:
		tags.WriteByte('s')
	case []byte:
		tags.WriteByte('b')
	case Timetag:
		tags.WriteByte('t')
	case Char:
		tags.WriteByte('c')
	case bool:
		if t {
			tags.WriteByte('T')
		} else {
			tags.WriteByte('F')
		}
	case nil:
		tags.WriteByte('N')
	case Impulse:
		tags.WriteByte('I')
	case []any:
		tags.WriteByte('[')
		for _, e := range t {
			if err := typeTag(tags, e); err != nil {
				return err
			}
		}
		tags.WriteByte(']')
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, arg)
	}
	return nil
}

func writeArgument(buf *bytes.Buffer, arg any) {
	var word [8]byte
	switch t := arg.(type) {
	case int32:
		binary.BigEndian.PutUint32(word[:4], uint32(t))
		buf.Write(word[:4])
	case int64:
		binary.BigEndian.PutUint64(word[:], uint64(t))
		buf.Write(word[:])
	case float32:
		binary.BigEndian.PutUint32(word[:4], math.Float32bits(t))
		buf.Write(word[:4])
	case float64:
		binary.BigEndian.PutUint64(word[:], math.Float64bits(t))
		buf.Write(word[:])
	case string:
		writePaddedString(buf, t)
	case []byte:
		writeBlob(buf, t)
	case Timetag:
		binary.BigEndian.PutUint64(word[:], uint64(t))
		buf.Write(word[:])
	case Char:
		binary.BigEndian.PutUint32(word[:4], uint32(t))
		buf.Write(word[:4])
	case []any:
		for _, e := range t {
			writeArgument(buf, e)
		}
	}
}

// readArguments decodes the arguments described by tags. It returns the
// number of tags and bytes consumed.
func readArguments(tags string, data []byte, nested bool) ([]any, int, int, error) {
	args := []any{}
	ti, di := 0, 0
	need := func(n int) error {
		if di+n > len(data) {
			return fmt.Errorf("%w: argument data truncated", ErrMalformed)
		}
		return nil
	}
	for ti < len(tags) {
		tag := tags[ti]
		ti++
		switch tag {
		case 'i', 'c', 'r', 'm':
			if err := need(4); err != nil {
				return nil, 0, 0, err
			}
			u := binary.BigEndian.Uint32(data[di:])
			di += 4
			if tag == 'c' {
				args = append(args, Char(u))
			} else {
				args = append(args, int32(u))
			}
		case 'f':
			if err := need(4); err != nil {
				return nil, 0, 0, err
			}
			args = append(args, math.Float32frombits(binary.BigEndian.Uint32(data[di:])))
			di += 4
		case 'h', 'd', 't':
			if err := need(8); err != nil {
				return nil, 0, 0, err
			}
			u := binary.BigEndian.Uint64(data[di:])
			di += 8
			switch tag {
			case 'h':
				args = append(args, int64(u))
			case 'd':
				args = append(args, math.Float64frombits(u))
			default:
				args = append(args, Timetag(u))
			}
		case 's', 'S':
			s, n, err := readPaddedString(data[di:])
			if err != nil {
				return nil, 0, 0, err
			}
			di += n
			args = append(args, s)
		case 'b':
			b, n, err := readBlob(data[di:])
			if err != nil {
				return nil, 0, 0, err
			}
			di += n
			args = append(args, b)
		case 'T':
			args = append(args, true)
		case 'F':
			args = append(args, false)
		case 'N':
			args = append(args, nil)
		case 'I':
			args = append(args, Impulse{})
		case '[':
			sub, nt, nd, err := readArguments(tags[ti:], data[di:], true)
			if err != nil {
				return nil, 0, 0, err
			}
			ti += nt
			di += nd
			args = append(args, sub)
		case ']':
			if !nested {
				return nil, 0, 0, fmt.Errorf("%w: unbalanced ']'", ErrMalformed)
			}
			return args, ti, di, nil
		default:
			return nil, 0, 0, fmt.Errorf("%w: tag %q", ErrUnsupportedType, tag)
		}
	}
	if nested {
		return nil, 0, 0, fmt.Errorf("%w: unbalanced '['", ErrMalformed)
	}
	return args, ti, di, nil
}
