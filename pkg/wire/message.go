package wire

import (
	"bytes"
	"fmt"
	"strings"
)

// Message is a single OSC message.
type Message struct {
	Address   string
	Arguments []any
}

// NewMessage returns a message for addr carrying args.
func NewMessage(addr string, args ...any) *Message {
	return &Message{Address: addr, Arguments: args}
}

// TypeTags returns the type tag string, including the leading ','.
func (m *Message) TypeTags() (string, error) {
	var tags strings.Builder
	tags.WriteByte(',')
	for _, arg := range m.Arguments {
		if err := typeTag(&tags, arg); err != nil {
			return "", err
		}
	}
	return tags.String(), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (m *Message) MarshalBinary() ([]byte, error) {
	if m.Address == "" || !addressStart(m.Address[0]) {
		return nil, fmt.Errorf("%w: invalid address %q", ErrMalformed, m.Address)
	}
	tags, err := m.TypeTags()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writePaddedString(&buf, m.Address)
	writePaddedString(&buf, tags)
	for _, arg := range m.Arguments {
		writeArgument(&buf, arg)
	}
	if buf.Len() > MaxPacketSize {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds %d", ErrMalformed, buf.Len(), MaxPacketSize)
	}
	return buf.Bytes(), nil
}

// String implements fmt.Stringer.
func (m *Message) String() string {
	tags, _ := m.TypeTags()
	var b strings.Builder
	b.WriteString(m.Address)
	b.WriteByte(' ')
	b.WriteString(tags)
	if len(m.Arguments) > 0 {
		b.WriteByte(' ')
		b.WriteString(FormatArguments(m.Arguments))
	}
	return b.String()
}

// FormatArguments renders arguments separated by spaces.
func FormatArguments(args []any) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		writeArgString(&b, arg)
	}
	return b.String()
}

func writeArgString(b *strings.Builder, arg any) {
	switch t := arg.(type) {
	case nil:
		b.WriteString("Nil")
	case Impulse:
		b.WriteString("Impulse")
	case []byte:
		fmt.Fprintf(b, "blob(%d)", len(t))
	case Char:
		fmt.Fprintf(b, "%q", rune(t))
	case Timetag:
		fmt.Fprintf(b, "%d", uint64(t))
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeArgString(b, e)
		}
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "%v", t)
	}
}

func parseMessage(data []byte) (*Message, error) {
	addr, n, err := readPaddedString(data)
	if err != nil {
		return nil, err
	}
	msg := &Message{Address: addr}
	data = data[n:]
	if len(data) == 0 {
		// Old implementations omit the type tag string entirely.
		return msg, nil
	}
	tags, n, err := readPaddedString(data)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(tags, ",") {
		return nil, fmt.Errorf("%w: type tags %q lack ','", ErrMalformed, tags)
	}
	args, _, _, err := readArguments(tags[1:], data[n:], false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", addr, err)
	}
	msg.Arguments = args
	return msg, nil
}
