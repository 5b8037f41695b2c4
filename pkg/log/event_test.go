package log

import (
	"errors"
	"testing"
	"time"

	"github.com/ossia-go/paramtree/pkg/wire"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerWire.String(), "WIRE"},
		{LayerProtocol.String(), "PROTOCOL"},
		{CategoryMessage.String(), "MESSAGE"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{StateEntityConnection.String(), "CONNECTION"},
		{StateEntityHandshake.String(), "HANDSHAKE"},
		{StateEntityListen.String(), "LISTEN"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456789, time.UTC)
	original := Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-def6-7890-abcd-ef1234567890",
		Direction:    DirectionOut,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Protocol:     "oscquery",
		RemoteAddr:   "192.168.1.100:5678",
		Device:       "synth",
		Message: &MessageEvent{
			Address:   "/filter/cutoff",
			TypeTags:  ",f",
			Arguments: "440",
			Size:      24,
		},
	}

	data, err := EncodeEvent(original)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, original.Timestamp)
	}
	if decoded.ConnectionID != original.ConnectionID {
		t.Errorf("ConnectionID: got %q, want %q", decoded.ConnectionID, original.ConnectionID)
	}
	if decoded.Direction != original.Direction {
		t.Errorf("Direction: got %v, want %v", decoded.Direction, original.Direction)
	}
	if decoded.Protocol != original.Protocol {
		t.Errorf("Protocol: got %q, want %q", decoded.Protocol, original.Protocol)
	}
	if decoded.RemoteAddr != original.RemoteAddr {
		t.Errorf("RemoteAddr: got %q, want %q", decoded.RemoteAddr, original.RemoteAddr)
	}
	if decoded.Device != original.Device {
		t.Errorf("Device: got %q, want %q", decoded.Device, original.Device)
	}
	if decoded.Message == nil {
		t.Fatal("Message payload missing")
	}
	if *decoded.Message != *original.Message {
		t.Errorf("Message: got %+v, want %+v", *decoded.Message, *original.Message)
	}
	if decoded.Packet != nil || decoded.StateChange != nil || decoded.Error != nil {
		t.Error("unexpected extra payloads")
	}
}

func TestPayloadCBORRoundTrip(t *testing.T) {
	events := []Event{
		{
			Layer:  LayerTransport,
			Packet: &PacketEvent{Size: 256, Data: []byte{1, 2, 3}, Truncated: true},
		},
		{
			Category:    CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityHandshake, OldState: "PENDING", NewState: "READY", Reason: "namespace reply"},
		},
		{
			Category: CategoryError,
			Error:    &ErrorEventData{Layer: LayerWire, Message: "bad tag", Context: "decode"},
		},
	}
	for _, ev := range events {
		ev.Timestamp = time.Now()
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("EncodeEvent failed: %v", err)
		}
		got, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		switch {
		case ev.Packet != nil:
			if got.Packet == nil || got.Packet.Size != 256 || !got.Packet.Truncated || len(got.Packet.Data) != 3 {
				t.Errorf("Packet: got %+v", got.Packet)
			}
		case ev.StateChange != nil:
			if got.StateChange == nil || *got.StateChange != *ev.StateChange {
				t.Errorf("StateChange: got %+v", got.StateChange)
			}
		case ev.Error != nil:
			if got.Error == nil || *got.Error != *ev.Error {
				t.Errorf("Error: got %+v", got.Error)
			}
		}
	}
}

type recordingLogger struct {
	events []Event
}

func (r *recordingLogger) Log(e Event) { r.events = append(r.events, e) }

func TestCapture(t *testing.T) {
	rec := &recordingLogger{}
	c := Capture{Logger: rec, Protocol: "osc", Device: "dev"}.WithConnection("c1")

	big := make([]byte, MaxLogPacketDataSize+10)
	c.Packet(DirectionIn, "1.2.3.4:9", big, len(big))
	c.Message(DirectionOut, "1.2.3.4:9", wire.NewMessage("/a", int32(1), "x"), 16)
	c.State(StateEntityConnection, "peer", "", "CONNECTED", "")
	c.Error(LayerWire, "peer", errors.New("boom"), "decode")
	c.Error(LayerWire, "peer", nil, "ignored")

	if len(rec.events) != 4 {
		t.Fatalf("got %d events, want 4", len(rec.events))
	}
	for _, e := range rec.events {
		if e.Protocol != "osc" || e.Device != "dev" || e.ConnectionID != "c1" {
			t.Errorf("event not stamped: %+v", e)
		}
	}
	if p := rec.events[0].Packet; !p.Truncated || len(p.Data) != MaxLogPacketDataSize || p.Size != len(big) {
		t.Errorf("packet: size=%d len=%d truncated=%v", p.Size, len(p.Data), p.Truncated)
	}
	m := rec.events[1].Message
	if m.Address != "/a" || m.TypeTags != ",is" || m.Arguments != "1 x" {
		t.Errorf("message: %+v", m)
	}
	if rec.events[2].StateChange.NewState != "CONNECTED" {
		t.Errorf("state: %+v", rec.events[2].StateChange)
	}
	if rec.events[3].Error.Message != "boom" {
		t.Errorf("error: %+v", rec.events[3].Error)
	}

	// A zero Capture drops everything.
	var zero Capture
	if zero.Enabled() {
		t.Error("zero capture should be disabled")
	}
	zero.Packet(DirectionIn, "", []byte{1}, 1)
}

func TestMultiLogger(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b, NoopLogger{})
	if m.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", m.Len())
	}
	m.Log(Event{ConnectionID: "x"})
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events not fanned out: %d %d", len(a.events), len(b.events))
	}
}
