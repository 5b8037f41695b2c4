package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ossia-go/paramtree/pkg/log"
)

func TestFormatEvent(t *testing.T) {
	events := sampleEvents()
	tests := []struct {
		name  string
		event log.Event
		want  []string
	}{
		{
			name:  "packet",
			event: events[0],
			want: []string{
				"2026-01-28T10:15:32.123456Z [conn:abc12345] IN  TRANSPORT osc Packet",
				"Peer: 10.0.0.2:9000",
				"Size: 24 bytes",
				"Data: 2f61 (truncated)",
			},
		},
		{
			name:  "message",
			event: events[1],
			want: []string{
				"WIRE osc Message",
				"Address: /synth/freq",
				"Tags: ,f",
				"Args: 440",
			},
		},
		{
			name:  "state change",
			event: events[2],
			want: []string{
				"[conn:def67890] OUT PROTOCOL minuit State",
				"Entity: HANDSHAKE",
				"idle -> connected",
				"Reason: namespace answered",
			},
		},
		{
			name:  "error",
			event: events[3],
			want: []string{
				"[conn:] IN  WIRE oscquery Error",
				"Message: short packet",
				"Context: decode",
			},
		},
		{
			name:  "no payload",
			event: log.Event{Timestamp: events[0].Timestamp},
			want:  []string{"TRANSPORT - Unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatEvent(&buf, tt.event)
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestShortenConnID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc12345-6789", "abc12345"},
		{"abc12345", "abc12345"},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := shortenConnID(tt.in); got != tt.want {
			t.Errorf("shortenConnID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("Protocol"); err != nil || l != log.LayerProtocol {
		t.Errorf("ParseLayerFlag(Protocol) = %v, %v", l, err)
	}
	if _, err := ParseLayerFlag("service"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if d, err := ParseDirectionFlag("OUT"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(OUT) = %v, %v", d, err)
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
	if c, err := ParseCategoryFlag("state"); err != nil || c != log.CategoryState {
		t.Errorf("ParseCategoryFlag(state) = %v, %v", c, err)
	}
	if _, err := ParseCategoryFlag("control"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestRunView(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var all bytes.Buffer
	if err := RunView(path, ViewFilter{}, &all); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if n := strings.Count(all.String(), "[conn:"); n != 4 {
		t.Errorf("expected 4 events, got %d", n)
	}

	wire := log.LayerWire
	var filtered bytes.Buffer
	if err := RunView(path, ViewFilter{Layer: &wire, Protocol: "osc"}, &filtered); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	out := filtered.String()
	if n := strings.Count(out, "[conn:"); n != 1 {
		t.Errorf("expected 1 event, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, "/synth/freq") {
		t.Errorf("expected the wire message, got:\n%s", out)
	}

	var byAddr bytes.Buffer
	if err := RunView(path, ViewFilter{AddressPrefix: "/synth"}, &byAddr); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if n := strings.Count(byAddr.String(), "[conn:"); n != 1 {
		t.Errorf("expected 1 event for address prefix, got %d", n)
	}
}
