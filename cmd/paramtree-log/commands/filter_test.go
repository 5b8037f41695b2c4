package commands

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/ossia-go/paramtree/pkg/log"
)

func readAll(t *testing.T, path string) []log.Event {
	t.Helper()
	reader, err := log.NewReader(path)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()

	var events []log.Event
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("failed to read event: %v", err)
		}
		events = append(events, event)
	}
}

func TestFilterByConnectionID(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, ConnectionID: "conn-1", Category: log.CategoryMessage},
		{Timestamp: ts, ConnectionID: "conn-2", Category: log.CategoryMessage},
		{Timestamp: ts, ConnectionID: "conn-1", Category: log.CategoryMessage},
	}
	path := createTestLogFile(t, events)
	outPath := filepath.Join(t.TempDir(), "filtered.plog")

	n, err := RunFilter(path, FilterOptions{Output: outPath, ConnID: "conn-1"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events written, got %d", n)
	}
	for _, e := range readAll(t, outPath) {
		if e.ConnectionID != "conn-1" {
			t.Errorf("expected conn-1, got %s", e.ConnectionID)
		}
	}
}

func TestFilterByTimeRange(t *testing.T) {
	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: base, Category: log.CategoryMessage},
		{Timestamp: base.Add(time.Hour), Category: log.CategoryMessage},
		{Timestamp: base.Add(2 * time.Hour), Category: log.CategoryMessage},
	}
	path := createTestLogFile(t, events)
	outPath := filepath.Join(t.TempDir(), "filtered.plog")

	_, err := RunFilter(path, FilterOptions{
		Output:    outPath,
		TimeStart: base.Add(30 * time.Minute).Format(time.RFC3339),
		TimeEnd:   base.Add(90 * time.Minute).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}

	got := readAll(t, outPath)
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(time.Hour)) {
		t.Errorf("unexpected event at %s", got[0].Timestamp)
	}
}

func TestFilterByProtocolAndAddress(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	outPath := filepath.Join(t.TempDir(), "filtered.plog")

	n, err := RunFilter(path, FilterOptions{
		Output:        outPath,
		Protocol:      "osc",
		AddressPrefix: "/synth/",
		Layer:         "wire",
		Direction:     "in",
		Category:      "message",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 event, got %d", n)
	}
	got := readAll(t, outPath)
	if got[0].Message == nil || got[0].Message.Address != "/synth/freq" {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestFilterByDevice(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	n, err := RunFilter(path, FilterOptions{
		Output: filepath.Join(t.TempDir(), "filtered.plog"),
		Device: "synth",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events, got %d", n)
	}
}

func TestFilterInvalidOptions(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "filtered.plog")

	tests := []struct {
		name string
		opts FilterOptions
	}{
		{"time start", FilterOptions{Output: out, TimeStart: "yesterday"}},
		{"time end", FilterOptions{Output: out, TimeEnd: "tomorrow"}},
		{"layer", FilterOptions{Output: out, Layer: "service"}},
		{"direction", FilterOptions{Output: out, Direction: "up"}},
		{"category", FilterOptions{Output: out, Category: "snapshot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RunFilter(path, tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}
