package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ossia-go/paramtree/pkg/log"
)

var csvHeader = []string{
	"timestamp", "connection_id", "direction", "layer", "category",
	"protocol", "remote_addr", "device", "type", "address", "size", "arguments",
}

// exporter writes one event per record.
type exporter interface {
	write(event log.Event) error
	flush() error
}

type jsonlExporter struct{ enc *json.Encoder }

func (e jsonlExporter) write(event log.Event) error { return e.enc.Encode(event) }
func (e jsonlExporter) flush() error                { return nil }

type csvExporter struct{ w *csv.Writer }

func newCSVExporter(w io.Writer) (*csvExporter, error) {
	e := &csvExporter{w: csv.NewWriter(w)}
	if err := e.w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return e, nil
}

func (e *csvExporter) write(event log.Event) error {
	var address, size, args string
	switch {
	case event.Packet != nil:
		size = strconv.Itoa(event.Packet.Size)
	case event.Message != nil:
		address = event.Message.Address
		size = strconv.Itoa(event.Message.Size)
		args = event.Message.Arguments
	}
	return e.w.Write([]string{
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		event.ConnectionID,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		event.Protocol,
		event.RemoteAddr,
		event.Device,
		eventType(event),
		address,
		size,
		args,
	})
}

func (e *csvExporter) flush() error {
	e.w.Flush()
	return e.w.Error()
}

// RunExport converts the capture at path to format ("jsonl" or "csv"),
// writing to output or stdout when output is empty.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	var ex exporter
	switch format {
	case "jsonl":
		ex = jsonlExporter{enc: json.NewEncoder(w)}
	case "csv":
		if ex, err = newCSVExporter(w); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	for event, err := range reader.All() {
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := ex.write(event); err != nil {
			return fmt.Errorf("failed to export event: %w", err)
		}
	}
	return ex.flush()
}
