// Command paramtree-log views and analyzes protocol capture files.
//
// Capture files are written by paramtree-device with the -event-log flag
// (or event_log in the device file).
//
// Usage:
//
//	paramtree-log <command> [flags] <file.plog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View only decoded OSC messages
//	paramtree-log view --layer wire device.plog
//
//	# View traffic for one subtree
//	paramtree-log view --address /synth device.plog
//
//	# Export to CSV
//	paramtree-log export --format csv -o device.csv device.plog
//
//	# Keep only Minuit handshakes
//	paramtree-log filter --protocol minuit --category state -o minuit.plog device.plog
//
//	# Show statistics
//	paramtree-log stats device.plog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ossia-go/paramtree/cmd/paramtree-log/commands"
)

const usage = `paramtree-log - Parameter Tree Protocol Log Analyzer

Usage:
  paramtree-log <command> [flags] <file.plog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "paramtree-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// parseArgs parses the flag set and returns the log file argument.
func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func usageFor(fs *flag.FlagSet, header string) func() {
	return func() {
		fmt.Fprint(os.Stderr, header)
		fs.PrintDefaults()
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = usageFor(fs, `paramtree-log view - View log file in human-readable format

Usage:
  paramtree-log view [flags] <file.plog>

Flags:
`)

	layer := fs.String("layer", "", "Filter by layer (transport, wire, protocol)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, state, error)")
	protocol := fs.String("protocol", "", "Filter by protocol (osc, minuit, oscquery, ...)")
	address := fs.String("address", "", "Filter messages by address prefix")

	path := parseArgs(fs, args)

	filter := commands.ViewFilter{
		Protocol:      *protocol,
		AddressPrefix: *address,
	}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = usageFor(fs, `paramtree-log export - Export log file to JSON or CSV format

Usage:
  paramtree-log export [flags] <file.plog>

Flags:
`)

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path := parseArgs(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = usageFor(fs, `paramtree-log filter - Filter log file and write to new file

Usage:
  paramtree-log filter [flags] <file.plog>

Flags:
`)

	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.Protocol, "protocol", "", "Filter by protocol (osc, minuit, oscquery, ...)")
	fs.StringVar(&opts.Device, "device", "", "Filter by device name")
	fs.StringVar(&opts.AddressPrefix, "address", "", "Filter messages by address prefix")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, protocol)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")

	path := parseArgs(fs, args)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	n, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, opts.Output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `paramtree-log stats - Show statistics about the log file

Usage:
  paramtree-log stats <file.plog>

`)
	}

	path := parseArgs(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
