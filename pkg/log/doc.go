// Package log provides the two logging surfaces of a parameter tree device.
//
// # Protocol Capture
//
// The Logger interface receives Events describing traffic at the transport
// layer (raw packets), the wire layer (decoded OSC messages) and the
// protocol layer (connection state, handshakes, errors). Capture is separate
// from operational logging: it is a complete machine-readable trace.
//
//	// Console during development
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary file for later inspection with paramtree-log
//	fl, _ := log.NewFileLogger("/var/log/paramtree/device.plog")
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Files are a stream of CBOR encoded events with integer keys.
//
// # Leveled Sink
//
// Sink is the leveled message collaborator (Trace through Critical) with a
// process heartbeat. SlogSink writes to an *slog.Logger and RemoteSink
// ships messages to a log server over WebSocket. NewHandler adapts any Sink
// to an slog.Handler so the library only ever writes through slog.
package log
