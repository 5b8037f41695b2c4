// Command paramtree-device serves a parameter tree over OSC, Minuit and
// OSCQuery.
//
// The tree and its protocols come from a device file (YAML or TOML, see
// package config). Flags override the file or, without one, describe a
// small device on their own.
//
// Usage:
//
//	paramtree-device [flags]
//
// Flags:
//
//	-config string         Device file (.yaml, .yml, .toml)
//	-name string           Device name (default "paramtree")
//	-osc-port int          Add an OSC protocol listening on this port
//	-osc-remote string     Remote host:port for the OSC protocol
//	-oscquery-port int     Add an OSCQuery server on this WebSocket port
//	-advertise             Advertise the OSCQuery server over mDNS
//	-mirror string         Mirror a remote OSCQuery server (URL or host:port)
//	-log-level string      trace, debug, info, warn, error, critical (default "info")
//	-log-host string       Ship logs to a remote log server (ws:// URL)
//	-event-log string      Write a protocol capture file for paramtree-log
//	-metrics-addr string   Serve Prometheus metrics, e.g. ":9090"
//	-interactive           Start the interactive shell
//	-simulate              Animate parameters tagged "simulate"
//
// Examples:
//
//	# Serve a device file over OSCQuery and OSC
//	paramtree-device -config synth.yaml
//
//	# Explore a remote OSCQuery server
//	paramtree-device -mirror 192.168.1.20:5678 -interactive
//
//	# Quick OSC endpoint with capture
//	paramtree-device -osc-port 9000 -event-log osc.plog -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ossia-go/paramtree/cmd/paramtree-device/interactive"
	"github.com/ossia-go/paramtree/pkg/config"
	"github.com/ossia-go/paramtree/pkg/log"
	"github.com/ossia-go/paramtree/pkg/metrics"
)

// Flags holds the command-line settings.
type Flags struct {
	ConfigFile   string
	Name         string
	OSCPort      int
	OSCRemote    string
	OSCQueryPort int
	Advertise    bool
	Mirror       string
	LogLevel     string
	LogHost      string
	EventLog     string
	MetricsAddr  string
	Interactive  bool
	Simulate     bool
	SimPeriod    time.Duration
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Device file (.yaml, .yml, .toml)")
	flag.StringVar(&flags.Name, "name", "", "Device name (default \"paramtree\")")
	flag.IntVar(&flags.OSCPort, "osc-port", -1, "Add an OSC protocol listening on this port")
	flag.StringVar(&flags.OSCRemote, "osc-remote", "", "Remote host:port for the OSC protocol")
	flag.IntVar(&flags.OSCQueryPort, "oscquery-port", -1, "Add an OSCQuery server on this WebSocket port")
	flag.BoolVar(&flags.Advertise, "advertise", false, "Advertise the OSCQuery server over mDNS")
	flag.StringVar(&flags.Mirror, "mirror", "", "Mirror a remote OSCQuery server (URL or host:port)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error, critical")
	flag.StringVar(&flags.LogHost, "log-host", "", "Remote log server URL")
	flag.StringVar(&flags.EventLog, "event-log", "", "Protocol capture file")
	flag.StringVar(&flags.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Start the interactive shell")
	flag.BoolVar(&flags.Simulate, "simulate", false, "Animate parameters tagged \"simulate\"")
	flag.DurationVar(&flags.SimPeriod, "sim-period", 10*time.Second, "Simulation sweep period")
}

func main() {
	flag.Parse()

	file, err := deviceFile(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &switchWriter{w: os.Stderr}
	logger, closeLog, err := setupLogging(ctx, file, out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(ctx, cancel, file, logger, out); err != nil {
		logger.Error("device failed", "err", err)
		closeLog()
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, file *config.File, logger *slog.Logger, out *switchWriter) error {
	logger.Info("starting device", "name", file.Name, "protocols", len(file.Protocols), "nodes", len(file.Namespace))

	opts := config.Options{Logger: logger}

	if file.EventLog != "" {
		fl, err := log.NewFileLogger(file.EventLog)
		if err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		defer func() {
			if err := errors.Join(fl.Err(), fl.Close()); err != nil {
				logger.Warn("event log incomplete", "path", fl.Path(), "err", err)
			}
			logger.Info("event log closed", "path", fl.Path(), "events", fl.Events())
		}()
		if file.Level() <= log.LevelTrace {
			opts.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(logger), fl)
		} else {
			opts.ProtocolLogger = fl
		}
		logger.Info("capturing protocol events", "path", file.EventLog)
	}

	if file.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		opts.Metrics = m
		stop, err := serveMetrics(file.MetricsAddr, reg, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	buildCtx, buildCancel := context.WithTimeout(ctx, 30*time.Second)
	dev, err := config.Build(buildCtx, file, opts)
	buildCancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Warn("close device", "err", err)
		}
	}()
	logger.Info("device ready", "nodes", dev.NodeCount())

	sim := interactive.NewSimulator(dev, flags.SimPeriod, logger)
	if flags.Simulate {
		sim.Start(ctx)
	}
	defer sim.Stop()

	var wg sync.WaitGroup
	if flags.Interactive {
		console, err := interactive.New(dev, sim)
		if err != nil {
			return err
		}
		// Log lines go through readline so they do not clobber the prompt.
		out.Set(console.Stderr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			console.Run(ctx, cancel)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancel()
	wg.Wait()
	out.Set(os.Stderr)
	return nil
}

// deviceFile loads the device file named by f, or starts from an empty
// one, and applies the flag overrides.
func deviceFile(f Flags) (*config.File, error) {
	file := &config.File{}
	if f.ConfigFile != "" {
		loaded, err := config.Load(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	switch {
	case f.Name != "":
		file.Name = f.Name
	case file.Name == "":
		file.Name = "paramtree"
	}
	if f.LogLevel != "" {
		file.LogLevel = f.LogLevel
	}
	if f.LogHost != "" {
		file.LogHost = f.LogHost
	}
	if f.EventLog != "" {
		file.EventLog = f.EventLog
	}
	if f.MetricsAddr != "" {
		file.MetricsAddr = f.MetricsAddr
	}

	if f.OSCPort >= 0 || f.OSCRemote != "" {
		p := config.Protocol{Kind: config.KindOSC, Name: uniqueName(file, config.KindOSC)}
		if f.OSCPort >= 0 {
			p.LocalPort = &f.OSCPort
		}
		if f.OSCRemote != "" {
			host, port, err := splitHostPort(f.OSCRemote)
			if err != nil {
				return nil, fmt.Errorf("%w: -osc-remote: %w", config.ErrInvalidConfig, err)
			}
			p.RemoteHost, p.RemotePort = host, &port
		}
		file.Protocols = append(file.Protocols, p)
	}
	if f.OSCQueryPort >= 0 {
		file.Protocols = append(file.Protocols, config.Protocol{
			Kind:      config.KindOSCQuery,
			Name:      uniqueName(file, config.KindOSCQuery),
			WSPort:    &f.OSCQueryPort,
			Advertise: f.Advertise,
		})
	}
	if f.Mirror != "" {
		file.Protocols = append(file.Protocols, config.Protocol{
			Kind: config.KindMirror,
			Name: uniqueName(file, config.KindMirror),
			Host: f.Mirror,
		})
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file, nil
}

// uniqueName returns kind, or kind with a numeric suffix if the file
// already has a protocol of that name.
func uniqueName(file *config.File, kind string) string {
	taken := make(map[string]bool, len(file.Protocols))
	for _, p := range file.Protocols {
		taken[p.ProtocolName()] = true
	}
	name := kind
	for i := 2; taken[name]; i++ {
		name = kind + strconv.Itoa(i)
	}
	return name
}

func splitHostPort(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}

// setupLogging returns the operational logger. Logs go to out, or to the
// remote log server when the file names one.
func setupLogging(ctx context.Context, file *config.File, out io.Writer) (*slog.Logger, func(), error) {
	level := file.Level()

	if file.LogHost == "" {
		h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level.Slog()})
		return slog.New(h), func() {}, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	sink, err := log.DialRemoteSink(dialCtx, log.DefaultRemoteConfig(file.LogHost))
	if err != nil {
		return nil, nil, err
	}
	sink.InitHeartbeat(os.Getpid(), strings.Join(os.Args, " "))

	var once sync.Once
	closeSink := func() {
		once.Do(func() {
			if err := sink.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "close log sink: %v\n", err)
			}
		})
	}
	return slog.New(log.NewHandler(sink, level)), closeSink, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// switchWriter forwards to a writer that can be replaced while logging.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
