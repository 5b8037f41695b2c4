// Package interactive provides the interactive command-line interface
// for paramtree-device.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/ossia-go/paramtree/pkg/discovery"
	"github.com/ossia-go/paramtree/pkg/inspect"
	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/protocol/minuit"
	"github.com/ossia-go/paramtree/pkg/protocol/multiplex"
	"github.com/ossia-go/paramtree/pkg/protocol/osc"
	"github.com/ossia-go/paramtree/pkg/protocol/oscquery"
	"github.com/ossia-go/paramtree/pkg/queue"
)

// watchInterval is how often watched values are drained to the terminal.
const watchInterval = 100 * time.Millisecond

// browseTimeout bounds the browse command.
const browseTimeout = 3 * time.Second

// Shell executes interactive commands against a device.
type Shell struct {
	dev       *model.Device
	inspector *inspect.Inspector
	formatter *inspect.Formatter
	sim       *Simulator
	out       io.Writer

	mu         sync.Mutex
	watch      *queue.Queue
	watchStop  context.CancelFunc
	watchDone  chan struct{}
	onPrompt   func(string)
	browseFunc func(ctx context.Context) (<-chan discovery.Service, error)
}

// NewShell returns a shell writing to out. sim may be nil.
func NewShell(dev *model.Device, sim *Simulator, out io.Writer) *Shell {
	return &Shell{
		dev:        dev,
		inspector:  inspect.NewInspector(dev),
		formatter:  inspect.NewFormatter(),
		sim:        sim,
		out:        out,
		browseFunc: discovery.NewBrowser(discovery.BrowserConfig{}).Browse,
	}
}

// Prompt returns the prompt for the working node.
func (s *Shell) Prompt() string {
	return fmt.Sprintf("%s:%s> ", s.dev.Name(), s.inspector.Cwd())
}

// Exec runs one command line. It returns false when the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" || strings.HasPrefix(input, "#") {
		return true
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "ls", "l":
		s.cmdList(args)
	case "cd":
		s.cmdCd(args)
	case "pwd":
		fmt.Fprintln(s.out, s.inspector.Cwd())
	case "tree", "t":
		s.cmdTree(args)
	case "get", "g":
		s.cmdGet(args)
	case "set", "s":
		s.cmdSet(args)
	case "attr", "a":
		s.cmdAttr(args)
	case "create", "mk":
		s.cmdCreate(args)
	case "rm":
		s.cmdRemove(args)
	case "watch", "w":
		s.cmdWatch(ctx, args)
	case "unwatch":
		s.cmdUnwatch(args)
	case "refresh":
		s.cmdRefresh(ctx)
	case "protocols", "p":
		s.cmdProtocols()
	case "browse":
		s.cmdBrowse(ctx)
	case "sim":
		s.cmdSim(ctx, args)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

// Close stops watching and the simulator.
func (s *Shell) Close() {
	s.stopWatch()
	if s.sim != nil {
		s.sim.Stop()
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Parameter Tree Commands:
  Navigation:
    ls [path]              - List children (patterns allowed)
    cd [path]              - Change working node (default: /)
    pwd                    - Print working node
    tree [path]            - Print the subtree

  Values:
    get <path>             - Read a parameter
    set <path> <value>     - Push a value (patterns allowed)
    watch <path>           - Print values pushed into matching parameters
    unwatch [path]         - Stop watching one path, or everything

  Attributes:
    attr <path>            - Show all attributes of a node
    attr <path:name>       - Show one attribute
    attr <path:name> <v>   - Set an attribute (no value unsets it)

  Namespace:
    create <path> [type]   - Create a node, with a parameter of type
    rm <path>              - Remove a node and its subtree
    refresh                - Fetch remote namespaces (mirrors, Minuit)

  Protocols:
    protocols              - List attached protocols
    browse                 - Look for OSCQuery servers on the network

  Simulation:
    sim start|stop|step    - Animate parameters tagged "simulate"

  General:
    help                   - Show this help
    quit                   - Exit

  Path Format:
    /synth/freq, freq, ../osc/*, /synth/freq:unit`)
}

func (s *Shell) errorf(err error) {
	fmt.Fprintf(s.out, "Error: %v\n", err)
}

func (s *Shell) cmdList(args []string) {
	input := ""
	if len(args) > 0 {
		input = args[0]
	}
	nodes, err := s.inspector.List(input)
	if err != nil {
		s.errorf(err)
		return
	}
	for _, n := range nodes {
		name := n.Name()
		if n.ChildCount() > 0 {
			name += "/"
		}
		if p, ok := n.Parameter(); ok {
			fmt.Fprintf(s.out, "  %s = %s\n", name, s.formatter.FormatValue(p.Value(), p.Unit()))
			continue
		}
		fmt.Fprintf(s.out, "  %s\n", name)
	}
}

func (s *Shell) cmdCd(args []string) {
	target := "/"
	if len(args) > 0 {
		target = args[0]
	}
	if err := s.inspector.Cd(target); err != nil {
		s.errorf(err)
		return
	}
	s.promptChanged()
}

func (s *Shell) cmdTree(args []string) {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}
	p, err := s.inspector.Parse(target)
	if err != nil {
		s.errorf(err)
		return
	}
	n, ok := s.dev.Root().Find(p.Address)
	if !ok {
		s.errorf(fmt.Errorf("%w: %s", inspect.ErrNodeNotFound, p.Address))
		return
	}
	fmt.Fprint(s.out, s.formatter.FormatTree(n))
}

func (s *Shell) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "Usage: get <path>")
		return
	}
	p, v, err := s.inspector.Read(args[0])
	if err != nil {
		s.errorf(err)
		return
	}
	fmt.Fprintf(s.out, "%s = %s\n", p.Address(), s.formatter.FormatValue(v, p.Unit()))
}

func (s *Shell) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: set <path> <value>")
		fmt.Fprintln(s.out, "  Example: set /synth/freq 440")
		return
	}
	if err := s.inspector.Write(args[0], strings.Join(args[1:], " ")); err != nil {
		s.errorf(err)
		return
	}
	fmt.Fprintln(s.out, "OK")
}

func (s *Shell) cmdAttr(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "Usage: attr <path>[:name] [value]")
		return
	}
	p, err := s.inspector.Parse(args[0])
	if err != nil {
		s.errorf(err)
		return
	}

	if p.Attribute == "" {
		n, ok := s.dev.Root().Find(p.Address)
		if !ok {
			s.errorf(fmt.Errorf("%w: %s", inspect.ErrNodeNotFound, p.Address))
			return
		}
		for _, attr := range inspect.AttributeNames() {
			if v, ok := inspect.FormatAttribute(n, attr); ok {
				fmt.Fprintf(s.out, "  %-18s %s\n", attr+":", v)
			}
		}
		return
	}

	if len(args) == 1 {
		v, err := s.inspector.GetAttribute(args[0])
		if err != nil {
			s.errorf(err)
			return
		}
		fmt.Fprintf(s.out, "%s = %s\n", p, v)
		return
	}
	if err := s.inspector.SetAttribute(args[0], strings.Join(args[1:], " ")); err != nil {
		s.errorf(err)
		return
	}
	fmt.Fprintln(s.out, "OK")
}

func (s *Shell) cmdCreate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "Usage: create <path> [type]")
		return
	}
	typ := ""
	if len(args) > 1 {
		typ = args[1]
	}
	n, err := s.inspector.Create(args[0], typ)
	if err != nil {
		s.errorf(err)
		return
	}
	fmt.Fprintf(s.out, "Created %s\n", n.Address())
}

func (s *Shell) cmdRemove(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "Usage: rm <path>")
		return
	}
	cwd := s.inspector.Cwd()
	if err := s.inspector.Remove(args[0]); err != nil {
		s.errorf(err)
		return
	}
	if s.inspector.Cwd() != cwd {
		s.promptChanged()
	}
	fmt.Fprintln(s.out, "OK")
}

// matching returns the parameters at a path or pattern.
func (s *Shell) matching(input string) ([]*model.Parameter, error) {
	p, err := s.inspector.Parse(input)
	if err != nil {
		return nil, err
	}
	var nodes []model.Node
	if p.IsPattern {
		nodes = s.dev.Root().FindPattern(p.Address)
	} else if n, ok := s.dev.Root().Find(p.Address); ok {
		nodes = []model.Node{n}
	}
	var params []*model.Parameter
	for _, n := range nodes {
		if param, ok := n.Parameter(); ok {
			params = append(params, param)
		}
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: %s", inspect.ErrNoParameter, p.Address)
	}
	return params, nil
}

func (s *Shell) cmdWatch(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "Usage: watch <path>")
		return
	}
	params, err := s.matching(args[0])
	if err != nil {
		s.errorf(err)
		return
	}

	s.mu.Lock()
	if s.watch == nil {
		s.watch = queue.New(s.dev)
		var wctx context.Context
		wctx, s.watchStop = context.WithCancel(ctx)
		s.watchDone = make(chan struct{})
		go s.drain(wctx, s.watch, s.watchDone)
	}
	q := s.watch
	s.mu.Unlock()

	for _, p := range params {
		if err := q.Register(p); err != nil {
			s.errorf(err)
			return
		}
	}
	fmt.Fprintf(s.out, "Watching %d parameter(s)\n", len(params))
}

func (s *Shell) drain(ctx context.Context, q *queue.Queue, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flushWatch(q)
		}
	}
}

func (s *Shell) flushWatch(q *queue.Queue) {
	for {
		p, v, ok := q.Pop()
		if !ok {
			return
		}
		fmt.Fprintf(s.out, "[watch] %s <- %s\n", p.Address(), s.formatter.FormatValue(v, p.Unit()))
	}
}

func (s *Shell) cmdUnwatch(args []string) {
	if len(args) == 0 {
		s.stopWatch()
		fmt.Fprintln(s.out, "Stopped watching")
		return
	}
	s.mu.Lock()
	q := s.watch
	s.mu.Unlock()
	if q == nil {
		return
	}
	params, err := s.matching(args[0])
	if err != nil {
		s.errorf(err)
		return
	}
	for _, p := range params {
		q.Unregister(p)
	}
}

func (s *Shell) stopWatch() {
	s.mu.Lock()
	q, stop, done := s.watch, s.watchStop, s.watchDone
	s.watch, s.watchStop, s.watchDone = nil, nil, nil
	s.mu.Unlock()
	if q == nil {
		return
	}
	stop()
	<-done
	q.Close()
}

func (s *Shell) cmdRefresh(ctx context.Context) {
	if err := s.dev.SyncNamespace(ctx); err != nil {
		s.errorf(err)
		return
	}
	fmt.Fprintf(s.out, "Namespace refreshed (%d nodes)\n", s.dev.NodeCount())
}

func (s *Shell) cmdProtocols() {
	protos := s.dev.Protocols()
	if len(protos) == 0 {
		fmt.Fprintln(s.out, "No protocols attached")
		return
	}
	for _, p := range protos {
		s.describeProtocol(p, "  ")
	}
}

func (s *Shell) describeProtocol(p model.Protocol, indent string) {
	switch p := p.(type) {
	case *osc.Protocol:
		fmt.Fprintf(s.out, "%s%s on %s\n", indent, p.Kind(), addrString(p.LocalAddr()))
	case *minuit.Protocol:
		state := "waiting"
		if p.Ready() {
			state = "ready"
		}
		fmt.Fprintf(s.out, "%s%s on %s (%s)\n", indent, p.Kind(), addrString(p.LocalAddr()), state)
	case *oscquery.Server:
		fmt.Fprintf(s.out, "%s%s http %s osc %s (%d clients)\n", indent, p.Kind(),
			addrString(p.HTTPAddr()), addrString(p.OSCAddr()), p.ClientCount())
	case *oscquery.Mirror:
		info := p.HostInfo()
		fmt.Fprintf(s.out, "%s%s of %q (osc port %d)\n", indent, p.Kind(), info.Name, info.OSCPort)
	case *multiplex.Multiplex:
		fmt.Fprintf(s.out, "%s%s\n", indent, p.Kind())
		for _, m := range p.Members() {
			s.describeProtocol(m, indent+"  ")
		}
	default:
		fmt.Fprintf(s.out, "%s%s\n", indent, p.Kind())
	}
}

func addrString(a fmt.Stringer) string {
	if a == nil {
		return "-"
	}
	return a.String()
}

func (s *Shell) cmdBrowse(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, browseTimeout)
	defer cancel()

	services, err := s.browseFunc(ctx)
	if err != nil {
		s.errorf(err)
		return
	}
	n := 0
	for svc := range services {
		fmt.Fprintf(s.out, "  %s at %s", svc.Instance, svc.Endpoint())
		if svc.OSCPort > 0 {
			fmt.Fprintf(s.out, " (osc %d)", svc.OSCPort)
		}
		fmt.Fprintln(s.out)
		n++
	}
	fmt.Fprintf(s.out, "Found %d server(s)\n", n)
}

func (s *Shell) cmdSim(ctx context.Context, args []string) {
	if s.sim == nil {
		fmt.Fprintln(s.out, "Simulation not available")
		return
	}
	if len(args) < 1 {
		fmt.Fprintf(s.out, "Simulation running: %v\n", s.sim.Running())
		return
	}
	switch args[0] {
	case "start":
		s.sim.Start(ctx)
	case "stop":
		s.sim.Stop()
	case "step":
		fmt.Fprintf(s.out, "Updated %d parameter(s)\n", s.sim.Step(0.25))
	default:
		fmt.Fprintln(s.out, "Usage: sim start|stop|step")
	}
}

func (s *Shell) promptChanged() {
	if s.onPrompt != nil {
		s.onPrompt(s.Prompt())
	}
}

// Console runs a Shell over a readline terminal.
type Console struct {
	shell *Shell
	rl    *readline.Instance
}

// New creates a console for dev. sim may be nil.
func New(dev *model.Device, sim *Simulator) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	shell := NewShell(dev, sim, rl.Stdout())
	shell.onPrompt = rl.SetPrompt
	rl.SetPrompt(shell.Prompt())
	return &Console{shell: shell, rl: rl}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	defer c.shell.Close()

	c.shell.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
		if !c.shell.Exec(ctx, line) {
			cancel()
			return
		}
	}
}
