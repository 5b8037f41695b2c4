package interactive

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/value"
)

// SimulateTag marks nodes whose parameter the simulator animates.
const SimulateTag = "simulate"

// Simulator animates tagged parameters with a slow sine sweep across their
// domain. Floats and ints sweep the range, bools toggle every half period.
type Simulator struct {
	dev    *model.Device
	period time.Duration
	tick   time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// NewSimulator returns a stopped simulator sweeping once per period.
func NewSimulator(dev *model.Device, period time.Duration, logger *slog.Logger) *Simulator {
	if period <= 0 {
		period = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		dev:    dev,
		period: period,
		tick:   100 * time.Millisecond,
		logger: logger,
	}
}

// Running reports whether the simulation loop is active.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Start launches the simulation loop. Starting twice is a no-op.
func (s *Simulator) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.started = time.Now()
	go s.run(ctx, s.done)
	s.logger.Info("simulation started", "period", s.period)
}

// Stop ends the simulation loop and waits for it to exit.
func (s *Simulator) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("simulation stopped")
}

func (s *Simulator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(s.started)
			phase := math.Mod(float64(elapsed)/float64(s.period), 1)
			s.Step(phase)
		}
	}
}

// Step pushes the values for phase (0 <= phase < 1) into every tagged
// parameter and returns how many were updated.
func (s *Simulator) Step(phase float64) int {
	n := 0
	for _, p := range s.targets() {
		v, ok := simulatedValue(p, phase)
		if !ok {
			continue
		}
		if err := p.Push(v); err != nil {
			s.logger.Debug("simulation push failed", "address", p.Address(), "err", err)
			continue
		}
		n++
	}
	return n
}

func (s *Simulator) targets() []*model.Parameter {
	var out []*model.Parameter
	var walk func(n model.Node)
	walk = func(n model.Node) {
		if p, ok := n.Parameter(); ok && hasTag(n, SimulateTag) {
			out = append(out, p)
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(s.dev.Root())
	return out
}

func hasTag(n model.Node, tag string) bool {
	for _, t := range n.Tags() {
		if t == tag {
			return true
		}
	}
	return false
}

func simulatedValue(p *model.Parameter, phase float64) (value.Value, bool) {
	wave := 0.5 + 0.5*math.Sin(2*math.Pi*phase)

	switch p.Type() {
	case value.TypeBool:
		return value.Bool(phase < 0.5), true
	case value.TypeFloat:
		lo, hi := bounds(p, 0, 1)
		return value.Float(float32(lo + (hi-lo)*wave)), true
	case value.TypeInt:
		lo, hi := bounds(p, 0, 100)
		return value.Int(int32(math.Round(lo + (hi-lo)*wave))), true
	default:
		return value.Value{}, false
	}
}

// bounds returns the domain range of p, falling back to lo and hi for
// missing ends.
func bounds(p *model.Parameter, lo, hi float64) (float64, float64) {
	d := p.Domain()
	if v, ok := d.Min(); ok {
		if f, err := v.ToFloat(); err == nil {
			lo = float64(f)
		}
	}
	if v, ok := d.Max(); ok {
		if f, err := v.ToFloat(); err == nil {
			hi = float64(f)
		}
	}
	return lo, hi
}
