package subscription

import (
	"sync"
	"time"

	"github.com/ossia-go/paramtree/pkg/value"
)

// Coalescer accumulates changes per address within a minimum interval.
type Coalescer struct {
	mu sync.Mutex

	// MinInterval is the minimum time between two flushes of one window.
	MinInterval time.Duration

	// lastValues holds the last flushed value per address.
	lastValues map[string]value.Value

	// pending accumulates changes during the coalescing window, in first
	// change order.
	pending map[string]value.Value
	order   []string

	windowStart time.Time
	lastFlushed time.Time
}

// NewCoalescer creates a coalescer with the given window.
func NewCoalescer(minInterval time.Duration) *Coalescer {
	return &Coalescer{
		MinInterval: minInterval,
		lastValues:  make(map[string]value.Value),
		pending:     make(map[string]value.Value),
	}
}

// Record stores a change. It returns true if the change opened a new window.
func (c *Coalescer) Record(address string, v value.Value) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	isNewWindow := len(c.order) == 0
	if isNewWindow {
		c.windowStart = time.Now()
	}
	if _, ok := c.pending[address]; !ok {
		c.order = append(c.order, address)
	}
	c.pending[address] = v
	return isNewWindow
}

// Prime sets the last notified value of an address without a flush.
func (c *Coalescer) Prime(address string, v value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastValues[address] = v
}

// Change is one coalesced update.
type Change struct {
	Address string
	Value   value.Value
}

// Flush returns the pending changes if the window has elapsed, clearing
// them. Bounce-backs are dropped when suppressBounceBack is set.
func (c *Coalescer) Flush(suppressBounceBack bool) []Change {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.order) == 0 || time.Since(c.windowStart) < c.MinInterval {
		return nil
	}

	var out []Change
	for _, addr := range c.order {
		v := c.pending[addr]
		if suppressBounceBack {
			if last, ok := c.lastValues[addr]; ok && value.Equal(last, v) {
				continue
			}
		}
		out = append(out, Change{Address: addr, Value: v})
		c.lastValues[addr] = v
	}

	c.pending = make(map[string]value.Value)
	c.order = c.order[:0]
	c.lastFlushed = time.Now()
	return out
}

// Forget drops all state for an address.
func (c *Coalescer) Forget(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.lastValues, address)
	if _, ok := c.pending[address]; !ok {
		return
	}
	delete(c.pending, address)
	for i, a := range c.order {
		if a == address {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// TimeUntilFlush returns the time until the current window expires, or 0
// when nothing is pending or the window already elapsed.
func (c *Coalescer) TimeUntilFlush() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.order) == 0 {
		return 0
	}
	elapsed := time.Since(c.windowStart)
	if elapsed >= c.MinInterval {
		return 0
	}
	return c.MinInterval - elapsed
}
