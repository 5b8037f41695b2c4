// Package queue buffers parameter updates so that one consumer goroutine
// can drain values produced by protocol I/O goroutines.
package queue

import (
	"errors"
	"sync"

	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/subscription"
	"github.com/ossia-go/paramtree/pkg/value"
)

// ErrClosed is returned when registering on a closed queue.
var ErrClosed = errors.New("queue closed")

type item struct {
	param *model.Parameter
	val   value.Value
}

// Queue is a FIFO of (Parameter, Value) deliveries. Registered parameters
// enqueue every pushed value. Parameters removed from the tree are
// unregistered automatically and their pending entries discarded.
type Queue struct {
	dev *model.Device

	mu         sync.Mutex
	registered map[*model.Parameter]subscription.Token
	pending    []item
	head       int
	closed     bool

	deleting model.CallbackID
}

// New creates a queue bound to dev.
func New(dev *model.Device) *Queue {
	q := &Queue{
		dev:        dev,
		registered: make(map[*model.Parameter]subscription.Token),
	}
	q.deleting = dev.OnParameterDeleting(q.forget)
	return q
}

// Register starts queueing the values pushed into p. Registering twice is
// a no-op.
func (q *Queue) Register(p *model.Parameter) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if _, ok := q.registered[p]; ok {
		return nil
	}
	q.registered[p] = p.AddCallback(func(v value.Value) {
		q.enqueue(p, v)
	})
	return nil
}

// Unregister stops queueing p. Values already queued stay pending.
func (q *Queue) Unregister(p *model.Parameter) {
	q.mu.Lock()
	tok, ok := q.registered[p]
	delete(q.registered, p)
	q.mu.Unlock()

	if ok {
		p.RemoveCallback(tok)
	}
}

func (q *Queue) enqueue(p *model.Parameter, v value.Value) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	if _, ok := q.registered[p]; !ok {
		return
	}
	q.pending = append(q.pending, item{param: p, val: v})
}

// Pop returns the oldest pending delivery. It never blocks; ok is false
// when nothing is pending.
func (q *Queue) Pop() (p *model.Parameter, v value.Value, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.pending) {
		return nil, value.Value{}, false
	}
	it := q.pending[q.head]
	q.pending[q.head] = item{}
	q.head++
	if q.head == len(q.pending) {
		q.pending = q.pending[:0]
		q.head = 0
	}
	return it.param, it.val, true
}

// Len returns the number of pending deliveries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) - q.head
}

// Close unregisters every parameter and drops pending deliveries.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	regs := q.registered
	q.registered = nil
	q.pending = nil
	q.head = 0
	q.mu.Unlock()

	q.dev.RemoveCallback(q.deleting)
	for p, tok := range regs {
		p.RemoveCallback(tok)
	}
}

// forget drops p when it is deleted from the tree.
func (q *Queue) forget(p *model.Parameter) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.registered[p]; !ok {
		return
	}
	delete(q.registered, p)

	kept := q.pending[:0]
	for _, it := range q.pending[q.head:] {
		if it.param != p {
			kept = append(kept, it)
		}
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = item{}
	}
	q.pending = kept
	q.head = 0
}
