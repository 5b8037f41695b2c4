package subscription

import (
	"sync"
)

// Token identifies a registration within one Registry.
type Token uint64

type entry[F any] struct {
	token Token
	fn    F
}

// Registry is an ordered, token-keyed list of callbacks. The zero value is
// ready to use.
type Registry[F any] struct {
	mu      sync.RWMutex
	next    Token
	entries []entry[F]
}

// Add registers fn and returns its token.
func (r *Registry[F]) Add(fn F) Token {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.entries = append(r.entries, entry[F]{token: r.next, fn: fn})
	return r.next
}

// Remove unregisters the callback with the given token. It reports whether
// a callback was removed.
func (r *Registry[F]) Remove(tok Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.token == tok {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns the registered callbacks in registration order.
func (r *Registry[F]) Snapshot() []F {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return nil
	}
	out := make([]F, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.fn
	}
	return out
}

// Len returns the number of registrations.
func (r *Registry[F]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes every registration. Tokens issued earlier stay retired.
func (r *Registry[F]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
