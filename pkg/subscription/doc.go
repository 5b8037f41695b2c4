// Package subscription implements callback lists and change coalescing for
// parameter trees.
//
// # Callback Registries
//
// A Registry stores subscriber callbacks keyed by an opaque Token. Tokens are
// issued from a per-registry counter starting at 1 and are never reused, so a
// stale token can never remove somebody else's callback. Removing an unknown
// token is a no-op.
//
// Callers take a Snapshot under the registry lock and invoke the callbacks
// outside of it, in registration order. A callback may therefore add or
// remove registrations without deadlocking; such changes take effect on the
// next notification.
//
// # Coalescing
//
// A Coalescer accumulates value changes per address during a minimum
// interval and hands out only the last value of each address when the
// window has elapsed. Changes that return to the last notified value within
// the window are dropped (bounce-back suppression). Protocol servers use it
// to honour a node's refresh rate towards remote listeners.
package subscription
