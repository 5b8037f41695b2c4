// Package transport moves OSC packets between peers.
//
//	┌────────────────────────────────┐
//	│      OSC packets (pkg/wire)    │
//	├───────────────┬────────────────┤
//	│               │ Length prefix  │
//	│      UDP      ├────────────────┤
//	│               │      TCP       │
//	└───────────────┴────────────────┘
//
// PacketServer owns a UDP socket: a read loop delivers each datagram to a
// callback and SendTo writes datagrams from the same local port, so peers
// can reply to the source address. StreamServer and Dial carry the same
// packets over TCP, each prefixed with its length as a big-endian int32.
//
// Read loops never exit on a bad packet. Transient read failures are
// reported through OnError and retried with exponential backoff.
package transport
