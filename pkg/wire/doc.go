// Package wire implements the OSC 1.0 packet format used by every protocol
// of the parameter tree.
//
// # Packets
//
// A packet is either a Message (address pattern, type tag string,
// arguments) or a Bundle ("#bundle", a 64-bit NTP time tag and
// length-prefixed elements, which may be bundles themselves). All strings
// are NUL terminated and padded to a multiple of four bytes; all numbers
// are big endian.
//
// # Type Tags
//
// Arguments are plain Go values:
//
//	i  int32          h  int64
//	f  float32        d  float64
//	s  string         S  string (symbol, decoded as string)
//	b  []byte         t  Timetag
//	c  Char           T/F bool
//	N  nil            I  Impulse
//	[ ]  []any (array)
//
// # Values
//
// ArgumentsFromValue and ValueFromArguments map tree values onto
// arguments. An impulse is a message without arguments, vectors are sent as
// consecutive floats and lists as one argument per element with nested
// lists as arrays.
package wire
