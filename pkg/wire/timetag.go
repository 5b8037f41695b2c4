package wire

import (
	"time"
)

// Timetag is a 64-bit NTP time stamp: seconds since 1900-01-01 in the
// upper half and the fraction of a second in the lower half.
type Timetag uint64

// Immediately is the reserved time tag meaning "now".
const Immediately Timetag = 1

// secondsFrom1900To1970 is the NTP epoch offset.
const secondsFrom1900To1970 = 2208988800

// NewTimetag converts t to a time tag.
func NewTimetag(t time.Time) Timetag {
	secs := uint64(t.Unix() + secondsFrom1900To1970)
	frac := uint64(t.Nanosecond()) << 32 / uint64(time.Second)
	return Timetag(secs<<32 | frac)
}

// Time converts the time tag to a time.Time.
func (t Timetag) Time() time.Time {
	secs := int64(t>>32) - secondsFrom1900To1970
	nanos := (uint64(t) & 0xffffffff) * uint64(time.Second) >> 32
	return time.Unix(secs, int64(nanos))
}

// Delay returns how long to wait before the tag is due, or 0 when it is
// immediate or in the past.
func (t Timetag) Delay(now time.Time) time.Duration {
	if t <= Immediately {
		return 0
	}
	if d := t.Time().Sub(now); d > 0 {
		return d
	}
	return 0
}
