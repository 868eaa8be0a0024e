package ckernel

import "time"

// wallClockNanos returns the current wall-clock time in nanoseconds. It
// exists as a seam so tests can substitute a deterministic clock.
var wallClockNanos = func() int64 { return time.Now().UnixNano() }
