package services

import (
	"math"
	"time"
)

// Rollover is a closed one-minute bucket handed to the alert emitter.
type Rollover struct {
	Start time.Time
	Bytes uint64
}

// Window accumulates bytes for the current minute of feed time. It is owned
// by a single goroutine and does no locking.
type Window struct {
	start time.Time
	bytes uint64
	set   bool
}

// Observe adds one packet to the window. When the packet's minute differs
// from the current bucket (forwards or backwards) the current bucket is
// closed and returned, and a new bucket starts with this packet's bytes.
// The first observation only primes the window.
func (w *Window) Observe(ts time.Time, length uint64) *Rollover {
	minute := ts.Truncate(time.Minute)

	if !w.set {
		w.start, w.bytes, w.set = minute, length, true
		return nil
	}

	if minute.Equal(w.start) {
		w.bytes = addSaturating(w.bytes, length)
		return nil
	}

	closed := &Rollover{Start: w.start, Bytes: w.bytes}
	w.start, w.bytes = minute, length
	return closed
}

// addSaturating adds without wrapping; a pinned total still exceeds any
// threshold.
func addSaturating(a, b uint64) uint64 {
	if b > math.MaxUint64-a {
		return math.MaxUint64
	}
	return a + b
}

// Current reports the open bucket, if any.
func (w *Window) Current() (start time.Time, bytes uint64, ok bool) {
	return w.start, w.bytes, w.set
}
