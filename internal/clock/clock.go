// Package clock provides the monotonic time primitives used by QFKH, which
// treats "now" as an externally supplied, monotonically non-decreasing
// millisecond instant rather than wall-clock time.
package clock

import (
	"sync"
)

// Floor is a monotonic wall-clock floor expressed in milliseconds: once
// observed at a given value, it never reports an earlier one again. It
// exists because QFKH's state machine (announce/activate/advance) must be
// totally ordered per node even if callers supply out-of-order now_ms.
type Floor struct {
	mut sync.Mutex
	ms  uint64
}

// Observe advances the Floor to max(current, nowMs) and returns the
// resulting value.
func (self *Floor) Observe(nowMs uint64) uint64 {
	self.mut.Lock()
	defer self.mut.Unlock()
	if nowMs > self.ms {
		self.ms = nowMs
	}
	return self.ms
}

// Current returns the Floor's current value without advancing it.
func (self *Floor) Current() uint64 {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.ms
}

// EpochOf returns the rotation epoch that contains nowMs, given
// rotationIntervalMs > 0.
func EpochOf(nowMs, rotationIntervalMs uint64) uint64 {
	return nowMs / rotationIntervalMs
}

// WindowOf returns the [start, end) window boundaries of epoch, in
// milliseconds, given rotationIntervalMs > 0.
func WindowOf(epoch, rotationIntervalMs uint64) (start, end uint64) {
	start = epoch * rotationIntervalMs
	end = start + rotationIntervalMs
	return start, end
}
