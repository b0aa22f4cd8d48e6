package utils

// Window is a sliding anti-replay bitmap over a monotonically increasing
// sequence of uint64 values, built on top of Bitset.
//
// It tracks the highest sequence number seen (Hi) and remembers, for each
// of the size positions below Hi, whether that sequence number has already
// been accepted. Accepting a new high watermark slides the window forward
// and clears the bits that fall out of range.
type Window struct {
	bits Bitset
	size int
	hi   uint64
	seen bool
}

// NewWindow returns a Window covering the size most recent sequence numbers.
// It errors if size <= 0.
func NewWindow(size int) (*Window, error) {
	if size <= 0 {
		return nil, newError("invalid window size %d <= 0", size)
	}
	return &Window{bits: NewBitset(make([]bool, size)), size: size}, nil
}

// Accept reports whether seq is a new sequence number that should be
// processed, and records it as seen. It returns false for sequence numbers
// that are duplicates or that fall below the trailing edge of the window.
func (self *Window) Accept(seq uint64) bool {
	if !self.seen {
		self.seen = true
		self.hi = seq
		self.markRelative(0)
		return true
	}

	if seq > self.hi {
		shift := seq - self.hi
		if shift >= uint64(self.size) {
			self.bits = NewBitset(make([]bool, self.size))
		} else {
			self.bits.shiftLeft(int(shift))
		}
		self.hi = seq
		self.markRelative(0)
		return true
	}

	back := self.hi - seq
	if back >= uint64(self.size) {
		// too old, outside the trailing edge
		return false
	}

	pos := self.size - 1 - int(back)
	already, _ := self.bits.GetBit(pos)
	if already {
		return false
	}
	self.bits.SetBit(pos)
	return true
}

// WouldAccept reports whether seq would currently be accepted by Accept,
// without marking it as seen. Callers that must validate before committing
// to a side effect (QSTP's open, which must not advance the window on an
// AEAD tag failure) call WouldAccept first and Accept only after the
// guarded operation succeeds.
func (self *Window) WouldAccept(seq uint64) bool {
	if !self.seen {
		return true
	}
	if seq > self.hi {
		return true
	}
	back := self.hi - seq
	if back >= uint64(self.size) {
		return false
	}
	pos := self.size - 1 - int(back)
	already, _ := self.bits.GetBit(pos)
	return !already
}

// markRelative marks the bit offset positions behind the current high
// watermark (0 == hi) as seen.
func (self *Window) markRelative(offset int) {
	pos := self.size - 1 - offset
	if pos >= 0 && pos < self.size {
		self.bits.SetBit(pos)
	}
}

// shiftLeft drops the n oldest entries, making room for n new high-watermark
// slots at the leading (newest) edge.
func (self Bitset) shiftLeft(n int) {
	size := 8 * len(self)
	if n >= size {
		for i := range self {
			self[i] = 0
		}
		return
	}
	for pos := 0; pos < size-n; pos++ {
		bit, _ := self.GetBit(pos + n)
		if bit {
			self.SetBit(pos)
		} else {
			self.ClearBit(pos)
		}
	}
	for pos := size - n; pos < size; pos++ {
		self.ClearBit(pos)
	}
}
