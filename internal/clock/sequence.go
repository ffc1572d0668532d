package clock

import "sync/atomic"

// Sequence is a monotonic counter used to order telemetry records (stat
// reports, journaled callbacks) independently of wall-clock time.
//
// Thread-safety: Sequence is safe for concurrent use.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence starting at start.
// Used to resume numbering after the last journaled record.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next increments the sequence and returns the new value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the current value without incrementing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
