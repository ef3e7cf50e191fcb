package testutil

import "sync"

// Sequence is a resettable notify.Sequencer for tests. Running the same
// scenario twice after Reset stamps identical Change.Seq values.
type Sequence struct {
	mu     sync.Mutex
	seq    int64
	issued []int64
}

// NewSequence returns a sequence whose first Next is 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.issued = append(s.issued, s.seq)
	return s.seq
}

// Current returns the last number handed out, 0 if none.
func (s *Sequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Issued returns how many numbers were handed out since the last Reset.
func (s *Sequence) Issued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.issued)
}

// Reset starts the sequence over.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
	s.issued = nil
}
