package asm

// Sequencer is the single id source for virtual registers and labels of one
// compilation. It is threaded by pointer through every stage that creates
// ids, which is what guarantees global uniqueness.
type Sequencer struct {
	next uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// NextRegister returns a fresh virtual register.
func (s *Sequencer) NextRegister() Register {
	id := s.next
	s.next++
	return Virtual(id)
}

// NextLabel returns a fresh label.
func (s *Sequencer) NextLabel() Label {
	id := s.next
	s.next++
	return Label(id)
}

// Issued returns how many ids have been handed out.
func (s *Sequencer) Issued() uint64 {
	return s.next
}
