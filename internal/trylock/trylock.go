// Package trylock provides a one-shot, non-blocking latch used to implement
// commit-once-only semantics (an UpgradeContext may be accepted or rejected
// exactly once).
package trylock

import "sync/atomic"

const (
	unlocked int32 = 0
	locked   int32 = 1
)

// Switch is a one-shot latch: TryLock succeeds exactly once, for whichever
// caller wins the race; every later call fails. Unlike a Mutex it is never
// meant to be unlocked and relocked by the same owner — it models an
// irreversible state transition (committed / not committed).
type Switch struct {
	state atomic.Int32
}

// TryLock reports whether this call is the one that flipped the switch.
func (s *Switch) TryLock() bool {
	return s.state.CompareAndSwap(unlocked, locked)
}

// Locked reports whether the switch has already been flipped.
func (s *Switch) Locked() bool {
	return s.state.Load() == locked
}
