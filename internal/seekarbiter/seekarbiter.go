// Package seekarbiter implements the single-slot seek request register
// (spec §4.4): at most one pending target frame index, last-write-wins
// because the user is dragging. Grounded on the teacher's focusedPieceRange
// idiom in internal/services/torrent/engine/anacrolix/priority.go, which
// holds a single active region guarded by its own mutex — generalized here
// from a piece range to a single signed frame index.
package seekarbiter

import "sync"

// Arbiter holds at most one pending target frame index. A value < 0 means
// "no pending request" (spec §3 SeekRequest).
type Arbiter struct {
	mu      sync.Mutex
	target  int
	pending bool
}

func New() *Arbiter {
	return &Arbiter{target: -1}
}

// Request sets the pending target, overwriting any earlier one.
func (a *Arbiter) Request(index int) {
	a.mu.Lock()
	a.target = index
	a.pending = true
	a.mu.Unlock()
}

// Consume returns the pending target and clears the slot, or ok=false if
// nothing was pending.
func (a *Arbiter) Consume() (index int, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.pending {
		return -1, false
	}
	index = a.target
	a.pending = false
	a.target = -1
	return index, true
}

// IsPending reports whether a target is currently registered.
func (a *Arbiter) IsPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}
