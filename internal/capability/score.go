package capability

import "github.com/roach88/radiocap/internal/radio"

// SlotView is the scoring input for one slot.
type SlotView struct {
	Online    bool
	SimReady  bool
	Present   bool
	Requested radio.AccessMode
}

// Usable reports whether the slot can make use of a capability at all.
func (v SlotView) Usable() bool {
	return v.Online && v.SimReady && v.Present
}

// Score rates giving candidate to the slot described by v.
//
// Unusable slots score the negated mode mask of the candidate. Usable slots
// with a request score +requested if the candidate covers it and
// -requested otherwise. Everything else scores 0.
func Score(v SlotView, candidate radio.Snapshot) int {
	modes := candidate.Modes()
	if !v.Usable() {
		return -int(modes)
	}
	if v.Requested != 0 {
		if modes.Covers(v.Requested) {
			return int(v.Requested)
		}
		return -int(v.Requested)
	}
	return 0
}
