package capability

import (
	"math"

	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/loop"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
	"github.com/roach88/radiocap/internal/slot"
)

// TransactionID identifies a reallocation transaction. It doubles as the
// wire session id.
type TransactionID int32

// NoTransaction marks an idle record.
const NoTransaction TransactionID = 0

// next returns the id after t, wrapping past MaxInt32 and skipping zero.
func (t TransactionID) next() TransactionID {
	if t >= math.MaxInt32 || t < 0 {
		return 1
	}
	return t + 1
}

// Record is the manager's per-slot state. Records are owned by the
// manager's arena and only ever touched on the loop goroutine; callbacks
// resolve them by slot index.
type Record struct {
	slot slot.Slot

	current    radio.Snapshot
	hasCurrent bool

	old *radio.Snapshot
	new *radio.Snapshot

	requested radio.AccessMode
	txn       TransactionID
	pending   int

	// owned is set once the record's channel is exclusively held.
	owned bool

	inflight   []rpc.Handle
	probeTimer *loop.Timer
	probing    bool

	subs []subscription
}

type subscription struct {
	from  slot.Notifier
	token event.Token
}

// Slot returns the slot index.
func (r *Record) Slot() int { return r.slot.Index }

// Current returns the last confirmed capability and whether one exists.
func (r *Record) Current() (radio.Snapshot, bool) { return r.current, r.hasCurrent }

func (r *Record) view() SlotView {
	return SlotView{
		Online:    r.slot.Radio.Online(),
		SimReady:  r.slot.SIM.Present() && r.slot.SIM.Ready(),
		Present:   r.modemPresent(),
		Requested: r.requested,
	}
}

func (r *Record) modemPresent() bool {
	return r.slot.Modem == nil || r.slot.Modem.Present()
}

// ready implements the per-slot readiness gate of the decision pass.
func (r *Record) ready() bool {
	if !r.modemPresent() || !r.slot.Radio.Online() {
		return true
	}
	if !r.hasCurrent {
		return false
	}
	return !r.slot.SIM.Present() || r.slot.SIM.Identity() != ""
}

// movable reports whether the record's capability may take part in a
// reassignment.
func (r *Record) movable() bool {
	return r.hasCurrent && r.modemPresent()
}

func (r *Record) clearTransaction() {
	r.old = nil
	r.new = nil
	r.txn = NoTransaction
	r.pending = 0
	r.inflight = nil
}

func (r *Record) forget(h rpc.Handle) {
	for i, x := range r.inflight {
		if x == h {
			r.inflight = append(r.inflight[:i], r.inflight[i+1:]...)
			return
		}
	}
}

func (r *Record) unsubscribeAll() {
	for _, s := range r.subs {
		s.from.Unsubscribe(s.token)
	}
	r.subs = nil
}
