package capability

import (
	"fmt"

	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/rpc"
)

// stage tracks where the running transaction is.
type stage int

const (
	stageIdle stage = iota
	stageSimIO
	stageOwnership
	stageTeardown
	stageDisallow
	stagePhases
	stageAborting
)

func (s stage) String() string {
	switch s {
	case stageIdle:
		return "idle"
	case stageSimIO:
		return "sim-io"
	case stageOwnership:
		return "ownership"
	case stageTeardown:
		return "teardown"
	case stageDisallow:
		return "disallow"
	case stagePhases:
		return "phases"
	case stageAborting:
		return "aborting"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// begin tags the records whose assignment changes under order and starts
// the barrier.
func (m *Manager) begin(order []int) {
	type move struct{ rec, donor *Record }
	var moves []move
	for k, src := range order {
		if k == src {
			continue
		}
		rec, donor := m.records[k], m.records[src]
		if rec.current.SameResource(donor.current) {
			continue
		}
		moves = append(moves, move{rec, donor})
	}
	if len(moves) == 0 {
		m.decided(outcomeNoop, "no participants")
		return
	}

	m.txn = m.lastTxn.next()
	m.lastTxn = m.txn
	m.failed = false
	m.started = false
	m.phase = -1
	m.participants = m.participants[:0]

	for _, mv := range moves {
		old, next := mv.rec.current, mv.donor.current
		mv.rec.old = &old
		mv.rec.new = &next
		mv.rec.txn = m.txn
		mv.rec.pending = 0
		m.participants = append(m.participants, mv.rec.slot.Index)
	}

	transactionActive.Set(1)
	m.logger.Info("transaction starting", "session", m.txn, "participants", m.participants)

	for _, rec := range m.active() {
		ch := rec.slot.Channel
		tok := ch.Subscribe(event.OwnerChanged, func(rpc.Owner) {
			if m.stage == stageOwnership {
				m.advanceBarrier()
			}
		})
		m.ownerSubs = append(m.ownerSubs, ownerSub{ch: ch, token: tok})
	}

	m.setStage(stageSimIO)
	m.advanceBarrier()
}

// active returns the records tagged with the current transaction, in slot
// order.
func (m *Manager) active() []*Record {
	if m.txn == NoTransaction {
		return nil
	}
	var out []*Record
	for _, rec := range m.records {
		if rec.txn == m.txn {
			out = append(out, rec)
		}
	}
	return out
}

func (m *Manager) setStage(s stage) {
	m.stage = s
	m.trace(TraceEvent{Kind: TraceBarrier, Session: m.txn, Slot: -1, Detail: s.String()})
}

// advanceBarrier re-evaluates the SIM I/O and ownership waits. Both waits
// are unbounded.
func (m *Manager) advanceBarrier() {
	if m.txn == NoTransaction {
		return
	}
	if m.failed && (m.stage == stageSimIO || m.stage == stageOwnership) {
		m.barrierFailed("participant vanished")
		return
	}

	if m.stage == stageSimIO {
		for _, rec := range m.active() {
			if rec.slot.SIM.IOActive() {
				m.logger.Debug("barrier waiting for sim io", "session", m.txn, "slot", rec.slot.Index)
				return
			}
		}
		m.setStage(stageOwnership)
	}

	if m.stage == stageOwnership {
		waiting := false
		for _, rec := range m.active() {
			if rec.owned {
				continue
			}
			switch rec.slot.Channel.Acquire(m.owner) {
			case rpc.Acquired:
				rec.owned = true
			case rpc.Queued:
				waiting = true
			case rpc.Refused:
				m.barrierFailed(fmt.Sprintf("slot %d channel refused ownership", rec.slot.Index))
				return
			}
		}
		if waiting {
			m.logger.Debug("barrier waiting for channel ownership", "session", m.txn)
			return
		}
		m.teardown()
	}
}

// teardown deactivates every active data call on the participants.
func (m *Manager) teardown() {
	m.setStage(stageTeardown)
	session := m.txn

	m.issuing = true
	for _, rec := range m.active() {
		index := rec.slot.Index
		for _, call := range rec.slot.Data.ActiveCalls() {
			rec.pending++
			call := call
			rec.slot.Data.Deactivate(m.owner, call, func(err error) {
				m.onTeardownDone(index, session, fmt.Sprintf("deactivate call %d", call), err)
			})
		}
	}
	m.issuing = false
	m.maybeAdvance()
}

// disallow sends "disallow data" to participants whose modem needs it.
func (m *Manager) disallow() {
	m.setStage(stageDisallow)
	session := m.txn

	m.issuing = true
	for _, rec := range m.active() {
		if !rec.slot.Data.SetDataAllowedNeeded() {
			continue
		}
		index := rec.slot.Index
		rec.pending++
		rec.slot.Data.DisallowData(m.owner, func(err error) {
			m.onTeardownDone(index, session, "disallow data", err)
		})
	}
	m.issuing = false
	m.maybeAdvance()
}

func (m *Manager) onTeardownDone(index int, session TransactionID, what string, err error) {
	if session != m.txn {
		return
	}
	rec := m.find(index)
	if rec == nil || rec.txn != session {
		return
	}
	rec.pending--
	if err != nil {
		m.failed = true
		m.logger.Warn("barrier step failed", "session", session, "slot", index, "step", what, "error", err)
		m.trace(TraceEvent{Kind: TraceBarrier, Session: session, Slot: index, Detail: what + " failed: " + err.Error()})
	}
	m.maybeAdvance()
}

// barrierFailed unwinds a transaction that never issued START.
func (m *Manager) barrierFailed(reason string) {
	session := m.txn
	m.failed = true
	m.logger.Warn("transaction barrier failed", "session", session, "reason", reason)

	for _, rec := range m.active() {
		rec.clearTransaction()
	}
	m.releaseOwnership()
	m.finishIdle()

	transactionsTotal.WithLabelValues(resultBarrierFailed).Inc()
	m.trace(TraceEvent{Kind: TraceAborted, Session: session, Slot: -1, Detail: "barrier: " + reason})
	m.emit(Notice{Kind: event.TransactionAborted, Slot: -1, Session: session})
	m.check.ScheduleAfter(m.cfg.RetryDelay)
}

// releaseOwnership gives up every channel block taken for the transaction.
func (m *Manager) releaseOwnership() {
	subs := m.ownerSubs
	m.ownerSubs = nil
	for _, s := range subs {
		s.ch.Unsubscribe(s.token)
	}
	for _, s := range subs {
		s.ch.Release(m.owner)
	}
	for _, rec := range m.records {
		rec.owned = false
	}
}

// finishIdle returns the manager to the idle state.
func (m *Manager) finishIdle() {
	m.txn = NoTransaction
	m.stage = stageIdle
	m.phase = -1
	m.participants = m.participants[:0]
	transactionActive.Set(0)
}
