package capability

import (
	"fmt"

	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
)

// phaseTable is the ordered three-phase protocol. The abort phase is
// FINISH/FAIL with the old capability and is not part of the table.
var phaseTable = []struct {
	phase  radio.Phase
	status radio.Status
	useNew bool
}{
	{radio.PhaseStart, radio.StatusNone, false},
	{radio.PhaseApply, radio.StatusNone, true},
	{radio.PhaseFinish, radio.StatusSuccess, true},
}

const (
	phaseIndexStart = 0
	phaseIndexApply = 1
)

// maybeAdvance checks whether every participant has drained its pending
// requests and, if so, moves the transaction forward.
func (m *Manager) maybeAdvance() {
	if m.issuing || m.txn == NoTransaction {
		return
	}
	for _, rec := range m.active() {
		if rec.pending > 0 {
			return
		}
	}

	switch m.stage {
	case stageSimIO, stageOwnership:
		m.advanceBarrier()
	case stageTeardown:
		if m.failed {
			m.barrierFailed("data call teardown failed")
			return
		}
		m.disallow()
	case stageDisallow:
		if m.failed {
			m.barrierFailed("disallow data failed")
			return
		}
		m.startPhases()
	case stagePhases:
		m.phaseComplete()
	case stageAborting:
		m.finishAbort()
	}
}

func (m *Manager) startPhases() {
	m.setStage(stagePhases)
	m.started = true
	m.phase = phaseIndexStart
	m.issuePhase()
}

func (m *Manager) issuePhase() {
	row := phaseTable[m.phase]
	m.logger.Info("capability phase", "session", m.txn, "phase", row.phase.String())

	m.issuing = true
	for _, rec := range m.active() {
		snap := *rec.old
		if row.useNew {
			snap = *rec.new
		}
		m.sendCapability(rec, snap.WithPhase(int32(m.txn), row.phase, row.status))
	}
	m.issuing = false
	m.maybeAdvance()
}

func (m *Manager) phaseComplete() {
	if m.failed {
		m.startAbort()
		return
	}
	m.phase++
	if m.phase >= len(phaseTable) {
		m.commit()
		return
	}
	m.issuePhase()
}

// sendCapability issues one SET_RADIO_CAPABILITY for rec.
func (m *Manager) sendCapability(rec *Record, snap radio.Snapshot) {
	index := rec.slot.Index
	session := m.txn

	payload, err := radio.MessageFromSnapshot(snap).MarshalBinary()
	if err != nil {
		m.failed = true
		m.logger.Error("encode capability message", "session", session, "slot", index, "error", err)
		m.trace(TraceEvent{Kind: TraceResponse, Session: session, Slot: index, Phase: snap.Phase, Status: snap.Status, Detail: err.Error()})
		return
	}

	m.trace(TraceEvent{
		Kind:     TraceRequest,
		Session:  session,
		Slot:     index,
		Phase:    snap.Phase,
		Status:   snap.Status,
		Families: snap.Families,
		ModemID:  snap.ModemID,
	})

	rec.pending++
	var h rpc.Handle
	h = rec.slot.Channel.Submit(rpc.Request{
		Code:    rpc.CodeSetRadioCapability,
		Payload: payload,
		Timeout: m.cfg.PhaseTimeout,
		Retries: m.cfg.RequestRetries,
		Owner:   m.owner,
		Done: func(resp rpc.Response) {
			m.onCapabilityResponse(index, session, snap, h, resp)
		},
	})
	rec.inflight = append(rec.inflight, h)
}

func (m *Manager) onCapabilityResponse(index int, session TransactionID, sent radio.Snapshot, h rpc.Handle, resp rpc.Response) {
	if session != m.txn {
		m.logger.Debug("stale capability response", "session", session, "slot", index)
		return
	}
	rec := m.find(index)
	if rec == nil || rec.txn != session {
		return
	}
	rec.forget(h)
	rec.pending--

	abort := m.stage == stageAborting
	err := checkResponse(resp, index, session, abort)
	phaseRequestsTotal.WithLabelValues(phaseLabel(sent), resultLabel(err)).Inc()

	detail := "ok"
	if err != nil {
		detail = err.Error()
		m.logger.Warn("capability request failed", "session", session, "slot", index, "phase", sent.Phase.String(), "error", err)
		if !abort {
			m.failed = true
		}
	}
	m.trace(TraceEvent{Kind: TraceResponse, Session: session, Slot: index, Phase: sent.Phase, Status: sent.Status, Detail: detail})
	m.maybeAdvance()
}

// checkResponse validates a SET_RADIO_CAPABILITY completion: transport OK,
// no protocol error, a decodable payload echoing the session and, outside
// the abort phase, no FAIL status.
func checkResponse(resp rpc.Response, index int, session TransactionID, abort bool) error {
	if err := classify(resp, index, session, false); err != nil {
		return err
	}
	msg, err := radio.DecodeMessage(resp.Payload)
	if err != nil {
		e := newError(ErrCodeUnexpectedResponse, index, session, "undecodable capability payload")
		e.Err = err
		return e
	}
	if msg.Session != int32(session) {
		return newError(ErrCodeUnexpectedResponse, index, session, "response for session %d", msg.Session)
	}
	if !abort && msg.Status == radio.StatusFail {
		return newError(ErrCodeProtocol, index, session, "modem reported %s", msg.Status)
	}
	return nil
}

func phaseLabel(s radio.Snapshot) string {
	if s.Phase == radio.PhaseFinish && s.Status == radio.StatusFail {
		return "ABORT"
	}
	return s.Phase.String()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsTransportError(err):
		return "transport"
	case IsUnexpectedResponse(err):
		return "unexpected"
	default:
		return "protocol"
	}
}

// startAbort moves every previous participant to a fresh transaction id
// and sends FINISH/FAIL with its old capability.
func (m *Manager) startAbort() {
	prev := m.txn
	recs := m.active()

	m.txn = m.lastTxn.next()
	m.lastTxn = m.txn
	m.stage = stageAborting
	for _, rec := range recs {
		rec.txn = m.txn
		rec.pending = 0
		rec.inflight = nil
	}
	m.logger.Warn("transaction aborting", "failed_session", prev, "abort_session", m.txn)
	m.trace(TraceEvent{Kind: TraceAbort, Session: m.txn, Slot: -1, Detail: fmt.Sprintf("replaces session %d", prev)})

	m.issuing = true
	for _, rec := range recs {
		m.sendCapability(rec, rec.old.WithPhase(int32(m.txn), radio.PhaseFinish, radio.StatusFail))
	}
	m.issuing = false
	m.maybeAdvance()
}

func (m *Manager) finishAbort() {
	session := m.txn
	for _, rec := range m.active() {
		rec.clearTransaction()
	}
	m.releaseOwnership()
	m.finishIdle()

	transactionsTotal.WithLabelValues(resultAborted).Inc()
	m.logger.Warn("transaction aborted", "session", session)
	m.trace(TraceEvent{Kind: TraceAborted, Session: session, Slot: -1, Detail: "rolled back"})
	m.emit(Notice{Kind: event.TransactionAborted, Slot: -1, Session: session})
	m.check.ScheduleAfter(m.cfg.RetryDelay)
}

// commit adopts the new capability on every participant.
func (m *Manager) commit() {
	session := m.txn
	recs := m.active()
	for _, rec := range recs {
		rec.current = rec.new.WithPhase(int32(session), radio.PhaseFinish, radio.StatusSuccess)
		rec.hasCurrent = true
		rec.clearTransaction()
		m.trace(TraceEvent{Kind: TraceCommit, Session: session, Slot: rec.slot.Index, Families: rec.current.Families, ModemID: rec.current.ModemID})
	}
	m.finishIdle()
	transactionsTotal.WithLabelValues(resultCommitted).Inc()
	m.logger.Info("transaction committed", "session", session, "slots", len(recs))

	for _, rec := range recs {
		m.emit(Notice{Kind: event.CapabilityChanged, Slot: rec.slot.Index, Families: rec.current.Families, Session: session})
	}
	m.trace(TraceEvent{Kind: TraceDone, Session: session, Slot: -1})
	m.emit(Notice{Kind: event.TransactionDone, Slot: -1, Session: session})
	m.releaseOwnership()
	m.check.Schedule()
}

// participantVanished handles a participant removed mid-transaction. Before
// APPLY has been issued the whole transaction aborts; afterwards the
// remaining participants carry on.
func (m *Manager) participantVanished(rec *Record) {
	session := m.txn
	beforeApply := m.stage != stagePhases && m.stage != stageAborting ||
		m.stage == stagePhases && m.phase < phaseIndexApply
	if beforeApply {
		m.failed = true
	}
	m.logger.Warn("transaction participant vanished", "session", session, "slot", rec.slot.Index, "abort", beforeApply)
	e := newError(ErrCodeSlotVanished, rec.slot.Index, session, "participant removed")
	m.trace(TraceEvent{Kind: TraceBarrier, Session: session, Slot: rec.slot.Index, Detail: e.Error()})

	m.loop.Post(func() {
		if m.txn == session {
			m.maybeAdvance()
		}
	})
}
