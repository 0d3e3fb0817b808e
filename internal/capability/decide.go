package capability

import (
	"fmt"
	"strings"
)

// decide is the debounced decision pass.
func (m *Manager) decide() {
	if m.closed || len(m.records) == 0 {
		return
	}
	if m.txn != NoTransaction {
		m.decided(outcomeBusy, "")
		return
	}

	for _, rec := range m.records {
		if !rec.ready() {
			m.decided(outcomeNotReady, fmt.Sprintf("slot %d", rec.slot.Index))
			return
		}
	}

	if m.uniform() {
		m.decided(outcomeUniform, "")
		return
	}

	m.refreshRequested()
	best, bestScore := m.bestPermutation()
	if best < 0 || isIdentity(m.perms[best]) {
		m.decided(outcomeKeep, fmt.Sprintf("score=%d", bestScore))
		return
	}

	order := m.perms[best]
	m.decided(outcomeStart, fmt.Sprintf("perm=%d order=%s score=%d", best, formatOrder(order), bestScore))
	m.begin(order)
}

func (m *Manager) decided(outcome, detail string) {
	decisionsTotal.WithLabelValues(outcome).Inc()
	m.logger.Debug("decision pass", "outcome", outcome, "detail", detail)
	if detail != "" {
		outcome += " " + detail
	}
	m.trace(TraceEvent{Kind: TraceDecision, Slot: -1, Session: m.txn, Detail: outcome})
}

// uniform reports whether every movable record already reaches the same
// highest access mode, in which case no reassignment can help.
func (m *Manager) uniform() bool {
	first := true
	var mode uint32
	for _, rec := range m.records {
		if !rec.movable() {
			continue
		}
		h := uint32(rec.current.Families.HighestMode())
		if first {
			mode, first = h, false
			continue
		}
		if h != mode {
			return false
		}
	}
	return true
}

// bestPermutation scores every valid permutation and returns the index of
// the highest. Ties go to the lowest index, so the identity wins any tie
// it is part of.
func (m *Manager) bestPermutation() (int, int) {
	best, bestScore := -1, 0
	for i, order := range m.perms {
		if !m.validOrder(order) {
			continue
		}
		total := 0
		for k, src := range order {
			total += Score(m.records[k].view(), m.records[src].current)
		}
		if best < 0 || total > bestScore {
			best, bestScore = i, total
		}
	}
	return best, bestScore
}

// validOrder rejects permutations that move a capability the manager does
// not know or a slot whose modem is absent.
func (m *Manager) validOrder(order []int) bool {
	for k, src := range order {
		if k == src {
			continue
		}
		if !m.records[k].movable() || !m.records[src].movable() {
			return false
		}
	}
	return true
}

func formatOrder(order []int) string {
	parts := make([]string, len(order))
	for i, v := range order {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
