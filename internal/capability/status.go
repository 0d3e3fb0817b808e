package capability

import "github.com/roach88/radiocap/internal/radio"

// SlotStatus is a read-only projection of one record.
type SlotStatus struct {
	Slot          int                `json:"slot"`
	HasCapability bool               `json:"has_capability"`
	Families      radio.AccessFamily `json:"families"`
	ModemID       string             `json:"modem_id"`
	Mode          radio.AccessMode   `json:"mode"`
	Requested     radio.AccessMode   `json:"requested"`
	Transaction   TransactionID      `json:"transaction"`
	Pending       int                `json:"pending"`
	Online        bool               `json:"online"`
	SimReady      bool               `json:"sim_ready"`
	Probing       bool               `json:"probing"`
}

// Status is a read-only projection of the manager.
type Status struct {
	Slots        []SlotStatus  `json:"slots"`
	Transaction  TransactionID `json:"transaction"`
	Phase        string        `json:"phase"`
	Stage        string        `json:"stage"`
	Failed       bool          `json:"failed"`
	Started      bool          `json:"started"`
	Requests     int           `json:"requests"`
	Permutations int           `json:"permutations"`
}

// Status returns the current state.
func (m *Manager) Status() Status {
	st := Status{
		Transaction:  m.txn,
		Phase:        "none",
		Stage:        m.stage.String(),
		Failed:       m.failed,
		Started:      m.started,
		Requests:     len(m.requests),
		Permutations: len(m.perms),
	}
	switch {
	case m.stage == stageAborting:
		st.Phase = "ABORT"
	case m.stage == stagePhases && m.phase >= 0 && m.phase < len(phaseTable):
		st.Phase = phaseTable[m.phase].phase.String()
	}
	for _, rec := range m.records {
		st.Slots = append(st.Slots, SlotStatus{
			Slot:          rec.slot.Index,
			HasCapability: rec.hasCurrent,
			Families:      rec.current.Families,
			ModemID:       rec.current.ModemID,
			Mode:          rec.current.Families.HighestMode(),
			Requested:     rec.requested,
			Transaction:   rec.txn,
			Pending:       rec.pending,
			Online:        rec.slot.Radio.Online(),
			SimReady:      rec.slot.SIM.Present() && rec.slot.SIM.Ready(),
			Probing:       rec.probing,
		})
	}
	return st
}

// Snapshot returns the current capability of slot.
func (m *Manager) Snapshot(slot int) (radio.Snapshot, bool) {
	rec := m.find(slot)
	if rec == nil || !rec.hasCurrent {
		return radio.Snapshot{}, false
	}
	return rec.current, true
}

// Transaction returns the running transaction id, or NoTransaction.
func (m *Manager) Transaction() TransactionID { return m.txn }
