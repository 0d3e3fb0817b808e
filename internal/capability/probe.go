package capability

import (
	"time"

	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
)

// Probe asks the modem behind ch for its current capability.
//
// done receives the snapshot on success. An error satisfying IsUnsupported
// means the modem does not implement capability switching; any other error
// is worth retrying later.
func Probe(ch rpc.Channel, slot int, retries int, timeout time.Duration, done func(radio.Snapshot, error)) rpc.Handle {
	return ch.Submit(rpc.Request{
		Code:    rpc.CodeGetRadioCapability,
		Timeout: timeout,
		Retries: retries,
		Done: func(resp rpc.Response) {
			if err := classify(resp, slot, NoTransaction, true); err != nil {
				done(radio.Snapshot{}, err)
				return
			}
			msg, err := radio.DecodeMessage(resp.Payload)
			if err != nil {
				e := newError(ErrCodeUnexpectedResponse, slot, NoTransaction, "undecodable probe payload")
				e.Err = err
				done(radio.Snapshot{}, e)
				return
			}
			done(msg.Snapshot(), nil)
		},
	})
}

func (m *Manager) startProbe(rec *Record) {
	index := rec.slot.Index
	rec.probing = true
	var h rpc.Handle
	h = Probe(rec.slot.Channel, index, m.cfg.ProbeRetries, m.cfg.PhaseTimeout, func(s radio.Snapshot, err error) {
		if m.closed || m.find(index) != rec {
			return
		}
		rec.forget(h)
		m.onProbe(rec, s, err)
	})
	rec.inflight = append(rec.inflight, h)
}

func (m *Manager) onProbe(rec *Record, s radio.Snapshot, err error) {
	index := rec.slot.Index
	rec.probing = false

	switch {
	case err == nil:
		rec.current = s
		rec.hasCurrent = true
		m.logger.Info("capability probed", "slot", index, "capability", s.String())
		m.trace(TraceEvent{Kind: TraceProbe, Slot: index, Families: s.Families, ModemID: s.ModemID, Detail: "ok"})
		m.emit(Notice{Kind: event.CapabilityChanged, Slot: index, Families: s.Families})
		m.check.Schedule()

	case IsUnsupported(err):
		m.logger.Info("capability switching unsupported", "slot", index, "error", err)
		m.trace(TraceEvent{Kind: TraceProbe, Slot: index, Detail: "unsupported"})
		m.dropRecord(rec, "unsupported")

	default:
		m.logger.Warn("capability probe failed", "slot", index, "error", err, "retry_in", m.cfg.RetryDelay)
		m.trace(TraceEvent{Kind: TraceProbe, Slot: index, Detail: "failed: " + err.Error()})
		rec.probeTimer = m.loop.After(m.cfg.RetryDelay, func() {
			rec.probeTimer = nil
			if !m.closed && m.find(index) == rec {
				m.startProbe(rec)
			}
		})
	}
}
