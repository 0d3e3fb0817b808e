package capability

import (
	"github.com/roach88/radiocap/internal/radio"
)

// TraceKind names a step of the decision/transaction pipeline.
type TraceKind string

const (
	TraceSlotAdded   TraceKind = "slot-added"
	TraceSlotRemoved TraceKind = "slot-removed"
	TraceProbe       TraceKind = "probe"
	TraceDecision    TraceKind = "decision"
	TraceBarrier     TraceKind = "barrier"
	TraceRequest     TraceKind = "request"
	TraceResponse    TraceKind = "response"
	TraceCommit      TraceKind = "commit"
	TraceAbort       TraceKind = "abort"
	TraceDone        TraceKind = "done"
	TraceAborted     TraceKind = "aborted"
)

// TraceEvent is one observable step. Fields that do not apply are left
// zero; Slot is -1 for manager-wide events.
type TraceEvent struct {
	Seq      int64
	Kind     TraceKind
	Session  TransactionID
	Slot     int
	Phase    radio.Phase
	Status   radio.Status
	Families radio.AccessFamily
	ModemID  string
	// Detail carries the decision outcome, barrier stage or error text.
	Detail string
}

// Fields renders the event as a canonical-JSON-ready map.
func (e TraceEvent) Fields() map[string]any {
	out := map[string]any{
		"seq":     e.Seq,
		"kind":    string(e.Kind),
		"session": int32(e.Session),
		"slot":    e.Slot,
	}
	if e.Kind == TraceRequest || e.Kind == TraceResponse {
		out["phase"] = e.Phase
		out["status"] = e.Status
	}
	if e.Families != 0 {
		out["families"] = e.Families.Names()
	}
	if e.ModemID != "" {
		out["modem_id"] = e.ModemID
	}
	if e.Detail != "" {
		out["detail"] = e.Detail
	}
	return out
}

// Tracer receives trace events on the loop goroutine.
type Tracer interface {
	Trace(TraceEvent)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(TraceEvent)

func (f TracerFunc) Trace(e TraceEvent) { f(e) }

// MultiTracer fans events out to several tracers.
type MultiTracer []Tracer

func (m MultiTracer) Trace(e TraceEvent) {
	for _, t := range m {
		t.Trace(e)
	}
}

type nopTracer struct{}

func (nopTracer) Trace(TraceEvent) {}
