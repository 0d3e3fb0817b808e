// Package sim provides a simulated modem that answers the capability and
// data requests used by radiocap, with per-operation fault injection.
package sim

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
)

// Op names an operation a Fault can target.
type Op string

const (
	OpProbe      Op = "probe"
	OpStart      Op = "start"
	OpApply      Op = "apply"
	OpFinish     Op = "finish"
	OpAbort      Op = "abort"
	OpDeactivate Op = "deactivate"
	OpDisallow   Op = "disallow"
)

// FaultKind selects how a faulted request fails.
type FaultKind string

const (
	// FaultProtocol answers with GENERIC_FAILURE.
	FaultProtocol FaultKind = "protocol"
	// FaultUnsupported answers with REQUEST_NOT_SUPPORTED.
	FaultUnsupported FaultKind = "unsupported"
	// FaultTransport fails the request at the transport level.
	FaultTransport FaultKind = "transport"
	// FaultShape answers successfully with an undecodable payload.
	FaultShape FaultKind = "shape"
	// FaultDrop never answers; the channel times the attempt out.
	FaultDrop FaultKind = "drop"
)

// ParseOp validates an operation name.
func ParseOp(s string) (Op, error) {
	switch op := Op(strings.ToLower(s)); op {
	case OpProbe, OpStart, OpApply, OpFinish, OpAbort, OpDeactivate, OpDisallow:
		return op, nil
	}
	return "", fmt.Errorf("unknown fault operation %q", s)
}

// ParseFaultKind validates a fault kind name.
func ParseFaultKind(s string) (FaultKind, error) {
	switch k := FaultKind(strings.ToLower(s)); k {
	case FaultProtocol, FaultUnsupported, FaultTransport, FaultShape, FaultDrop:
		return k, nil
	}
	return "", fmt.Errorf("unknown fault kind %q", s)
}

// Fault makes matching requests fail.
type Fault struct {
	Op   Op
	Kind FaultKind
	// Times is how many matching requests fail. Zero means once, negative
	// means every time.
	Times int
}

// Entry records one handled attempt.
type Entry struct {
	Code    rpc.Code
	Phase   radio.Phase
	Status  radio.Status
	Session int32
	Faulted bool
}

// Modem is an rpc.Handler for one simulated modem.
type Modem struct {
	capability radio.Snapshot
	pending    *radio.Snapshot
	session    int32

	dataAllowed bool
	faults      []*Fault
	log         []Entry
}

// NewModem creates a modem currently granting capability.
func NewModem(capability radio.Snapshot) *Modem {
	return &Modem{capability: capability, dataAllowed: true}
}

// Capability returns what the modem currently grants.
func (m *Modem) Capability() radio.Snapshot { return m.capability }

// DataAllowed reports the last ALLOW_DATA state.
func (m *Modem) DataAllowed() bool { return m.dataAllowed }

// Inject adds a fault.
func (m *Modem) Inject(f Fault) {
	f2 := f
	if f2.Times == 0 {
		f2.Times = 1
	}
	m.faults = append(m.faults, &f2)
}

// Log returns every handled attempt.
func (m *Modem) Log() []Entry {
	return append([]Entry(nil), m.log...)
}

// Count returns how many attempts with code were handled.
func (m *Modem) Count(code rpc.Code) int {
	n := 0
	for _, e := range m.log {
		if e.Code == code {
			n++
		}
	}
	return n
}

// Handle implements rpc.Handler.
func (m *Modem) Handle(req rpc.Request, attempt int) (rpc.Response, bool) {
	entry := Entry{Code: req.Code}
	var msg radio.CapabilityMessage
	if req.Code == rpc.CodeSetRadioCapability {
		decoded, err := radio.DecodeMessage(req.Payload)
		if err != nil {
			m.log = append(m.log, entry)
			return rpc.Response{Error: rpc.ErrorInvalidArguments}, true
		}
		msg = decoded
		entry.Phase, entry.Status, entry.Session = msg.Phase, msg.Status, msg.Session
	}

	if f := m.matchFault(opFor(req.Code, msg)); f != nil {
		entry.Faulted = true
		m.log = append(m.log, entry)
		return faultResponse(f.Kind)
	}
	m.log = append(m.log, entry)

	switch req.Code {
	case rpc.CodeGetRadioCapability:
		return m.respond(radio.MessageFromSnapshot(m.capability.WithPhase(m.session, radio.PhaseConfigured, radio.StatusNone)))

	case rpc.CodeSetRadioCapability:
		return m.setCapability(msg)

	case rpc.CodeDeactivateDataCall:
		if len(req.Payload) != 4 {
			return rpc.Response{Error: rpc.ErrorInvalidArguments}, true
		}
		return rpc.Response{}, true

	case rpc.CodeAllowData:
		if len(req.Payload) != 4 {
			return rpc.Response{Error: rpc.ErrorInvalidArguments}, true
		}
		m.dataAllowed = binary.LittleEndian.Uint32(req.Payload) != 0
		return rpc.Response{}, true

	default:
		return rpc.Response{Error: rpc.ErrorRequestNotSupported}, true
	}
}

func (m *Modem) setCapability(msg radio.CapabilityMessage) (rpc.Response, bool) {
	m.session = msg.Session
	switch msg.Phase {
	case radio.PhaseStart:
		m.pending = nil
	case radio.PhaseApply:
		next := msg.Snapshot()
		m.pending = &next
	case radio.PhaseFinish:
		if msg.Status == radio.StatusSuccess && m.pending != nil {
			m.capability.Families = m.pending.Families
			m.capability.ModemID = m.pending.ModemID
		} else if msg.Status == radio.StatusFail {
			m.capability.Families = msg.Families
			m.capability.ModemID = msg.ModemID
		}
		m.pending = nil
	default:
		return rpc.Response{Error: rpc.ErrorInvalidArguments}, true
	}
	reply := msg
	if reply.Status == radio.StatusNone {
		reply.Status = radio.StatusSuccess
	}
	return m.respond(reply)
}

func (m *Modem) respond(msg radio.CapabilityMessage) (rpc.Response, bool) {
	payload, err := msg.MarshalBinary()
	if err != nil {
		return rpc.Response{Error: rpc.ErrorInternal}, true
	}
	return rpc.Response{Payload: payload}, true
}

func (m *Modem) matchFault(op Op) *Fault {
	if op == "" {
		return nil
	}
	for i, f := range m.faults {
		if f.Op != op {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				m.faults = append(m.faults[:i], m.faults[i+1:]...)
			}
		}
		return f
	}
	return nil
}

func opFor(code rpc.Code, msg radio.CapabilityMessage) Op {
	switch code {
	case rpc.CodeGetRadioCapability:
		return OpProbe
	case rpc.CodeDeactivateDataCall:
		return OpDeactivate
	case rpc.CodeAllowData:
		return OpDisallow
	case rpc.CodeSetRadioCapability:
		switch {
		case msg.Phase == radio.PhaseStart:
			return OpStart
		case msg.Phase == radio.PhaseApply:
			return OpApply
		case msg.Phase == radio.PhaseFinish && msg.Status == radio.StatusFail:
			return OpAbort
		case msg.Phase == radio.PhaseFinish:
			return OpFinish
		}
	}
	return ""
}

func faultResponse(kind FaultKind) (rpc.Response, bool) {
	switch kind {
	case FaultUnsupported:
		return rpc.Response{Error: rpc.ErrorRequestNotSupported}, true
	case FaultTransport:
		return rpc.Response{Transport: rpc.TransportFailed}, true
	case FaultShape:
		return rpc.Response{Payload: []byte{0xde, 0xad}}, true
	case FaultDrop:
		return rpc.Response{}, false
	default:
		return rpc.Response{Error: rpc.ErrorGenericFailure}, true
	}
}
