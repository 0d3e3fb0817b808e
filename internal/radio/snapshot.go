package radio

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Phase is the wire phase of a capability message.
type Phase int32

const (
	PhaseConfigured Phase = 0
	PhaseStart      Phase = 1
	PhaseApply      Phase = 2
	PhaseUnsolRsp   Phase = 3
	PhaseFinish     Phase = 4
)

func (p Phase) String() string {
	switch p {
	case PhaseConfigured:
		return "CONFIGURED"
	case PhaseStart:
		return "START"
	case PhaseApply:
		return "APPLY"
	case PhaseUnsolRsp:
		return "UNSOL_RSP"
	case PhaseFinish:
		return "FINISH"
	default:
		return fmt.Sprintf("PHASE(%d)", int32(p))
	}
}

// Valid reports whether p is a known wire value.
func (p Phase) Valid() bool {
	return p >= PhaseConfigured && p <= PhaseFinish
}

// Status is the wire status of a capability message.
type Status int32

const (
	StatusNone    Status = 0
	StatusSuccess Status = 1
	StatusFail    Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "NONE"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFail:
		return "FAIL"
	default:
		return fmt.Sprintf("STATUS(%d)", int32(s))
	}
}

// Valid reports whether s is a known wire value.
func (s Status) Valid() bool {
	return s >= StatusNone && s <= StatusFail
}

// Snapshot is an immutable capability package: which technologies a
// physical modem resource grants, and the transaction bookkeeping the
// HAL last reported for it.
type Snapshot struct {
	Families AccessFamily
	ModemID  string
	Session  int32
	Phase    Phase
	Status   Status
}

// Modes returns the access modes implied by the snapshot's families.
func (s Snapshot) Modes() AccessMode {
	return s.Families.Modes()
}

// Equal reports whether every field matches. Modem ids are compared after
// NFC normalization; an empty id only equals another empty id.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Families == o.Families &&
		s.Session == o.Session &&
		s.Phase == o.Phase &&
		s.Status == o.Status &&
		sameModemID(s.ModemID, o.ModemID)
}

// SameResource reports whether both snapshots describe the same physical
// capability package, ignoring transaction bookkeeping.
func (s Snapshot) SameResource(o Snapshot) bool {
	return s.Families == o.Families && sameModemID(s.ModemID, o.ModemID)
}

// WithPhase returns a copy stamped with the given session, phase and status.
func (s Snapshot) WithPhase(session int32, phase Phase, status Status) Snapshot {
	s.Session = session
	s.Phase = phase
	s.Status = status
	return s
}

func (s Snapshot) String() string {
	id := s.ModemID
	if id == "" {
		id = "-"
	}
	return fmt.Sprintf("%s@%s", s.Families, id)
}

func sameModemID(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return norm.NFC.String(a) == norm.NFC.String(b)
}
