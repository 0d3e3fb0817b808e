package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/config"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/sim"
)

// Scenario is one simulated run with expectations.
type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Device      config.Config `yaml:"device"`
	Faults      []FaultSpec   `yaml:"faults,omitempty"`
	Steps       []Step        `yaml:"steps,omitempty"`
	Expect      Expect        `yaml:"expect"`
}

// FaultSpec injects a sim.Fault into a slot's modem before the run.
type FaultSpec struct {
	Slot  int    `yaml:"slot"`
	Op    string `yaml:"op"`
	Kind  string `yaml:"kind"`
	Times int    `yaml:"times,omitempty"`
}

// Step is one scenario action. Exactly one field must be set.
type Step struct {
	Request *RequestStep `yaml:"request,omitempty"`
	Release string       `yaml:"release,omitempty"`
	Online  *SlotFlag    `yaml:"online,omitempty"`
	SIM     *SIMStep     `yaml:"sim,omitempty"`
	SimIO   *SlotFlag    `yaml:"sim_io,omitempty"`
	Modem   *SlotFlag    `yaml:"modem,omitempty"`
	Calls   *CallsStep   `yaml:"calls,omitempty"`
	Remove  *int         `yaml:"remove,omitempty"`
	Run     bool         `yaml:"run,omitempty"`
	Advance string       `yaml:"advance,omitempty"`
}

// RequestStep submits a data-role request. As names the token for a later
// release.
type RequestStep struct {
	Slot  int      `yaml:"slot"`
	Modes []string `yaml:"modes"`
	Role  string   `yaml:"role"`
	As    string   `yaml:"as,omitempty"`
}

// SlotFlag sets a boolean slot property.
type SlotFlag struct {
	Slot  int  `yaml:"slot"`
	Value bool `yaml:"value"`
}

// SIMStep inserts or removes a card and sets its identity.
type SIMStep struct {
	Slot     int    `yaml:"slot"`
	Present  bool   `yaml:"present"`
	Identity string `yaml:"identity,omitempty"`
}

// CallsStep replaces a slot's active data calls.
type CallsStep struct {
	Slot int     `yaml:"slot"`
	IDs  []int32 `yaml:"ids"`
}

// Expect lists the checks evaluated after the run.
type Expect struct {
	// Outcome is the last terminal transaction result: committed, aborted
	// or none.
	Outcome string `yaml:"outcome,omitempty"`
	// Slots checks final capabilities.
	Slots []SlotExpect `yaml:"slots,omitempty"`
	// WireRequests is the number of SET_RADIO_CAPABILITY requests the
	// modems handled.
	WireRequests *int `yaml:"wire_requests,omitempty"`
	// TraceCount maps a trace kind to its exact number of occurrences.
	TraceCount map[string]int `yaml:"trace_count,omitempty"`
}

// SlotExpect checks one slot's final families.
type SlotExpect struct {
	Slot  int      `yaml:"slot"`
	Has   []string `yaml:"has,omitempty"`
	Lacks []string `yaml:"lacks,omitempty"`
}

// Outcome values.
const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
	OutcomeNone      = "none"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Validate checks required fields and step shapes.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if err := config.Validate(s.Device); err != nil {
		return fmt.Errorf("device: %w", err)
	}

	slots := map[int]bool{}
	for _, sc := range s.Device.Slots {
		slots[sc.Index] = true
	}
	checkSlot := func(where string, index int) error {
		if !slots[index] {
			return fmt.Errorf("%s: unknown slot %d", where, index)
		}
		return nil
	}

	for i, f := range s.Faults {
		where := fmt.Sprintf("faults[%d]", i)
		if err := checkSlot(where, f.Slot); err != nil {
			return err
		}
		if _, err := sim.ParseOp(f.Op); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		if _, err := sim.ParseFaultKind(f.Kind); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
	}

	for i, st := range s.Steps {
		where := fmt.Sprintf("steps[%d]", i)
		if n := st.count(); n != 1 {
			return fmt.Errorf("%s: exactly one action required, found %d", where, n)
		}
		if err := st.validate(where, checkSlot); err != nil {
			return err
		}
	}

	switch s.Expect.Outcome {
	case "", OutcomeCommitted, OutcomeAborted, OutcomeNone:
	default:
		return fmt.Errorf("expect.outcome: unknown outcome %q", s.Expect.Outcome)
	}
	for i, se := range s.Expect.Slots {
		where := fmt.Sprintf("expect.slots[%d]", i)
		if _, err := radio.ParseFamilies(se.Has); err != nil {
			return fmt.Errorf("%s.has: %w", where, err)
		}
		if _, err := radio.ParseFamilies(se.Lacks); err != nil {
			return fmt.Errorf("%s.lacks: %w", where, err)
		}
	}
	return nil
}

func (st Step) count() int {
	n := 0
	for _, set := range []bool{
		st.Request != nil, st.Release != "", st.Online != nil, st.SIM != nil,
		st.SimIO != nil, st.Modem != nil, st.Calls != nil, st.Remove != nil,
		st.Run, st.Advance != "",
	} {
		if set {
			n++
		}
	}
	return n
}

func (st Step) validate(where string, checkSlot func(string, int) error) error {
	switch {
	case st.Request != nil:
		if _, err := radio.ParseModes(st.Request.Modes); err != nil {
			return fmt.Errorf("%s.request: %w", where, err)
		}
		if _, err := capability.ParseRole(st.Request.Role); err != nil {
			return fmt.Errorf("%s.request: %w", where, err)
		}
		return checkSlot(where+".request", st.Request.Slot)
	case st.Online != nil:
		return checkSlot(where+".online", st.Online.Slot)
	case st.SIM != nil:
		return checkSlot(where+".sim", st.SIM.Slot)
	case st.SimIO != nil:
		return checkSlot(where+".sim_io", st.SimIO.Slot)
	case st.Modem != nil:
		return checkSlot(where+".modem", st.Modem.Slot)
	case st.Calls != nil:
		return checkSlot(where+".calls", st.Calls.Slot)
	case st.Remove != nil:
		return checkSlot(where+".remove", *st.Remove)
	case st.Advance != "":
		if d, err := time.ParseDuration(st.Advance); err != nil || d < 0 {
			return fmt.Errorf("%s.advance: invalid duration %q", where, st.Advance)
		}
	}
	return nil
}
