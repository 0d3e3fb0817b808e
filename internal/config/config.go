// Package config loads simulated device configurations.
//
// A configuration lists the device's slots and, optionally, manager
// tunables. YAML, TOML, JSON and CUE sources are accepted; all of them are
// validated against the same embedded CUE schema.
package config

import (
	"fmt"
	"time"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/radio"
)

// Config is a device description.
type Config struct {
	Manager *Manager `json:"manager,omitempty" yaml:"manager" toml:"manager"`
	Slots   []Slot   `json:"slots" yaml:"slots" toml:"slots"`
}

// Manager holds capability.Config overrides. Durations use Go syntax
// ("200ms", "30s").
type Manager struct {
	RetryDelay     string `json:"retry_delay,omitempty" yaml:"retry_delay" toml:"retry_delay"`
	PhaseTimeout   string `json:"phase_timeout,omitempty" yaml:"phase_timeout" toml:"phase_timeout"`
	ProbeRetries   *int   `json:"probe_retries,omitempty" yaml:"probe_retries" toml:"probe_retries"`
	RequestRetries int    `json:"request_retries,omitempty" yaml:"request_retries" toml:"request_retries"`
	MaxSlots       int    `json:"max_slots,omitempty" yaml:"max_slots" toml:"max_slots"`
}

// Slot describes one slot and the modem resource behind it.
type Slot struct {
	Index int `json:"index" yaml:"index" toml:"index"`
	// Families is what the modem currently grants.
	Families []string `json:"families,omitempty" yaml:"families" toml:"families"`
	ModemID  string   `json:"modem_id,omitempty" yaml:"modem_id" toml:"modem_id"`
	// Online defaults to true.
	Online       *bool    `json:"online,omitempty" yaml:"online" toml:"online"`
	ModemPresent *bool    `json:"modem_present,omitempty" yaml:"modem_present" toml:"modem_present"`
	SIM          *SIM     `json:"sim,omitempty" yaml:"sim" toml:"sim"`
	AllowedModes []string `json:"allowed_modes,omitempty" yaml:"allowed_modes" toml:"allowed_modes"`
	Calls        []int32  `json:"calls,omitempty" yaml:"calls" toml:"calls"`
	// DataAllowedNeeded marks modems that must be told to disallow data
	// before a switch.
	DataAllowedNeeded bool `json:"data_allowed_needed,omitempty" yaml:"data_allowed_needed" toml:"data_allowed_needed"`
	// Probe leaves the capability unknown until GET_RADIO_CAPABILITY answers.
	Probe   bool   `json:"probe,omitempty" yaml:"probe" toml:"probe"`
	Latency string `json:"latency,omitempty" yaml:"latency" toml:"latency"`
}

// SIM describes the card in a slot. Ready defaults to Present.
type SIM struct {
	Present  bool   `json:"present,omitempty" yaml:"present" toml:"present"`
	Ready    *bool  `json:"ready,omitempty" yaml:"ready" toml:"ready"`
	Identity string `json:"identity,omitempty" yaml:"identity" toml:"identity"`
}

// ManagerConfig converts the tunables, starting from DefaultConfig.
func (c Config) ManagerConfig() (capability.Config, error) {
	cfg := capability.DefaultConfig()
	if c.Manager == nil {
		return cfg, nil
	}
	m := c.Manager
	var err error
	if m.RetryDelay != "" {
		if cfg.RetryDelay, err = time.ParseDuration(m.RetryDelay); err != nil {
			return cfg, fmt.Errorf("manager.retry_delay: %w", err)
		}
	}
	if m.PhaseTimeout != "" {
		if cfg.PhaseTimeout, err = time.ParseDuration(m.PhaseTimeout); err != nil {
			return cfg, fmt.Errorf("manager.phase_timeout: %w", err)
		}
	}
	if m.ProbeRetries != nil {
		cfg.ProbeRetries = *m.ProbeRetries
	}
	cfg.RequestRetries = m.RequestRetries
	if m.MaxSlots != 0 {
		cfg.MaxSlots = m.MaxSlots
	}
	return cfg, cfg.Validate()
}

// Capability returns the snapshot the slot's modem grants.
func (s Slot) Capability() (radio.Snapshot, error) {
	fam, err := radio.ParseFamilies(s.Families)
	if err != nil {
		return radio.Snapshot{}, fmt.Errorf("slot %d: %w", s.Index, err)
	}
	id := s.ModemID
	if id == "" {
		id = fmt.Sprintf("modem%d", s.Index)
	}
	return radio.Snapshot{Families: fam, ModemID: id}, nil
}

// AllowedModeMask parses AllowedModes. Zero means no preference.
func (s Slot) AllowedModeMask() (radio.AccessMode, error) {
	if len(s.AllowedModes) == 0 {
		return 0, nil
	}
	m, err := radio.ParseModes(s.AllowedModes)
	if err != nil {
		return 0, fmt.Errorf("slot %d: %w", s.Index, err)
	}
	return m, nil
}

// IsOnline applies the default.
func (s Slot) IsOnline() bool { return s.Online == nil || *s.Online }

// HasModem applies the default.
func (s Slot) HasModem() bool { return s.ModemPresent == nil || *s.ModemPresent }

// SIMState returns presence, readiness and identity with defaults applied.
func (s Slot) SIMState() (present, ready bool, identity string) {
	if s.SIM == nil {
		return false, false, ""
	}
	ready = s.SIM.Present
	if s.SIM.Ready != nil {
		ready = *s.SIM.Ready
	}
	return s.SIM.Present, ready, s.SIM.Identity
}

// LatencyDuration parses Latency. Empty means zero.
func (s Slot) LatencyDuration() (time.Duration, error) {
	if s.Latency == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Latency)
	if err != nil {
		return 0, fmt.Errorf("slot %d latency: %w", s.Index, err)
	}
	return d, nil
}

// Check performs the cross-field validation the schema cannot express.
func (c Config) Check() error {
	seen := map[int]bool{}
	for _, s := range c.Slots {
		if seen[s.Index] {
			return fmt.Errorf("slot %d: duplicate index", s.Index)
		}
		seen[s.Index] = true
		if _, err := s.Capability(); err != nil {
			return err
		}
		if _, err := s.AllowedModeMask(); err != nil {
			return err
		}
		if _, err := s.LatencyDuration(); err != nil {
			return err
		}
	}
	mc, err := c.ManagerConfig()
	if err != nil {
		return err
	}
	if len(c.Slots) > mc.MaxSlots {
		return fmt.Errorf("%d slots exceed max_slots %d", len(c.Slots), mc.MaxSlots)
	}
	return nil
}
