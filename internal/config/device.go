package config

import (
	"fmt"
	"log/slog"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/loop"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
	"github.com/roach88/radiocap/internal/sim"
	"github.com/roach88/radiocap/internal/slot"
)

// SimSlot is one simulated slot built from a Slot description.
type SimSlot struct {
	Index   int
	Radio   *slot.Radio
	SIM     *slot.SIM
	Prefs   *slot.Prefs
	Modem   *slot.Modem
	Data    *slot.Data
	Channel *rpc.SimChannel
	HAL     *sim.Modem

	probe bool
}

// Slot returns the collaborator bundle the manager consumes.
func (s *SimSlot) Slot() slot.Slot {
	return slot.Slot{
		Index:   s.Index,
		Radio:   s.Radio,
		SIM:     s.SIM,
		Prefs:   s.Prefs,
		Modem:   s.Modem,
		Data:    s.Data,
		Channel: s.Channel,
	}
}

// Device is a set of simulated slots on one loop.
type Device struct {
	Slots []*SimSlot
}

// NewDevice builds the slots of cfg on l. cfg must have passed Validate.
func NewDevice(l *loop.Loop, cfg Config, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Device{}
	for _, sc := range cfg.Slots {
		snap, err := sc.Capability()
		if err != nil {
			return nil, err
		}
		allowed, err := sc.AllowedModeMask()
		if err != nil {
			return nil, err
		}
		latency, err := sc.LatencyDuration()
		if err != nil {
			return nil, err
		}

		hal := sim.NewModem(snap)
		ch := rpc.NewSimChannel(fmt.Sprintf("slot%d", sc.Index), l, hal,
			rpc.WithLatency(latency), rpc.WithChannelLogger(logger))
		present, ready, identity := sc.SIMState()

		d.Slots = append(d.Slots, &SimSlot{
			Index:   sc.Index,
			Radio:   slot.NewRadio(sc.Index, sc.IsOnline()),
			SIM:     slot.NewSIM(sc.Index, present, ready, identity),
			Prefs:   slot.NewPrefs(sc.Index, allowed),
			Modem:   slot.NewModem(sc.Index, sc.HasModem()),
			Data:    slot.NewData(sc.Index, ch, sc.Calls, sc.DataAllowedNeeded, logger),
			Channel: ch,
			HAL:     hal,
			probe:   sc.Probe,
		})
	}
	return d, nil
}

// Lookup returns the slot with index.
func (d *Device) Lookup(index int) (*SimSlot, bool) {
	for _, s := range d.Slots {
		if s.Index == index {
			return s, true
		}
	}
	return nil, false
}

// Attach registers every slot with m. Slots configured with probe start
// without a capability.
func (d *Device) Attach(m *capability.Manager) error {
	for _, s := range d.Slots {
		var snap *radio.Snapshot
		if !s.probe {
			c := s.HAL.Capability()
			snap = &c
		}
		if err := m.AddSlot(s.Slot(), snap); err != nil {
			return err
		}
	}
	m.Subscribe(event.TransactionDone, d.reallowData)
	m.Subscribe(event.TransactionAborted, d.reallowData)
	return nil
}

// reallowData turns data back on for modems the transaction told to stop.
func (d *Device) reallowData(capability.Notice) {
	for _, s := range d.Slots {
		if s.Data.SetDataAllowedNeeded() && !s.Data.DataAllowed() {
			s.Data.AllowData(0, nil)
		}
	}
}

// WireRequests returns how many requests with code the modems handled.
func (d *Device) WireRequests(code rpc.Code) int {
	n := 0
	for _, s := range d.Slots {
		n += s.HAL.Count(code)
	}
	return n
}
