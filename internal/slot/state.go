package slot

import (
	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/radio"
)

// Radio is an in-memory RadioTracker.
type Radio struct {
	notifier
	online bool
}

// NewRadio creates a tracker for slot.
func NewRadio(slot int, online bool) *Radio {
	return &Radio{notifier: notifier{slot: slot}, online: online}
}

func (r *Radio) Online() bool { return r.online }

// SetOnline updates the power state, notifying on change.
func (r *Radio) SetOnline(online bool) {
	if r.online == online {
		return
	}
	r.online = online
	r.emit(event.RadioOnlineChanged)
}

// SIM is an in-memory SimStatus.
type SIM struct {
	notifier
	present  bool
	ready    bool
	identity string
	ioActive bool
}

// NewSIM creates SIM status for slot. An absent card is never ready.
func NewSIM(slot int, present, ready bool, identity string) *SIM {
	return &SIM{notifier: notifier{slot: slot}, present: present, ready: present && ready, identity: identity}
}

func (s *SIM) Present() bool    { return s.present }
func (s *SIM) Ready() bool      { return s.ready }
func (s *SIM) Identity() string { return s.identity }
func (s *SIM) IOActive() bool   { return s.ioActive }

// SetPresent inserts or removes the card. Removing it also clears
// readiness and identity.
func (s *SIM) SetPresent(present, ready bool) {
	ready = present && ready
	if s.present == present && s.ready == ready {
		return
	}
	s.present, s.ready = present, ready
	if !present && s.identity != "" {
		s.identity = ""
		s.emit(event.SimIdentityChanged)
	}
	s.emit(event.SimPresenceChanged)
}

// SetIdentity records the identity reported by SIM settings.
func (s *SIM) SetIdentity(id string) {
	if s.identity == id {
		return
	}
	s.identity = id
	s.emit(event.SimIdentityChanged)
}

// SetIOActive marks SIM I/O as busy or idle.
func (s *SIM) SetIOActive(active bool) {
	if s.ioActive == active {
		return
	}
	s.ioActive = active
	s.emit(event.SimIOChanged)
}

// Prefs is an in-memory Preferences store.
type Prefs struct {
	notifier
	allowed radio.AccessMode
}

// NewPrefs creates a preference store for slot.
func NewPrefs(slot int, allowed radio.AccessMode) *Prefs {
	return &Prefs{notifier: notifier{slot: slot}, allowed: allowed}
}

func (p *Prefs) AllowedModes() radio.AccessMode { return p.allowed }

// SetAllowedModes updates the preference.
func (p *Prefs) SetAllowedModes(m radio.AccessMode) {
	if p.allowed == m {
		return
	}
	p.allowed = m
	p.emit(event.PreferenceChanged)
}

// Modem is an in-memory ModemPresence.
type Modem struct {
	notifier
	present bool
}

// NewModem creates presence state for slot.
func NewModem(slot int, present bool) *Modem {
	return &Modem{notifier: notifier{slot: slot}, present: present}
}

func (m *Modem) Present() bool { return m.present }

// SetPresent attaches or detaches the modem.
func (m *Modem) SetPresent(present bool) {
	if m.present == present {
		return
	}
	m.present = present
	m.emit(event.ModemPresenceChanged)
}
