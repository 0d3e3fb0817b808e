// Package slot holds the per-slot collaborators the capability manager
// consumes: radio power tracking, SIM status, allowed-mode preferences,
// modem presence and the data-connection manager.
//
// Each collaborator is described by a small interface and has an in-memory
// implementation that emits change notifications through an
// event.Dispatcher keyed by slot index. The implementations are
// loop-confined.
package slot

import (
	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
)

// Notifier is implemented by every collaborator. Payloads are slot indexes.
type Notifier interface {
	Subscribe(kind event.Kind, fn func(int)) event.Token
	Unsubscribe(tok event.Token)
}

// RadioTracker reports radio power state (event.RadioOnlineChanged).
type RadioTracker interface {
	Notifier
	Online() bool
}

// SimStatus reports SIM presence and readiness (event.SimPresenceChanged),
// the subscriber identity (event.SimIdentityChanged) and SIM I/O activity
// (event.SimIOChanged).
type SimStatus interface {
	Notifier
	Present() bool
	Ready() bool
	Identity() string
	IOActive() bool
}

// Preferences reports the user's allowed access modes
// (event.PreferenceChanged). Zero means no restriction.
type Preferences interface {
	Notifier
	AllowedModes() radio.AccessMode
}

// ModemPresence reports whether the slot's modem is attached
// (event.ModemPresenceChanged).
type ModemPresence interface {
	Notifier
	Present() bool
}

// DataManager owns the slot's data calls (event.DataCallsChanged).
// Requests are tagged with owner so they can pass a channel ownership
// block.
type DataManager interface {
	Notifier
	ActiveCalls() []int32
	Deactivate(owner rpc.Owner, call int32, done func(error))
	DisallowData(owner rpc.Owner, done func(error))
	SetDataAllowedNeeded() bool
}

// Slot bundles the collaborators of one logical SIM slot.
type Slot struct {
	Index   int
	Radio   RadioTracker
	SIM     SimStatus
	Prefs   Preferences
	Modem   ModemPresence
	Data    DataManager
	Channel rpc.Channel
}

// notifier is embedded by the in-memory implementations.
type notifier struct {
	slot   int
	events event.Dispatcher[int]
}

func (n *notifier) Subscribe(kind event.Kind, fn func(int)) event.Token {
	return n.events.Subscribe(kind, fn)
}

func (n *notifier) Unsubscribe(tok event.Token) {
	n.events.Unsubscribe(tok)
}

func (n *notifier) emit(kind event.Kind) {
	n.events.Emit(kind, n.slot)
}
