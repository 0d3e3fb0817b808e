// Package event implements a typed event-dispatch table.
//
// Each publisher owns a Dispatcher keyed by a small fixed Kind enum.
// Subscribers register a callback per kind and receive an opaque Token they
// can later pass to Unsubscribe. Dispatchers are not safe for concurrent
// use; they are confined to the event loop that owns the publisher.
package event

import "fmt"

// Kind identifies a notification.
type Kind uint8

const (
	RadioOnlineChanged Kind = iota + 1
	SimPresenceChanged
	SimIdentityChanged
	SimIOChanged
	PreferenceChanged
	ModemPresenceChanged
	DataCallsChanged
	OwnerChanged
	CapabilityChanged
	TransactionDone
	TransactionAborted
	kindCount
)

var kindNames = [...]string{
	RadioOnlineChanged:   "radio-online-changed",
	SimPresenceChanged:   "sim-presence-changed",
	SimIdentityChanged:   "sim-identity-changed",
	SimIOChanged:         "sim-io-changed",
	PreferenceChanged:    "preference-changed",
	ModemPresenceChanged: "modem-presence-changed",
	DataCallsChanged:     "data-calls-changed",
	OwnerChanged:         "owner-changed",
	CapabilityChanged:    "capability-changed",
	TransactionDone:      "transaction-done",
	TransactionAborted:   "transaction-aborted",
}

func (k Kind) String() string {
	if k == 0 || k >= kindCount {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Token identifies a subscription. The zero Token is never issued.
type Token uint64

type subscriber[E any] struct {
	token Token
	fn    func(E)
}

// Dispatcher fans events of payload type E out to per-kind subscriber lists.
// The zero value is ready to use.
type Dispatcher[E any] struct {
	next  Token
	subs  [kindCount][]subscriber[E]
	where map[Token]Kind
}

// Subscribe registers fn for kind and returns its token.
func (d *Dispatcher[E]) Subscribe(kind Kind, fn func(E)) Token {
	if kind == 0 || kind >= kindCount {
		panic(fmt.Sprintf("event: subscribe to invalid %s", kind))
	}
	if d.where == nil {
		d.where = make(map[Token]Kind)
	}
	d.next++
	tok := d.next
	d.subs[kind] = append(d.subs[kind], subscriber[E]{token: tok, fn: fn})
	d.where[tok] = kind
	return tok
}

// Unsubscribe removes the subscription. Unknown and zero tokens are ignored.
// A subscriber removed while an Emit is in progress is not called by it.
func (d *Dispatcher[E]) Unsubscribe(tok Token) {
	kind, ok := d.where[tok]
	if !ok {
		return
	}
	delete(d.where, tok)
	list := d.subs[kind]
	for i, s := range list {
		if s.token == tok {
			// Copy so an Emit iterating the old slice is unaffected.
			out := make([]subscriber[E], 0, len(list)-1)
			out = append(out, list[:i]...)
			d.subs[kind] = append(out, list[i+1:]...)
			return
		}
	}
}

// Emit calls every subscriber of kind in subscription order. Subscribers
// added during the emission are not called until the next one.
func (d *Dispatcher[E]) Emit(kind Kind, payload E) {
	if kind == 0 || kind >= kindCount {
		return
	}
	for _, s := range d.subs[kind] {
		if _, live := d.where[s.token]; !live {
			continue
		}
		s.fn(payload)
	}
}

// Subscribers returns the number of live subscriptions for kind.
func (d *Dispatcher[E]) Subscribers(kind Kind) int {
	if kind == 0 || kind >= kindCount {
		return 0
	}
	return len(d.subs[kind])
}

// Group tracks tokens taken on one dispatcher so they can be dropped
// together.
type Group[E any] struct {
	d      *Dispatcher[E]
	tokens []Token
}

// NewGroup returns a Group bound to d.
func NewGroup[E any](d *Dispatcher[E]) *Group[E] {
	return &Group[E]{d: d}
}

// Subscribe subscribes through the group's dispatcher.
func (g *Group[E]) Subscribe(kind Kind, fn func(E)) Token {
	tok := g.d.Subscribe(kind, fn)
	g.tokens = append(g.tokens, tok)
	return tok
}

// Close unsubscribes every token taken through the group.
func (g *Group[E]) Close() {
	for _, tok := range g.tokens {
		g.d.Unsubscribe(tok)
	}
	g.tokens = nil
}
