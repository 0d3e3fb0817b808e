package capability

import (
	"log/slog"
	"sort"

	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/loop"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
	"github.com/roach88/radiocap/internal/slot"
)

// Notice is the payload of manager notifications. CapabilityChanged fills
// Slot and Families; TransactionDone and TransactionAborted fill Session.
type Notice struct {
	Kind     event.Kind
	Slot     int
	Families radio.AccessFamily
	Session  TransactionID
}

// Manager decides how capability packages are distributed across slots and
// drives the reallocation transaction.
//
// Manager is confined to its loop: every exported method must be called
// from a loop task (or before the loop starts running).
type Manager struct {
	loop   *loop.Loop
	cfg    Config
	logger *slog.Logger
	tracer Tracer
	seq    *loop.Sequence
	tokens TokenGenerator
	owner  rpc.Owner

	records []*Record
	perms   [][]int

	requests []*roleRequest

	txn     TransactionID
	lastTxn TransactionID
	phase   int
	stage   stage
	failed  bool
	started bool
	// issuing suppresses completion checks while a batch of requests is
	// being submitted.
	issuing bool

	// participants lists slot indexes of the running transaction.
	participants []int
	ownerSubs    []ownerSub

	check  *loop.Deferred
	events event.Dispatcher[Notice]
	closed bool
}

type ownerSub struct {
	ch    rpc.Channel
	token event.Token
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig replaces the default configuration. Zero durations fall back
// to DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithTracer receives every trace event.
func WithTracer(t Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithSequence stamps trace events from s.
func WithSequence(s *loop.Sequence) Option {
	return func(m *Manager) { m.seq = s }
}

// WithTokenGenerator sets the data-role token source. Defaults to UUIDv7.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(m *Manager) { m.tokens = g }
}

// WithFirstTransaction makes the next allocated id follow last.
func WithFirstTransaction(last TransactionID) Option {
	return func(m *Manager) { m.lastTxn = last }
}

// New creates a manager bound to l.
func New(l *loop.Loop, opts ...Option) *Manager {
	m := &Manager{
		loop:   l,
		cfg:    DefaultConfig(),
		logger: slog.Default(),
		tracer: nopTracer{},
		seq:    loop.NewSequence(),
		tokens: UUIDv7Generator{},
		owner:  rpc.NewOwner(),
		phase:  -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cfg = m.cfg.withDefaults()
	m.check = loop.NewDeferred(l, m.decide)
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Subscribe registers for CapabilityChanged, TransactionDone or
// TransactionAborted.
func (m *Manager) Subscribe(kind event.Kind, fn func(Notice)) event.Token {
	return m.events.Subscribe(kind, fn)
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(tok event.Token) {
	m.events.Unsubscribe(tok)
}

// Check schedules a decision pass.
func (m *Manager) Check() {
	if !m.closed {
		m.check.Schedule()
	}
}

// AddSlot creates the record for s. With a nil capability the record is
// probed first.
func (m *Manager) AddSlot(s slot.Slot, capability *radio.Snapshot) error {
	if m.closed {
		return newError(ErrCodeInvalidRequest, s.Index, NoTransaction, "manager closed")
	}
	if s.Radio == nil || s.SIM == nil || s.Data == nil || s.Channel == nil {
		return newError(ErrCodeInvalidRequest, s.Index, NoTransaction, "slot is missing collaborators")
	}
	if m.find(s.Index) != nil {
		return newError(ErrCodeInvalidRequest, s.Index, NoTransaction, "slot already registered")
	}
	if len(m.records) >= m.cfg.MaxSlots {
		return newError(ErrCodeInvalidRequest, s.Index, NoTransaction, "slot limit %d reached", m.cfg.MaxSlots)
	}

	rec := &Record{slot: s}
	if capability != nil {
		rec.current = *capability
		rec.hasCurrent = true
	}

	m.records = append(m.records, rec)
	sort.Slice(m.records, func(i, j int) bool { return m.records[i].slot.Index < m.records[j].slot.Index })
	m.regenerate()
	m.subscribe(rec)
	m.refreshRequested()

	m.logger.Info("slot added", "slot", s.Index, "capability", rec.current.String(), "probe", capability == nil)
	m.trace(TraceEvent{Kind: TraceSlotAdded, Slot: s.Index, Families: rec.current.Families, ModemID: rec.current.ModemID})

	if capability == nil {
		m.startProbe(rec)
	} else {
		m.check.Schedule()
	}
	return nil
}

// RemoveSlot destroys the record for index. A transaction in flight
// tolerates the removal: before APPLY is issued it aborts, afterwards the
// remaining participants carry on.
func (m *Manager) RemoveSlot(index int) error {
	rec := m.find(index)
	if rec == nil {
		return newError(ErrCodeUnknownSlot, index, NoTransaction, "no such slot")
	}
	m.dropRecord(rec, "removed")
	return nil
}

func (m *Manager) dropRecord(rec *Record, reason string) {
	index := rec.slot.Index
	rec.unsubscribeAll()
	rec.probeTimer.Stop()
	for _, h := range rec.inflight {
		rec.slot.Channel.Cancel(h)
	}
	if rec.owned {
		rec.slot.Channel.Release(m.owner)
		rec.owned = false
	}

	for i, r := range m.records {
		if r == rec {
			m.records = append(m.records[:i], m.records[i+1:]...)
			break
		}
	}
	m.regenerate()

	m.logger.Info("slot removed", "slot", index, "reason", reason)
	m.trace(TraceEvent{Kind: TraceSlotRemoved, Slot: index, Detail: reason})

	if m.txn != NoTransaction && rec.txn == m.txn {
		m.participantVanished(rec)
	}
	rec.clearTransaction()
	m.check.Schedule()
}

// Close drops every record and stops scheduling work. A transaction in
// flight is abandoned without notifications.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.check.Cancel()
	for _, rec := range m.records {
		rec.unsubscribeAll()
		rec.probeTimer.Stop()
		for _, h := range rec.inflight {
			rec.slot.Channel.Cancel(h)
		}
	}
	m.releaseOwnership()
	m.records = nil
	m.perms = nil
	if m.txn != NoTransaction {
		transactionActive.Set(0)
	}
	m.txn = NoTransaction
	m.stage = stageIdle
}

func (m *Manager) find(index int) *Record {
	for _, r := range m.records {
		if r.slot.Index == index {
			return r
		}
	}
	return nil
}

func (m *Manager) regenerate() {
	perms, err := Permutations(len(m.records))
	if err != nil {
		// AddSlot enforces MaxSlots, which Validate bounds.
		m.logger.Error("permutation set unavailable", "error", err)
		m.perms = nil
		return
	}
	m.perms = perms
}

func (m *Manager) subscribe(rec *Record) {
	index := rec.slot.Index
	add := func(n slot.Notifier, kinds ...event.Kind) {
		if n == nil {
			return
		}
		for _, k := range kinds {
			k := k
			tok := n.Subscribe(k, func(int) { m.onSlotEvent(index, k) })
			rec.subs = append(rec.subs, subscription{from: n, token: tok})
		}
	}
	add(rec.slot.Radio, event.RadioOnlineChanged)
	add(rec.slot.SIM, event.SimPresenceChanged, event.SimIdentityChanged, event.SimIOChanged)
	if rec.slot.Prefs != nil {
		add(rec.slot.Prefs, event.PreferenceChanged)
	}
	if rec.slot.Modem != nil {
		add(rec.slot.Modem, event.ModemPresenceChanged)
	}
}

// onSlotEvent reacts to collaborator notifications. Re-scoring is deferred
// to the next idle turn so other listeners settle first.
func (m *Manager) onSlotEvent(index int, kind event.Kind) {
	if m.closed {
		return
	}
	m.logger.Debug("slot changed", "slot", index, "event", kind.String())
	if kind == event.PreferenceChanged {
		m.refreshRequested()
	}
	if kind == event.SimIOChanged && m.stage == stageSimIO {
		m.loop.Post(m.advanceBarrier)
	}
	m.check.Schedule()
}

func (m *Manager) trace(e TraceEvent) {
	e.Seq = m.seq.Next()
	m.tracer.Trace(e)
}

func (m *Manager) emit(n Notice) {
	m.events.Emit(n.Kind, n)
}
