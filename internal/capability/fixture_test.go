package capability

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/loop"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
	"github.com/roach88/radiocap/internal/sim"
	"github.com/roach88/radiocap/internal/slot"
	"github.com/roach88/radiocap/internal/testutil"
)

var (
	lteCaps = radio.FamiliesGSM | radio.FamiliesUMTS | radio.FamiliesLTE
	gsmCaps = radio.FamiliesGSM
)

type testSlot struct {
	radio   *slot.Radio
	sim     *slot.SIM
	prefs   *slot.Prefs
	modem   *slot.Modem
	data    *slot.Data
	channel *rpc.SimChannel
	hal     *sim.Modem
}

type slotSpec struct {
	index         int
	families      radio.AccessFamily
	modemID       string
	online        bool
	simPresent    bool
	identity      string
	calls         []int32
	allowedNeeded bool
	latency       time.Duration
	probe         bool
}

type fixture struct {
	t       *testing.T
	loop    *loop.Loop
	clock   *loop.ManualClock
	mgr     *Manager
	slots   map[int]*testSlot
	trace   []TraceEvent
	notices []Notice
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := loop.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := loop.New(loop.WithClock(clock), loop.WithLogger(logger))

	f := &fixture{t: t, loop: l, clock: clock, slots: map[int]*testSlot{}}
	base := []Option{
		WithLogger(logger),
		WithTokenGenerator(testutil.NewSequentialTokens("req")),
		WithTracer(TracerFunc(f.record)),
	}
	f.mgr = New(l, append(base, opts...)...)
	for _, k := range []event.Kind{event.CapabilityChanged, event.TransactionDone, event.TransactionAborted} {
		f.mgr.Subscribe(k, func(n Notice) { f.notices = append(f.notices, n) })
	}
	return f
}

// record stores the trace event and checks the single-transaction
// invariant at every step.
func (f *fixture) record(e TraceEvent) {
	f.trace = append(f.trace, e)
	for _, rec := range f.mgr.records {
		if rec.txn != NoTransaction && rec.txn != f.mgr.txn {
			f.t.Errorf("slot %d carries transaction %d while manager runs %d", rec.slot.Index, rec.txn, f.mgr.txn)
		}
	}
}

func (f *fixture) addSlot(s slotSpec) *testSlot {
	f.t.Helper()
	snap := radio.Snapshot{Families: s.families, ModemID: s.modemID}
	hal := sim.NewModem(snap)
	ch := rpc.NewSimChannel(fmt.Sprintf("slot%d", s.index), f.loop, hal, rpc.WithLatency(s.latency))

	identity := s.identity
	if s.simPresent && identity == "" {
		identity = fmt.Sprintf("id-%d", s.index)
	}
	ts := &testSlot{
		radio:   slot.NewRadio(s.index, s.online),
		sim:     slot.NewSIM(s.index, s.simPresent, s.simPresent, identity),
		prefs:   slot.NewPrefs(s.index, 0),
		modem:   slot.NewModem(s.index, true),
		data:    slot.NewData(s.index, ch, s.calls, s.allowedNeeded, nil),
		channel: ch,
		hal:     hal,
	}
	var capability *radio.Snapshot
	if !s.probe {
		capability = &snap
	}
	require.NoError(f.t, f.mgr.AddSlot(slot.Slot{
		Index:   s.index,
		Radio:   ts.radio,
		SIM:     ts.sim,
		Prefs:   ts.prefs,
		Modem:   ts.modem,
		Data:    ts.data,
		Channel: ch,
	}, capability))
	f.slots[s.index] = ts
	return ts
}

func (f *fixture) families(index int) radio.AccessFamily {
	s, ok := f.mgr.Snapshot(index)
	require.True(f.t, ok, "slot %d has no capability", index)
	return s.Families
}

func (f *fixture) count(kind TraceKind) int {
	n := 0
	for _, e := range f.trace {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (f *fixture) requests() []TraceEvent {
	var out []TraceEvent
	for _, e := range f.trace {
		if e.Kind == TraceRequest {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) noticeKinds() []event.Kind {
	var out []event.Kind
	for _, n := range f.notices {
		out = append(out, n.Kind)
	}
	return out
}

func (f *fixture) setRequests() int {
	n := 0
	for _, s := range f.slots {
		n += s.hal.Count(rpc.CodeSetRadioCapability)
	}
	return n
}

// assertSettled checks that no record is left mid-transaction.
func (f *fixture) assertSettled() {
	f.t.Helper()
	require.Equal(f.t, NoTransaction, f.mgr.txn)
	for _, rec := range f.mgr.records {
		require.Nil(f.t, rec.old, "slot %d old", rec.slot.Index)
		require.Nil(f.t, rec.new, "slot %d new", rec.slot.Index)
		require.Equal(f.t, NoTransaction, rec.txn, "slot %d txn", rec.slot.Index)
		require.Zero(f.t, rec.pending, "slot %d pending", rec.slot.Index)
	}
}

// lteWithoutSIM builds the canonical two-slot device: slot 0 holds LTE but
// has no SIM, slot 1 holds GSM with a ready SIM.
func lteWithoutSIM(f *fixture) {
	f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true})
	f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: true, simPresent: true})
}
