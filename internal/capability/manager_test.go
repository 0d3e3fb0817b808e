package capability

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/radiocap/internal/event"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
	"github.com/roach88/radiocap/internal/sim"
)

func TestRequestMovesLTEToRequestingSlot(t *testing.T) {
	f := newFixture(t)
	lteWithoutSIM(f)

	token, err := f.mgr.Request(1, radio.ModeLTE, RoleInternet)
	require.NoError(t, err)
	assert.Equal(t, "req-1", token)

	f.loop.Drain()
	f.assertSettled()

	assert.True(t, f.families(1).Has(radio.FamilyLTE))
	assert.False(t, f.families(0).Has(radio.FamilyLTE))
	assert.Equal(t, gsmCaps, f.families(0))

	reqs := f.requests()
	require.Len(t, reqs, 6)
	wantPhases := []radio.Phase{radio.PhaseStart, radio.PhaseStart, radio.PhaseApply, radio.PhaseApply, radio.PhaseFinish, radio.PhaseFinish}
	for i, r := range reqs {
		assert.Equal(t, wantPhases[i], r.Phase, "request %d", i)
		assert.Equal(t, TransactionID(1), r.Session)
	}
	// START carries the old capability, APPLY the new.
	assert.Equal(t, lteCaps, reqs[0].Families)
	assert.Equal(t, gsmCaps, reqs[2].Families)
	assert.Equal(t, radio.StatusSuccess, reqs[4].Status)

	assert.Equal(t, []event.Kind{event.CapabilityChanged, event.CapabilityChanged, event.TransactionDone}, f.noticeKinds())
	assert.Equal(t, lteCaps, f.slots[1].hal.Capability().Families)
	assert.Equal(t, "m0", f.slots[1].hal.Capability().ModemID)
	assert.Equal(t, gsmCaps, f.slots[0].hal.Capability().Families)

	cur, _ := f.mgr.Snapshot(1)
	assert.Equal(t, int32(1), cur.Session)
	assert.Equal(t, radio.PhaseFinish, cur.Phase)

	assert.Equal(t, rpc.Owner(0), f.slots[0].channel.Owner())
	assert.Equal(t, rpc.Owner(0), f.slots[1].channel.Owner())
}

func TestApplyFailureAbortsWholeTransaction(t *testing.T) {
	f := newFixture(t)
	lteWithoutSIM(f)
	f.slots[0].hal.Inject(sim.Fault{Op: sim.OpApply, Kind: sim.FaultProtocol})

	_, err := f.mgr.Request(1, radio.ModeLTE, RoleInternet)
	require.NoError(t, err)
	f.loop.Drain()
	f.assertSettled()

	assert.Equal(t, lteCaps, f.families(0))
	assert.Equal(t, gsmCaps, f.families(1))
	assert.Equal(t, []event.Kind{event.TransactionAborted}, f.noticeKinds())
	assert.Equal(t, TransactionID(2), f.notices[0].Session)

	for index, s := range f.slots {
		log := s.hal.Log()
		require.Len(t, log, 3, "slot %d", index)
		last := log[2]
		assert.Equal(t, radio.PhaseFinish, last.Phase)
		assert.Equal(t, radio.StatusFail, last.Status)
		assert.Equal(t, int32(2), last.Session, "abort uses a fresh transaction id")
	}
	assert.Equal(t, lteCaps, f.slots[0].hal.Capability().Families)
	assert.Equal(t, gsmCaps, f.slots[1].hal.Capability().Families)

	// The abort sends the old capability to each participant.
	for _, r := range f.requests()[4:] {
		want := lteCaps
		if r.Slot == 1 {
			want = gsmCaps
		}
		assert.Equal(t, want, r.Families)
	}

	// A delayed retry succeeds once the fault is spent.
	f.loop.Drain()
	assert.Equal(t, gsmCaps, f.families(1))
	f.loop.Advance(f.mgr.Config().RetryDelay)
	f.assertSettled()
	assert.True(t, f.families(1).Has(radio.FamilyLTE))
	assert.Equal(t, event.TransactionDone, f.notices[len(f.notices)-1].Kind)
	assert.Equal(t, TransactionID(3), f.notices[len(f.notices)-1].Session)
}

func TestFailureKinds(t *testing.T) {
	tests := []struct {
		name  string
		fault sim.Fault
	}{
		{"start protocol", sim.Fault{Op: sim.OpStart, Kind: sim.FaultProtocol}},
		{"apply transport", sim.Fault{Op: sim.OpApply, Kind: sim.FaultTransport}},
		{"finish shape", sim.Fault{Op: sim.OpFinish, Kind: sim.FaultShape}},
		{"apply drop", sim.Fault{Op: sim.OpApply, Kind: sim.FaultDrop}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithConfig(Config{PhaseTimeout: time.Second, RetryDelay: time.Minute}))
			lteWithoutSIM(f)
			f.slots[1].hal.Inject(tt.fault)

			f.loop.Advance(5 * time.Second)
			f.assertSettled()
			assert.Equal(t, lteCaps, f.families(0))
			assert.Equal(t, gsmCaps, f.families(1))
			assert.Equal(t, []event.Kind{event.TransactionAborted}, f.noticeKinds())
			assert.Equal(t, 1, f.count(TraceAbort))
		})
	}
}

func TestUniformModesIssueNothing(t *testing.T) {
	f := newFixture(t)
	f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true})
	f.addSlot(slotSpec{index: 1, families: radio.FamiliesLTE, modemID: "m1", online: true, simPresent: true})
	_, err := f.mgr.Request(1, radio.ModeNR, RoleInternet)
	require.NoError(t, err)

	f.loop.Drain()
	assert.Zero(t, f.setRequests())
	assert.Empty(t, f.notices)
	assert.Equal(t, "uniform", f.trace[len(f.trace)-1].Detail)
}

func TestReleasedRequestNoLongerCounts(t *testing.T) {
	build := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true, simPresent: true})
		f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: true, simPresent: true})
		return f
	}

	t.Run("held", func(t *testing.T) {
		f := build(t)
		_, err := f.mgr.Request(1, radio.ModeLTE, RoleInternet)
		require.NoError(t, err)
		f.loop.Drain()
		assert.True(t, f.families(1).Has(radio.FamilyLTE))
	})

	t.Run("released before the pass", func(t *testing.T) {
		f := build(t)
		token, err := f.mgr.Request(1, radio.ModeLTE, RoleInternet)
		require.NoError(t, err)
		require.NoError(t, f.mgr.Release(token))

		f.loop.Drain()
		assert.Zero(t, f.setRequests())
		assert.Equal(t, gsmCaps, f.families(1))
		assert.Zero(t, f.mgr.Status().Slots[1].Requested)
	})
}

func TestReadinessGate(t *testing.T) {
	f := newFixture(t)
	lteWithoutSIM(f)
	f.slots[1].sim.SetIdentity("")

	f.loop.Drain()
	assert.Zero(t, f.setRequests())
	assert.Contains(t, f.trace[len(f.trace)-1].Detail, "not_ready")

	f.slots[1].sim.SetIdentity("id-1")
	f.loop.Drain()
	assert.Equal(t, 6, f.setRequests())
}

func TestOfflineSlotPassesGateWithoutCapability(t *testing.T) {
	f := newFixture(t)
	f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true})
	f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: true, simPresent: true})
	f.addSlot(slotSpec{index: 2, online: false, probe: true, latency: time.Hour})

	f.loop.Drain()
	assert.True(t, f.families(1).Has(radio.FamilyLTE))
	assert.Equal(t, 6, f.setRequests())
}

func TestSimIOBlocksBarrier(t *testing.T) {
	f := newFixture(t)
	lteWithoutSIM(f)
	f.slots[1].sim.SetIOActive(true)

	f.loop.Drain()
	assert.Equal(t, TransactionID(1), f.mgr.Transaction())
	assert.Equal(t, "sim-io", f.mgr.Status().Stage)
	assert.Zero(t, f.setRequests())

	f.slots[1].sim.SetIOActive(false)
	f.loop.Drain()
	f.assertSettled()
	assert.Equal(t, 6, f.setRequests())
}

func TestOwnershipWaitsForQueuedRequests(t *testing.T) {
	f := newFixture(t)
	f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true})
	s1 := f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: true, simPresent: true, latency: 100 * time.Millisecond})

	strangerDone := false
	s1.channel.Submit(rpc.Request{Code: rpc.CodeAllowData, Payload: []byte{1, 0, 0, 0}, Done: func(rpc.Response) { strangerDone = true }})

	f.loop.Drain()
	assert.Equal(t, "ownership", f.mgr.Status().Stage)
	assert.Zero(t, f.setRequests())

	f.loop.Advance(time.Second)
	assert.True(t, strangerDone)
	f.assertSettled()
	assert.True(t, f.families(1).Has(radio.FamilyLTE))
}

func TestOwnershipNotOvertakenByLaterRequests(t *testing.T) {
	f := newFixture(t)
	s0 := f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true, latency: 10 * time.Millisecond})
	s1 := f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: true, simPresent: true, latency: 50 * time.Millisecond})

	s0.channel.Submit(rpc.Request{Code: rpc.CodeAllowData, Payload: []byte{1, 0, 0, 0}})
	s1.channel.Submit(rpc.Request{Code: rpc.CodeAllowData, Payload: []byte{1, 0, 0, 0}})

	f.loop.Drain()
	require.Equal(t, "ownership", f.mgr.Status().Stage)

	setBeforeLate := -1
	s1.channel.Submit(rpc.Request{Code: rpc.CodeAllowData, Payload: []byte{1, 0, 0, 0}, Done: func(rpc.Response) {
		setBeforeLate = s1.hal.Count(rpc.CodeSetRadioCapability)
	}})

	f.loop.Advance(time.Second)
	f.assertSettled()
	assert.True(t, f.families(1).Has(radio.FamilyLTE))
	assert.Equal(t, 3, setBeforeLate)
}

func TestTeardownDeactivatesCallsAndDisallows(t *testing.T) {
	f := newFixture(t)
	f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true, calls: []int32{3, 4}, allowedNeeded: true})
	f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: true, simPresent: true, calls: []int32{9}})

	f.loop.Drain()
	f.assertSettled()

	assert.Empty(t, f.slots[0].data.ActiveCalls())
	assert.Empty(t, f.slots[1].data.ActiveCalls())
	assert.Equal(t, 2, f.slots[0].hal.Count(rpc.CodeDeactivateDataCall))
	assert.Equal(t, 1, f.slots[1].hal.Count(rpc.CodeDeactivateDataCall))
	assert.Equal(t, 1, f.slots[0].hal.Count(rpc.CodeAllowData))
	assert.Zero(t, f.slots[1].hal.Count(rpc.CodeAllowData))
	assert.False(t, f.slots[0].data.DataAllowed())

	// Teardown happens before START.
	log := f.slots[0].hal.Log()
	assert.Equal(t, rpc.CodeDeactivateDataCall, log[0].Code)
	assert.Equal(t, rpc.CodeAllowData, log[2].Code)
	assert.Equal(t, rpc.CodeSetRadioCapability, log[3].Code)
}

func TestBarrierFailureSkipsPhases(t *testing.T) {
	f := newFixture(t)
	f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true, calls: []int32{3}})
	f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: true, simPresent: true})
	f.slots[0].hal.Inject(sim.Fault{Op: sim.OpDeactivate, Kind: sim.FaultProtocol})

	before := testutil.ToFloat64(transactionsTotal.WithLabelValues(resultBarrierFailed))
	f.loop.Drain()
	f.assertSettled()

	assert.Zero(t, f.setRequests())
	assert.Equal(t, []event.Kind{event.TransactionAborted}, f.noticeKinds())
	assert.Zero(t, f.count(TraceAbort), "no FINISH/FAIL after a barrier failure")
	assert.Equal(t, before+1, testutil.ToFloat64(transactionsTotal.WithLabelValues(resultBarrierFailed)))
	assert.Equal(t, rpc.Owner(0), f.slots[0].channel.Owner())

	f.loop.Advance(f.mgr.Config().RetryDelay)
	f.assertSettled()
	assert.True(t, f.families(1).Has(radio.FamilyLTE))
}

func TestRemovalDuringBarrierAborts(t *testing.T) {
	f := newFixture(t)
	lteWithoutSIM(f)
	f.slots[1].sim.SetIOActive(true)
	f.loop.Drain()
	require.Equal(t, "sim-io", f.mgr.Status().Stage)

	require.NoError(t, f.mgr.RemoveSlot(0))
	f.loop.Drain()
	f.assertSettled()
	assert.Equal(t, []event.Kind{event.TransactionAborted}, f.noticeKinds())
	assert.Zero(t, f.setRequests())
	assert.Equal(t, 1, f.mgr.Status().Permutations)
}

func TestRemovalAfterApplyContinues(t *testing.T) {
	f := newFixture(t)
	f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true, latency: 10 * time.Millisecond})
	f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: true, simPresent: true, latency: 10 * time.Millisecond})

	// START completes at 10ms, APPLY is in flight until 20ms.
	f.loop.Advance(15 * time.Millisecond)
	require.Equal(t, "APPLY", f.mgr.Status().Phase)

	require.NoError(t, f.mgr.RemoveSlot(0))
	f.loop.Advance(time.Second)
	f.assertSettled()
	assert.True(t, f.families(1).Has(radio.FamilyLTE))
	assert.Equal(t, event.TransactionDone, f.notices[len(f.notices)-1].Kind)
}

func TestRemovalDuringStartAborts(t *testing.T) {
	f := newFixture(t)
	f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true, latency: 10 * time.Millisecond})
	f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: true, simPresent: true, latency: 10 * time.Millisecond})

	f.loop.Advance(5 * time.Millisecond)
	require.Equal(t, "START", f.mgr.Status().Phase)

	require.NoError(t, f.mgr.RemoveSlot(0))
	f.loop.Advance(100 * time.Millisecond)
	f.assertSettled()
	assert.Equal(t, gsmCaps, f.families(1))
	assert.Equal(t, []event.Kind{event.TransactionAborted}, f.noticeKinds())
}

func TestProbe(t *testing.T) {
	t.Run("supplies capability", func(t *testing.T) {
		f := newFixture(t)
		f.addSlot(slotSpec{index: 0, families: lteCaps, modemID: "m0", online: true, probe: true})
		assert.True(t, f.mgr.Status().Slots[0].Probing)
		f.loop.Drain()
		assert.Equal(t, lteCaps, f.families(0))
		assert.Equal(t, []event.Kind{event.CapabilityChanged}, f.noticeKinds())
	})

	t.Run("unsupported removes slot", func(t *testing.T) {
		f := newFixture(t)
		ts := f.addSlot(slotSpec{index: 0, families: lteCaps, online: true, probe: true})
		ts.hal.Inject(sim.Fault{Op: sim.OpProbe, Kind: sim.FaultUnsupported})
		f.loop.Drain()
		assert.Empty(t, f.mgr.Status().Slots)
	})

	t.Run("failure retries later", func(t *testing.T) {
		f := newFixture(t, WithConfig(Config{RetryDelay: time.Second, ProbeRetries: 0}))
		ts := f.addSlot(slotSpec{index: 0, families: lteCaps, online: true, probe: true})
		ts.hal.Inject(sim.Fault{Op: sim.OpProbe, Kind: sim.FaultProtocol})
		f.loop.Drain()
		_, ok := f.mgr.Snapshot(0)
		assert.False(t, ok)

		f.loop.Advance(time.Second)
		assert.Equal(t, lteCaps, f.families(0))
		assert.Equal(t, 2, ts.hal.Count(rpc.CodeGetRadioCapability))
	})
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	lteWithoutSIM(f)

	_, err := f.mgr.Request(7, radio.ModeLTE, RoleInternet)
	assert.True(t, IsUnknownSlot(err))
	_, err = f.mgr.Request(1, 0, RoleInternet)
	assert.True(t, IsInvalidRequest(err))
	_, err = f.mgr.Request(1, radio.ModeLTE, Role(9))
	assert.True(t, IsInvalidRequest(err))
	assert.True(t, IsInvalidRequest(f.mgr.Release("nope")))
}

func TestRoleArbitration(t *testing.T) {
	f := newFixture(t)
	f.addSlot(slotSpec{index: 0, families: gsmCaps, modemID: "m0", online: true, simPresent: true})
	f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: true, simPresent: true})

	mms, err := f.mgr.Request(0, radio.ModeLTE, RoleMMS)
	require.NoError(t, err)
	_, err = f.mgr.Request(1, radio.ModeUMTS, RoleInternet)
	require.NoError(t, err)
	_, err = f.mgr.Request(1, radio.ModeLTE, RoleInternet)
	require.NoError(t, err)

	st := f.mgr.Status()
	assert.Zero(t, st.Slots[0].Requested, "outranked by internet")
	assert.Equal(t, radio.ModeUMTS|radio.ModeLTE, st.Slots[1].Requested)

	f.slots[1].prefs.SetAllowedModes(radio.ModeGSM | radio.ModeUMTS)
	assert.Equal(t, radio.ModeUMTS, f.mgr.Status().Slots[1].Requested)

	require.NoError(t, f.mgr.Release(mms))
	assert.Len(t, f.mgr.Requests(), 2)
}

func TestAddSlotValidation(t *testing.T) {
	f := newFixture(t, WithConfig(Config{MaxSlots: 2}))
	lteWithoutSIM(f)

	err := f.mgr.AddSlot(f.mgr.records[0].slot, nil)
	assert.True(t, IsInvalidRequest(err), "duplicate")

	dup := f.mgr.records[0].slot
	dup.Index = 5
	assert.True(t, IsInvalidRequest(f.mgr.AddSlot(dup, nil)), "limit")

	assert.True(t, IsUnknownSlot(f.mgr.RemoveSlot(9)))
	assert.Equal(t, 2, f.mgr.Status().Permutations)
}

func TestRecordsStaySorted(t *testing.T) {
	f := newFixture(t)
	f.addSlot(slotSpec{index: 2, families: gsmCaps, modemID: "m2", online: false})
	f.addSlot(slotSpec{index: 0, families: gsmCaps, modemID: "m0", online: false})
	f.addSlot(slotSpec{index: 1, families: gsmCaps, modemID: "m1", online: false})

	var got []int
	for _, s := range f.mgr.Status().Slots {
		got = append(got, s.Slot)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, 6, f.mgr.Status().Permutations)
}

func TestCheckCoalesces(t *testing.T) {
	f := newFixture(t)
	f.addSlot(slotSpec{index: 0, families: gsmCaps, modemID: "m0", online: true, simPresent: true})
	f.addSlot(slotSpec{index: 1, families: lteCaps, modemID: "m1", online: true, simPresent: true})
	f.loop.Drain()
	passes := f.count(TraceDecision)

	f.slots[0].radio.SetOnline(false)
	f.slots[0].radio.SetOnline(true)
	f.slots[1].sim.SetIOActive(true)
	f.slots[1].sim.SetIOActive(false)
	f.mgr.Check()
	f.loop.Drain()
	assert.Equal(t, passes+1, f.count(TraceDecision))
}

func TestCommitMetrics(t *testing.T) {
	before := testutil.ToFloat64(transactionsTotal.WithLabelValues(resultCommitted))
	applyOK := testutil.ToFloat64(phaseRequestsTotal.WithLabelValues("APPLY", "ok"))

	f := newFixture(t)
	lteWithoutSIM(f)
	f.loop.Drain()

	assert.Equal(t, before+1, testutil.ToFloat64(transactionsTotal.WithLabelValues(resultCommitted)))
	assert.Equal(t, applyOK+2, testutil.ToFloat64(phaseRequestsTotal.WithLabelValues("APPLY", "ok")))
	assert.Equal(t, float64(0), testutil.ToFloat64(transactionActive))
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	lteWithoutSIM(f)
	f.slots[1].sim.SetIOActive(true)
	f.loop.Drain()
	s := f.mgr.records[0].slot

	f.mgr.Close()
	f.mgr.Close()
	f.slots[1].sim.SetIOActive(false)
	f.loop.Drain()
	assert.Zero(t, f.setRequests())
	assert.Empty(t, f.mgr.Status().Slots)
	assert.Error(t, f.mgr.AddSlot(s, nil))
}

func TestTransactionIDWraps(t *testing.T) {
	assert.Equal(t, TransactionID(1), NoTransaction.next())
	assert.Equal(t, TransactionID(8), TransactionID(7).next())
	assert.Equal(t, TransactionID(1), TransactionID(math.MaxInt32).next())
}

func TestFirstTransactionOption(t *testing.T) {
	f := newFixture(t, WithFirstTransaction(math.MaxInt32))
	lteWithoutSIM(f)
	f.loop.Drain()
	assert.Equal(t, TransactionID(1), f.notices[len(f.notices)-1].Session)
}
