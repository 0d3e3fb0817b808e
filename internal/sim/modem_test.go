package sim

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
)

func setRequest(t *testing.T, s radio.Snapshot) rpc.Request {
	t.Helper()
	payload, err := radio.MessageFromSnapshot(s).MarshalBinary()
	require.NoError(t, err)
	return rpc.Request{Code: rpc.CodeSetRadioCapability, Payload: payload}
}

func TestModemProbe(t *testing.T) {
	m := NewModem(radio.Snapshot{Families: radio.FamiliesLTE, ModemID: "m0"})

	resp, ok := m.Handle(rpc.Request{Code: rpc.CodeGetRadioCapability}, 1)
	require.True(t, ok)
	require.True(t, resp.OK())

	msg, err := radio.DecodeMessage(resp.Payload)
	require.NoError(t, err)
	assert.Equal(t, radio.FamiliesLTE, msg.Families)
	assert.Equal(t, "m0", msg.ModemID)
	assert.Equal(t, radio.PhaseConfigured, msg.Phase)
}

func TestModemCommitsOnFinishSuccess(t *testing.T) {
	old := radio.Snapshot{Families: radio.FamiliesGSM, ModemID: "m1"}
	next := radio.Snapshot{Families: radio.FamiliesLTE, ModemID: "m0"}
	m := NewModem(old)

	for _, s := range []radio.Snapshot{
		old.WithPhase(5, radio.PhaseStart, radio.StatusNone),
		next.WithPhase(5, radio.PhaseApply, radio.StatusNone),
		next.WithPhase(5, radio.PhaseFinish, radio.StatusSuccess),
	} {
		resp, ok := m.Handle(setRequest(t, s), 1)
		require.True(t, ok)
		require.True(t, resp.OK())
		msg, err := radio.DecodeMessage(resp.Payload)
		require.NoError(t, err)
		assert.Equal(t, int32(5), msg.Session)
		assert.NotEqual(t, radio.StatusFail, msg.Status)
	}

	assert.Equal(t, radio.FamiliesLTE, m.Capability().Families)
	assert.Equal(t, "m0", m.Capability().ModemID)
	assert.Equal(t, 3, m.Count(rpc.CodeSetRadioCapability))
}

func TestModemAbortRestoresOld(t *testing.T) {
	old := radio.Snapshot{Families: radio.FamiliesGSM, ModemID: "m1"}
	next := radio.Snapshot{Families: radio.FamiliesLTE, ModemID: "m0"}
	m := NewModem(old)

	m.Handle(setRequest(t, next.WithPhase(2, radio.PhaseApply, radio.StatusNone)), 1)
	resp, ok := m.Handle(setRequest(t, old.WithPhase(3, radio.PhaseFinish, radio.StatusFail)), 1)
	require.True(t, ok)
	require.True(t, resp.OK())
	assert.Equal(t, old.Families, m.Capability().Families)

	log := m.Log()
	require.Len(t, log, 2)
	assert.Equal(t, radio.StatusFail, log[1].Status)
}

func TestModemFaults(t *testing.T) {
	s := radio.Snapshot{Families: radio.FamiliesLTE, ModemID: "m0"}

	tests := []struct {
		kind  FaultKind
		check func(t *testing.T, resp rpc.Response, ok bool)
	}{
		{FaultProtocol, func(t *testing.T, resp rpc.Response, ok bool) {
			assert.True(t, ok)
			assert.Equal(t, rpc.ErrorGenericFailure, resp.Error)
		}},
		{FaultUnsupported, func(t *testing.T, resp rpc.Response, ok bool) {
			assert.Equal(t, rpc.ErrorRequestNotSupported, resp.Error)
		}},
		{FaultTransport, func(t *testing.T, resp rpc.Response, ok bool) {
			assert.Equal(t, rpc.TransportFailed, resp.Transport)
		}},
		{FaultShape, func(t *testing.T, resp rpc.Response, ok bool) {
			assert.True(t, resp.OK())
			_, err := radio.DecodeMessage(resp.Payload)
			assert.Error(t, err)
		}},
		{FaultDrop, func(t *testing.T, resp rpc.Response, ok bool) {
			assert.False(t, ok)
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			m := NewModem(s)
			m.Inject(Fault{Op: OpApply, Kind: tt.kind})

			// Other phases are unaffected.
			resp, ok := m.Handle(setRequest(t, s.WithPhase(1, radio.PhaseStart, radio.StatusNone)), 1)
			require.True(t, ok)
			require.True(t, resp.OK())

			resp, ok = m.Handle(setRequest(t, s.WithPhase(1, radio.PhaseApply, radio.StatusNone)), 1)
			tt.check(t, resp, ok)
			assert.True(t, m.Log()[1].Faulted)

			// The fault fires once.
			resp, ok = m.Handle(setRequest(t, s.WithPhase(1, radio.PhaseApply, radio.StatusNone)), 2)
			require.True(t, ok)
			assert.True(t, resp.OK())
		})
	}
}

func TestModemPersistentFault(t *testing.T) {
	m := NewModem(radio.Snapshot{Families: radio.FamilyGSM})
	m.Inject(Fault{Op: OpProbe, Kind: FaultUnsupported, Times: -1})

	for i := 0; i < 3; i++ {
		resp, _ := m.Handle(rpc.Request{Code: rpc.CodeGetRadioCapability}, 1)
		assert.Equal(t, rpc.ErrorRequestNotSupported, resp.Error)
	}
}

func TestModemDataRequests(t *testing.T) {
	m := NewModem(radio.Snapshot{})
	payload := binary.LittleEndian.AppendUint32(nil, 0)

	resp, _ := m.Handle(rpc.Request{Code: rpc.CodeAllowData, Payload: payload}, 1)
	assert.True(t, resp.OK())
	assert.False(t, m.DataAllowed())

	resp, _ = m.Handle(rpc.Request{Code: rpc.CodeDeactivateDataCall, Payload: binary.LittleEndian.AppendUint32(nil, 7)}, 1)
	assert.True(t, resp.OK())

	resp, _ = m.Handle(rpc.Request{Code: rpc.CodeDeactivateDataCall}, 1)
	assert.Equal(t, rpc.ErrorInvalidArguments, resp.Error)

	resp, _ = m.Handle(rpc.Request{Code: rpc.Code(999)}, 1)
	assert.Equal(t, rpc.ErrorRequestNotSupported, resp.Error)
}

func TestParseFaultNames(t *testing.T) {
	op, err := ParseOp("APPLY")
	require.NoError(t, err)
	assert.Equal(t, OpApply, op)
	_, err = ParseOp("commit")
	assert.Error(t, err)

	kind, err := ParseFaultKind("drop")
	require.NoError(t, err)
	assert.Equal(t, FaultDrop, kind)
	_, err = ParseFaultKind("explode")
	assert.Error(t, err)
}
