package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/config"
)

func twoSlotDevice() config.Config {
	return config.Config{Slots: []config.Slot{
		{Index: 0, Families: []string{"gsm", "lte"}, ModemID: "m0"},
		{Index: 1, Families: []string{"gsm"}, ModemID: "m1", SIM: &config.SIM{Present: true, Identity: "8901"}},
	}}
}

func intp(v int) *int { return &v }

func TestScenarioFiles(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_SwapCommits(t *testing.T) {
	s := &Scenario{
		Name:        "swap",
		Description: "LTE moves to the slot with a SIM",
		Device:      twoSlotDevice(),
		Expect: Expect{
			Outcome:      OutcomeCommitted,
			WireRequests: intp(6),
			Slots: []SlotExpect{
				{Slot: 1, Has: []string{"lte"}},
			},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, OutcomeCommitted, result.Outcome)
	assert.Equal(t, 6, result.WireRequests)
	assert.Equal(t, capability.TraceSlotAdded, result.Trace[0].Kind)
	assert.Equal(t, capability.TraceDone, result.Trace[len(result.Trace)-2].Kind)
	assert.Equal(t, capability.NoTransaction, result.Status.Transaction)
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := &Scenario{
		Name:        "wrong",
		Description: "Every expectation is wrong",
		Device:      twoSlotDevice(),
		Expect: Expect{
			Outcome:      OutcomeAborted,
			WireRequests: intp(1),
			Slots: []SlotExpect{
				{Slot: 0, Has: []string{"lte"}},
				{Slot: 1, Lacks: []string{"lte"}},
				{Slot: 5, Has: []string{"gsm"}},
			},
			TraceCount: map[string]int{"done": 2, "commit": 0},
		},
	}

	result, err := Run(s)
	require.NoError(t, err, "failed expectations are not run errors")
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 7)
	assert.Equal(t, "outcome: expected aborted, got committed", result.Errors[0])
	assert.Equal(t, "wire_requests: expected 1, got 6", result.Errors[1])
	assert.Contains(t, result.Errors[2], "slot 0: expected")
	assert.Contains(t, result.Errors[3], "slot 1: expected no")
	assert.Equal(t, "slot 5: not registered", result.Errors[4])
	assert.Equal(t, "trace_count commit: expected 0, got 2", result.Errors[5])
	assert.Equal(t, "trace_count done: expected 2, got 1", result.Errors[6])
}

func TestRun_ReleaseUnknownTokenFails(t *testing.T) {
	s := &Scenario{
		Name:        "bad_release",
		Description: "Releases a token that was never issued",
		Device:      twoSlotDevice(),
		Steps:       []Step{{Release: "nobody"}},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[0]")
	assert.Contains(t, err.Error(), "unknown request token")
}

func TestRun_OfflineSlotDefersDecision(t *testing.T) {
	s := &Scenario{
		Name:        "offline_then_online",
		Description: "A slot with a SIM goes offline and comes back",
		Device:      twoSlotDevice(),
		Steps: []Step{
			{Online: &SlotFlag{Slot: 1, Value: false}},
			{Run: true},
			{Online: &SlotFlag{Slot: 1, Value: true}},
		},
		Expect: Expect{
			Outcome: OutcomeCommitted,
			Slots:   []SlotExpect{{Slot: 1, Has: []string{"lte"}}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_SIMInsertion(t *testing.T) {
	dev := twoSlotDevice()
	dev.Slots[1].SIM = nil
	s := &Scenario{
		Name:        "sim_insert",
		Description: "Nothing moves until a SIM shows up in slot 1",
		Device:      dev,
		Steps: []Step{
			{Run: true},
			{SIM: &SIMStep{Slot: 1, Present: true, Identity: "8901"}},
		},
		Expect: Expect{
			Outcome: OutcomeCommitted,
			Slots:   []SlotExpect{{Slot: 1, Has: []string{"lte"}}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestWithTracer(t *testing.T) {
	s := &Scenario{Name: "swap", Description: "swap", Device: twoSlotDevice()}

	var seen []capability.TraceEvent
	result, err := Run(s, WithTracer(capability.TracerFunc(func(e capability.TraceEvent) {
		seen = append(seen, e)
	})))
	require.NoError(t, err)
	assert.Equal(t, result.Trace, seen)
}

func TestParseScenario_Rejects(t *testing.T) {
	const device = `
device:
  slots:
    - {index: 0, families: [gsm, lte], modem_id: m0}
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "description: d\n" + device, "name is required"},
		{"missing description", "name: n\n" + device, "description is required"},
		{"unknown field", "name: n\ndescription: d\ncolour: red\n" + device, "parse scenario"},
		{"empty device", "name: n\ndescription: d\ndevice: {slots: []}\n", "device"},
		{"two actions", "name: n\ndescription: d\n" + device + "steps:\n  - {run: true, advance: 1s}\n", "exactly one action required, found 2"},
		{"empty step", "name: n\ndescription: d\n" + device + "steps:\n  - {}\n", "exactly one action required, found 0"},
		{"unknown slot", "name: n\ndescription: d\n" + device + "steps:\n  - {remove: 3}\n", "unknown slot 3"},
		{"bad mode", "name: n\ndescription: d\n" + device + "steps:\n  - request: {slot: 0, modes: [wifi], role: internet}\n", "steps[0].request"},
		{"bad role", "name: n\ndescription: d\n" + device + "steps:\n  - request: {slot: 0, modes: [lte], role: boss}\n", "unknown data role"},
		{"bad advance", "name: n\ndescription: d\n" + device + "steps:\n  - {advance: soon}\n", "invalid duration"},
		{"bad fault op", "name: n\ndescription: d\n" + device + "faults:\n  - {slot: 0, op: explode, kind: protocol}\n", "faults[0]"},
		{"fault slot", "name: n\ndescription: d\n" + device + "faults:\n  - {slot: 2, op: apply, kind: protocol}\n", "faults[0]: unknown slot 2"},
		{"bad outcome", "name: n\ndescription: d\n" + device + "expect: {outcome: maybe}\n", "unknown outcome"},
		{"bad family", "name: n\ndescription: d\n" + device + "expect:\n  slots:\n    - {slot: 0, has: [wifi]}\n", "expect.slots[0].has"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "read scenario"))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeNone, outcome(nil))
	assert.Equal(t, OutcomeAborted, outcome([]capability.TraceEvent{
		{Kind: capability.TraceDone}, {Kind: capability.TraceAborted}, {Kind: capability.TraceDecision},
	}))
	assert.Equal(t, OutcomeCommitted, outcome([]capability.TraceEvent{
		{Kind: capability.TraceAborted}, {Kind: capability.TraceDone},
	}))
}
