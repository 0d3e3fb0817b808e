package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/radio"
	"github.com/roach88/radiocap/internal/rpc"
	"github.com/roach88/radiocap/internal/testutil"
)

func TestLoadFormatsAgree(t *testing.T) {
	want, err := Load("testdata/device.yaml")
	require.NoError(t, err)
	require.Len(t, want.Slots, 2)

	for _, name := range []string{"device.toml", "device.json", "device.cue"} {
		t.Run(name, func(t *testing.T) {
			got, err := Load(filepath.Join("testdata", name))
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoadedValues(t *testing.T) {
	cfg, err := Load("testdata/device.yaml")
	require.NoError(t, err)

	mc, err := cfg.ManagerConfig()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, mc.RetryDelay)
	assert.Equal(t, 1, mc.ProbeRetries)
	assert.Equal(t, capability.DefaultConfig().PhaseTimeout, mc.PhaseTimeout)

	s0 := cfg.Slots[0]
	snap, err := s0.Capability()
	require.NoError(t, err)
	assert.Equal(t, radio.FamiliesGSM|radio.FamiliesUMTS|radio.FamiliesLTE, snap.Families)
	assert.Equal(t, "m0", snap.ModemID)
	assert.True(t, s0.IsOnline())
	present, _, _ := s0.SIMState()
	assert.False(t, present)

	s1 := cfg.Slots[1]
	present, ready, identity := s1.SIMState()
	assert.True(t, present)
	assert.True(t, ready, "ready defaults to present")
	assert.Equal(t, "8901", identity)
	mask, err := s1.AllowedModeMask()
	require.NoError(t, err)
	assert.Equal(t, radio.ModeGSM|radio.ModeUMTS|radio.ModeLTE, mask)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		ext  string
		data string
		want string
	}{
		{"unknown yaml field", ".yaml", "slots:\n  - index: 0\n    colour: red\n", "colour"},
		{"unknown toml field", ".toml", "[[slots]]\nindex = 0\ncolour = \"red\"\n", "parse toml"},
		{"unknown json field", ".json", `{"slots":[{"index":0,"colour":"red"}]}`, "colour"},
		{"unknown cue field", ".cue", "slots: [{index: 0, colour: \"red\"}]\n", "colour"},
		{"empty yaml", ".yaml", "", "empty"},
		{"no slots", ".json", `{"slots":[]}`, "schema"},
		{"unknown family", ".yaml", "slots:\n  - index: 0\n    families: [wimax]\n", "schema"},
		{"bad duration", ".yaml", "manager:\n  retry_delay: soon\nslots:\n  - index: 0\n", "schema"},
		{"too many slots allowed", ".yaml", "manager:\n  max_slots: 7\nslots:\n  - index: 0\n", "schema"},
		{"negative index", ".json", `{"slots":[{"index":-1}]}`, "schema"},
		{"duplicate index", ".yaml", "slots:\n  - index: 1\n  - index: 1\n", "duplicate"},
		{"slots over limit", ".yaml", "manager:\n  max_slots: 1\nslots:\n  - index: 0\n  - index: 1\n", "max_slots"},
		{"unsupported extension", ".ini", "x=1", "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.ext, "input"+tt.ext)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.True(t, os.IsNotExist(err))
	_, err = Load("")
	assert.Error(t, err)
}

func TestDeviceAttach(t *testing.T) {
	cfg, err := Load("testdata/device.yaml")
	require.NoError(t, err)

	l, _ := testutil.NewLoop()
	dev, err := NewDevice(l, cfg, testutil.DiscardLogger())
	require.NoError(t, err)
	require.Len(t, dev.Slots, 2)

	s1, ok := dev.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, []int32{7}, s1.Data.ActiveCalls())
	_, ok = dev.Lookup(5)
	assert.False(t, ok)

	mc, err := cfg.ManagerConfig()
	require.NoError(t, err)
	m := capability.New(l, capability.WithConfig(mc), capability.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, dev.Attach(m))
	l.Drain()

	got, ok := m.Snapshot(1)
	require.True(t, ok)
	assert.True(t, got.Families.Has(radio.FamilyLTE), "slot without a SIM gives up LTE")
	assert.Equal(t, 6, dev.WireRequests(rpc.CodeSetRadioCapability))
	assert.Equal(t, 1, dev.WireRequests(rpc.CodeDeactivateDataCall))
	assert.Equal(t, 2, dev.WireRequests(rpc.CodeAllowData), "disallow before the switch, allow after")
	assert.Empty(t, s1.Data.ActiveCalls())
	assert.True(t, s1.Data.DataAllowed())
	assert.True(t, s1.HAL.DataAllowed())
}

func TestDeviceProbe(t *testing.T) {
	cfg, err := Parse([]byte("slots:\n  - index: 0\n    families: [lte-all]\n    probe: true\n"), ".yaml", "probe.yaml")
	require.NoError(t, err)

	l, _ := testutil.NewLoop()
	dev, err := NewDevice(l, cfg, testutil.DiscardLogger())
	require.NoError(t, err)
	m := capability.New(l, capability.WithLogger(testutil.DiscardLogger()))
	require.NoError(t, dev.Attach(m))

	_, ok := m.Snapshot(0)
	assert.False(t, ok)
	l.Drain()
	got, ok := m.Snapshot(0)
	require.True(t, ok)
	assert.Equal(t, "modem0", got.ModemID)
	assert.Equal(t, 1, dev.WireRequests(rpc.CodeGetRadioCapability))
}
