package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommandPasses(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios/pass")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ keep")
	assert.Contains(t, out, "✓ swap")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommandFailures(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_outcome")
	assert.Contains(t, out, "2 passed, 1 failed, 3 total")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios", "--filter", "sw*", "--format", "json")
	require.NoError(t, err)

	var res TestResult
	decodeResponse(t, out, &res)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, "swap", res.Scenarios[0].Name)
}

func TestTestCommandSingleFile(t *testing.T) {
	out, err := execute(t, "test", "testdata/scenarios/pass/keep.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandMissingPath(t *testing.T) {
	_, err := execute(t, "test", "testdata/none")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandGolden(t *testing.T) {
	golden := t.TempDir()

	_, err := execute(t, "test", "testdata/scenarios/pass", "--golden", golden, "--update")
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(golden, "swap.golden"))
	require.FileExists(t, filepath.Join(golden, "keep.golden"))

	_, err = execute(t, "test", "testdata/scenarios/pass", "--golden", golden)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(golden, "swap.golden"), []byte("{}\n"), 0o644))
	out, err := execute(t, "test", "testdata/scenarios/pass", "--golden", golden)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match")
}
