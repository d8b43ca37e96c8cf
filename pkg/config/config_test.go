package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Solver.MaxIterations)
	assert.Equal(t, 100, cfg.History.Limit)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kerf.yaml")
	data := []byte(`
log:
  mode: prod
solver:
  max_iterations: 80
kernel:
  arc_segments: 64
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Log.Mode)
	assert.Equal(t, 80, cfg.Solver.MaxIterations)
	assert.Equal(t, 64, cfg.Kernel.ArcSegments)
	// untouched keys keep their defaults
	assert.Equal(t, 1e-10, cfg.Solver.Tolerance)
	assert.Equal(t, 16, cfg.Kernel.CurveSegments)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kerf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history:\n  limit: 10\n"), 0o644))

	t.Setenv("KERF_HISTORY_LIMIT", "25")
	t.Setenv("KERF_SOLVER_TOLERANCE", "1e-9")
	t.Setenv("KERF_LOG_MODE", "NOP")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.History.Limit)
	assert.Equal(t, 1e-9, cfg.Solver.Tolerance)
	assert.Equal(t, "nop", cfg.Log.Mode)
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("KERF_SOLVER_MAX_ITERATIONS", "many")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KERF_SOLVER_MAX_ITERATIONS")
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Log.Mode = "loud"
	cfg.Solver.Tolerance = 0
	cfg.History.Limit = 0
	cfg.Kernel.Backend = "opencascade"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.mode")
	assert.Contains(t, err.Error(), "solver.tolerance")
	assert.Contains(t, err.Error(), "history.limit")
	assert.Contains(t, err.Error(), "kernel.backend")
}

func TestBackendFromEnv(t *testing.T) {
	t.Setenv("KERF_KERNEL_BACKEND", "Manifold")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "manifold", cfg.Kernel.Backend)
}

func TestScriptTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kerf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("script:\n  timeout: 2s\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Script.Timeout)

	t.Setenv("KERF_SCRIPT_TIMEOUT", "750ms")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Script.Timeout)

	t.Setenv("KERF_SCRIPT_TIMEOUT", "soon")
	_, err = Load(path)
	assert.ErrorContains(t, err, "KERF_SCRIPT_TIMEOUT")

	bad := Default()
	bad.Script.Timeout = 0
	assert.ErrorContains(t, bad.Validate(), "script.timeout")
}
