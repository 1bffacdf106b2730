package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecConstants(t *testing.T) {
	s := Default()
	require.Equal(t, 0.02, s.CritTime.PrecisionS)
	require.Equal(t, 1.0, s.CritTime.MaxS)
	require.Equal(t, 1.471, s.Shunt.BaseAngle)
	require.Equal(t, 1, s.MDP.SelectedSectionOrdinal)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crit_time:
  precision_s: 0.05
shunt:
  use_sel_nodes: true
`), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 0.05, s.CritTime.PrecisionS)
	require.Equal(t, 1.0, s.CritTime.MaxS, "unset fields keep their default")
	require.True(t, s.Shunt.UseSelNodes)
	require.True(t, s.Shunt.CalcOnePhase, "default true fields survive overlay")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
