package inputs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeBundleFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadBundleParsesFullDeclaration(t *testing.T) {
	path := writeBundleFile(t, `
regimes:
  - path: rgm1.rst
variants:
  - id: -1
    name: Normal
scenarios:
  - path: scn1.scn
repair_file: repairs.rst
continuation_file: ut.dat
cross_section_path: crosssection.dat
shunt_task_path: tasks.csv
`)

	b, err := LoadBundle(path)
	require.NoError(t, err)
	require.Equal(t, []Regime{{Path: "rgm1.rst"}}, b.Regimes)
	require.Equal(t, []Scenario{{Path: "scn1.scn"}}, b.Scenarios)
	require.Equal(t, RepairSchemaFile("repairs.rst"), b.RepairFile)
	require.Equal(t, ContinuationFile("ut.dat"), b.ContinuationFile)
	require.Equal(t, "crosssection.dat", b.CrossSectionPath)
	require.Equal(t, "tasks.csv", b.ShuntTaskPath)
	require.Len(t, b.Variants, 1)
	require.Equal(t, "Normal", b.Variants[0].Name)
}

func TestLoadBundleDefaultsVariantsToNormalWhenOmitted(t *testing.T) {
	path := writeBundleFile(t, `
regimes:
  - path: rgm1.rst
scenarios:
  - path: scn1.scn
`)

	b, err := LoadBundle(path)
	require.NoError(t, err)
	require.Len(t, b.Variants, 1)
	require.True(t, b.Variants[0].IsNormal())
	require.Equal(t, "Normal", b.Variants[0].Name)
}

func TestLoadBundleRejectsEmptyRegimes(t *testing.T) {
	path := writeBundleFile(t, `
scenarios:
  - path: scn1.scn
`)

	_, err := LoadBundle(path)
	require.Error(t, err)
}

func TestLoadBundleRejectsEmptyScenarios(t *testing.T) {
	path := writeBundleFile(t, `
regimes:
  - path: rgm1.rst
`)

	_, err := LoadBundle(path)
	require.Error(t, err)
}

func TestLoadBundleMissingFileReportsError(t *testing.T) {
	_, err := LoadBundle(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
