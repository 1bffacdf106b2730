package resultstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SavinovAleksandr/dss/inputs"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := Open("", 0, time.Hour)
	require.NoError(t, err)
	defer store.Close()

	rgm := inputs.Regime{Path: "r1.rst"}
	vrn := inputs.Variant{ID: inputs.NormalVariantID, Name: "Normal"}
	scn := inputs.Scenario{Path: "s1.scn"}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, Put(store, "crittime", rgm, vrn, scn, now, 0.234))

	entry, ok, err := store.Get("crittime", rgm, vrn, scn)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "r1.rst", entry.Regime)
	require.Equal(t, "Normal", entry.Variant)
	require.JSONEq(t, "0.234", string(entry.Payload))
}

func TestGetMissingEntryReportsNotFound(t *testing.T) {
	store, err := Open("", 0, time.Hour)
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get("crittime", inputs.Regime{Path: "x.rst"}, inputs.Variant{}, inputs.Scenario{Path: "y.scn"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestForSolverReturnsOnlyMatchingEntries(t *testing.T) {
	store, err := Open("", 0, time.Hour)
	require.NoError(t, err)
	defer store.Close()

	rgm := inputs.Regime{Path: "r1.rst"}
	vrn := inputs.Variant{ID: inputs.NormalVariantID, Name: "Normal"}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, Put(store, "crittime", rgm, vrn, inputs.Scenario{Path: "s1.scn"}, now, 0.1))
	require.NoError(t, Put(store, "crittime", rgm, vrn, inputs.Scenario{Path: "s2.scn"}, now, 0.2))
	require.NoError(t, Put(store, "mdp", rgm, vrn, inputs.Scenario{Path: "s1.scn"}, now, 50.0))

	entries, err := store.ForSolver("crittime")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestGCPurgesOldEntriesOnceOverLimit(t *testing.T) {
	store, err := Open("", 1, time.Minute)
	require.NoError(t, err)
	defer store.Close()

	rgm := inputs.Regime{Path: "r1.rst"}
	vrn := inputs.Variant{ID: inputs.NormalVariantID, Name: "Normal"}
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 8, 1, 11, 59, 0, 0, time.UTC)

	require.NoError(t, Put(store, "crittime", rgm, vrn, inputs.Scenario{Path: "old.scn"}, old, 0.1))
	require.NoError(t, Put(store, "crittime", rgm, vrn, inputs.Scenario{Path: "recent.scn"}, recent, 0.2))

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	npurged, nremain, err := store.GC(now)
	require.NoError(t, err)
	require.Equal(t, 1, npurged)
	require.Equal(t, 1, nremain)

	_, ok, err := store.Get("crittime", rgm, vrn, inputs.Scenario{Path: "old.scn"})
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = store.Get("crittime", rgm, vrn, inputs.Scenario{Path: "recent.scn"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGCNoopWhenUnderLimit(t *testing.T) {
	store, err := Open("", 1_000_000, time.Minute)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, Put(store, "crittime", inputs.Regime{Path: "r1.rst"}, inputs.Variant{}, inputs.Scenario{Path: "s.scn"}, time.Now(), 0.1))

	npurged, nremain, err := store.GC(time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, npurged)
	require.Equal(t, -1, nremain)
}
