// Package inputs holds the plain data types that describe one batch
// calculation's inputs: regimes, scenarios, variants, and the auxiliary
// files referenced by the solvers in package solver. Every type here is
// inert data — file parsing beyond ShuntTask (§6.1) and the YAML Bundle
// (LoadBundle) is delegated to simfacade.Facade, matching spec.md §6.1's "opaque binary formats owned
// by the simulator" rule.
package inputs

// Regime is a saved steady-state operating point of the grid (rgm/RG in
// the simulator's own vocabulary).
type Regime struct {
	Path string
}

// Scenario is a timed sequence of switching/fault events (scn).
type Scenario struct {
	Path string
}

// NormalVariantID is the sentinel id denoting "no repair-schema variant
// applied" (spec.md §3).
const NormalVariantID = -1

// Variant is one repair-schema overlay. The sentinel Normal variant has
// ID == NormalVariantID; like any other variant, ActiveVariants drops it
// when Disabled is set.
type Variant struct {
	ID       int
	Name     string
	Ordinal  int
	Disabled bool
}

// IsNormal reports whether v is the sentinel "no variant" entry.
func (v Variant) IsNormal() bool { return v.ID == NormalVariantID }

// ActiveVariants filters out disabled variants, preserving input order
// (spec.md §3 "input-order preservation").
func ActiveVariants(variants []Variant) []Variant {
	out := make([]Variant, 0, len(variants))
	for _, v := range variants {
		if !v.Disabled {
			out = append(out, v)
		}
	}
	return out
}

// RepairSchemaFile is the optional case file a Variant's ordinal is
// applied from.
type RepairSchemaFile string

// ContinuationFile is the "UT" trajectory descriptor consumed by the
// simulator's continuation ("utjazhelenie") engine.
type ContinuationFile string

// CrossSection is one monitored flow cross-section declaration.
type CrossSection struct {
	ID        int
	Ordinal   int
	Name      string
	Monitored bool
}

// EmergencyAutomaticsFile is the optional PA (emergency-control) file
// attached to a scenario. IsLPN selects the LAPNUSMZU synthesis path
// instead of a direct scenario-file load (SPEC_FULL.md §4.6).
type EmergencyAutomaticsFile struct {
	Path  string
	IsLPN bool
}

// PlotVariable is one monitored variable declaration rendered by the
// external plot collaborator (SPEC_FULL.md §4.7).
type PlotVariable struct {
	ID        int
	Ordinal   int
	Name      string
	Table     string
	Column    string
	Selection string
}

// GroupPlotVariablesByOrdinal groups variables into "graph groups" keyed
// by Ordinal, preserving each group's and the key order of first
// appearance, mirroring dyn_stability.py's _grf_groups.
func GroupPlotVariablesByOrdinal(vars []PlotVariable) []PlotVariableGroup {
	index := map[int]int{}
	var groups []PlotVariableGroup
	for _, v := range vars {
		i, ok := index[v.Ordinal]
		if !ok {
			i = len(groups)
			index[v.Ordinal] = i
			groups = append(groups, PlotVariableGroup{Ordinal: v.Ordinal})
		}
		groups[i].Variables = append(groups[i].Variables, v)
	}
	return groups
}

// PlotVariableGroup is one graph's worth of plot variables sharing an
// Ordinal.
type PlotVariableGroup struct {
	Ordinal   int
	Variables []PlotVariable
}
