package solver

import "github.com/SavinovAleksandr/dss/inputs"

// ScenarioResult is one (regime, variant, scenario) outcome. Value's
// concrete T varies per solver: Value for CritTimeSolver, []ShuntOutcome
// for ShuntSolver, a struct for MDPSolver/UOstSolver, a verdict struct for
// DynBatchRunner.
type ScenarioResult[T any] struct {
	Scenario  inputs.Scenario
	Value     T
	Cancelled bool
}

// VariantResult groups every scenario outcome for one (regime, variant)
// pair. IsStable mirrors the per-variant balance check (spec.md §7 item
// 2): for CritTimeSolver, ShuntSolver and DynBatchRunner, false means
// Scenarios is empty and every downstream scenario for this variant was
// skipped. MDPSolver always sets it true, and UOstSolver sets it from the
// last scenario's balance check (see their Run methods).
type VariantResult[T any] struct {
	Variant   inputs.Variant
	IsStable  bool
	Scenarios []ScenarioResult[T]
}

// RegimeResult groups every variant outcome for one regime.
type RegimeResult[T any] struct {
	Regime   inputs.Regime
	Variants []VariantResult[T]
}

// Results is the full nested result tree for one calculation run
// (ResultAggregator, component C8). It is built by pure reduction over
// the regime/variant/scenario loops — each level's slice is assembled
// fresh and appended to the level above, never mutated in place through a
// pre-sized index — per the REDESIGN FLAGS in spec.md §9.
type Results[T any] []RegimeResult[T]

// Len returns the number of (regime, variant, scenario) leaves actually
// present, for the Testable Properties §8 invariant
// "Result list length = |regimes| x |active variants| x |scenarios| for
// modes that complete".
func (r Results[T]) Len() int {
	n := 0
	for _, rg := range r {
		for _, v := range rg.Variants {
			n += len(v.Scenarios)
		}
	}
	return n
}

// buildVariantResult runs scenarioFn for every scenario under one
// (regime, variant) pair and folds the outcomes into a VariantResult.
// scenarioFn returns (value, cancelled); the caller is responsible for
// checking ctx cancellation per-scenario and short-circuiting the
// remaining scenarios if it chooses to (SPEC_FULL.md §5).
func buildVariantResult[T any](
	variant inputs.Variant,
	scenarios []inputs.Scenario,
	isStable bool,
	scenarioFn func(inputs.Scenario) (T, bool),
) VariantResult[T] {
	vr := VariantResult[T]{Variant: variant, IsStable: isStable}
	if !isStable {
		return vr
	}
	vr.Scenarios = make([]ScenarioResult[T], 0, len(scenarios))
	for _, scn := range scenarios {
		val, cancelled := scenarioFn(scn)
		vr.Scenarios = append(vr.Scenarios, ScenarioResult[T]{Scenario: scn, Value: val, Cancelled: cancelled})
		if cancelled {
			break
		}
	}
	return vr
}
