package solver

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SavinovAleksandr/dss/casebuilder"
	"github.com/SavinovAleksandr/dss/config"
	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/simfacade"
	"github.com/SavinovAleksandr/dss/telemetry"
)

// testLogger returns a Logger that discards output, for tests that only
// care about the value a solver returns, not what it logs.
func testLogger() telemetry.Logger {
	return telemetry.New(config.LoggingSettings{Level: "error", Format: "json"}, io.Discard)
}

func newTestShuntBuilder(t *testing.T, fake *simfacade.Fake) *casebuilder.Builder {
	t.Helper()
	return casebuilder.New(fake, t.TempDir())
}

func TestShuntSolverConvergesOnFirstReading(t *testing.T) {
	fake := simfacade.NewFake()
	fake.Cells["node.uhom[ny=10]"] = 115.0
	fake.Cells["node.vras[ny=10]"] = 112.0
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		fake.Emit(simfacade.LogEvent{Description: "Uкз=58.3 кВ"})
		return simfacade.DynamicResult{Success: true, Stable: true}, nil
	}

	tasks := []inputs.ShuntTask{{Bus: 10, R1: inputs.Unspecified, X1: 5.0, U1: 58.3, R2: inputs.Unspecified, X2: 5.0, U2: 58.3}}
	settings := config.ShuntSettings{CalcOnePhase: true, CalcTwoPhase: false}
	solver, err := NewShuntSolver(fake, newTestShuntBuilder(t, fake), settings, tasks, testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := solver.Run(context.Background(), []inputs.Regime{{Path: "r1.rst"}}, []inputs.Variant{{ID: inputs.NormalVariantID}}, "")
	require.NoError(t, err)
	require.Equal(t, 1, results.Len())

	outcomes := results[0].Variants[0].Scenarios[0].Value
	require.Len(t, outcomes, 1)
	require.Equal(t, 10, outcomes[0].Bus)
	uObs, ok := outcomes[0].UObs.Float()
	require.True(t, ok)
	require.InDelta(t, 58.3, uObs, 1e-9)
}

func TestShuntSolverRefinesAcrossIterations(t *testing.T) {
	fake := simfacade.NewFake()
	fake.Cells["node.uhom[ny=20]"] = 110.0
	fake.Cells["node.vras[ny=20]"] = 108.0
	readings := []string{"Uкз=40,0 кВ", "Uкз=50,0 кВ"}
	call := 0
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		idx := call
		if idx >= len(readings) {
			idx = len(readings) - 1
		}
		fake.Emit(simfacade.LogEvent{Description: readings[idx]})
		call++
		return simfacade.DynamicResult{Success: true, Stable: true}, nil
	}

	tasks := []inputs.ShuntTask{{Bus: 20, R1: inputs.Unspecified, X1: 3.0, U1: 50.0, R2: inputs.Unspecified, X2: inputs.Unspecified, U2: inputs.Unspecified}}
	settings := config.ShuntSettings{CalcOnePhase: true, CalcTwoPhase: false}
	solver, err := NewShuntSolver(fake, newTestShuntBuilder(t, fake), settings, tasks, testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := solver.Run(context.Background(), []inputs.Regime{{Path: "r1.rst"}}, []inputs.Variant{{ID: inputs.NormalVariantID}}, "")
	require.NoError(t, err)

	uObs, ok := results[0].Variants[0].Scenarios[0].Value[0].UObs.Float()
	require.True(t, ok)
	require.InDelta(t, 50.0, uObs, 1e-9)
	require.GreaterOrEqual(t, call, 2)
}

func TestShuntSolverUnparseableLineStopsWithLastReading(t *testing.T) {
	fake := simfacade.NewFake()
	fake.Cells["node.uhom[ny=30]"] = 110.0
	fake.Cells["node.vras[ny=30]"] = 108.0
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		return simfacade.DynamicResult{Success: true, Stable: true}, nil
	}

	tasks := []inputs.ShuntTask{{Bus: 30, R1: inputs.Unspecified, X1: 3.0, U1: 50.0, R2: inputs.Unspecified, X2: inputs.Unspecified, U2: inputs.Unspecified}}
	settings := config.ShuntSettings{CalcOnePhase: true, CalcTwoPhase: false}
	solver, err := NewShuntSolver(fake, newTestShuntBuilder(t, fake), settings, tasks, testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := solver.Run(context.Background(), []inputs.Regime{{Path: "r1.rst"}}, []inputs.Variant{{ID: inputs.NormalVariantID}}, "")
	require.NoError(t, err)

	outcome := results[0].Variants[0].Scenarios[0].Value[0]
	require.False(t, outcome.UObs.IsKnown())
	require.Equal(t, -1.0, outcome.UObs.OrSentinel())
}

func TestShuntSolverUnbalancedVariantSkipsBuses(t *testing.T) {
	fake := simfacade.NewFake()
	fake.ApplyVariantFn = func(ctx context.Context, ordinal int, repairFile string) (bool, error) {
		return false, nil
	}
	tasks := []inputs.ShuntTask{{Bus: 1, U1: 10, U2: 10}}
	settings := config.ShuntSettings{CalcOnePhase: true}
	solver, err := NewShuntSolver(fake, newTestShuntBuilder(t, fake), settings, tasks, testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := solver.Run(context.Background(), []inputs.Regime{{Path: "r1.rst"}}, []inputs.Variant{{ID: 1, Ordinal: 1}}, "repair.rst")
	require.NoError(t, err)
	require.False(t, results[0].Variants[0].IsStable)
	require.Empty(t, results[0].Variants[0].Scenarios)
}

func TestNewShuntSolverValidation(t *testing.T) {
	fake := simfacade.NewFake()
	_, err := NewShuntSolver(fake, newTestShuntBuilder(t, fake), config.ShuntSettings{}, nil, testLogger(), nil, nil)
	require.Error(t, err)
}

// TestShuntSolverSkipsPhaseWithNoTargetAndUseTypeValUOff mirrors
// shunt_kz.py's calc(): a row with neither U1 nor UseTypeValU gives the
// solver no target voltage to chase, so the phase is skipped entirely
// rather than burning the iteration budget against an unreachable -1 kV.
func TestShuntSolverSkipsPhaseWithNoTargetAndUseTypeValUOff(t *testing.T) {
	fake := simfacade.NewFake()
	fake.Cells["node.uhom[ny=40]"] = 115.0
	fake.Cells["node.vras[ny=40]"] = 112.0
	calls := 0
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		calls++
		return simfacade.DynamicResult{Success: true, Stable: true}, nil
	}

	tasks := []inputs.ShuntTask{{Bus: 40, R1: inputs.Unspecified, X1: inputs.Unspecified, U1: inputs.Unspecified, R2: inputs.Unspecified, X2: inputs.Unspecified, U2: inputs.Unspecified}}
	settings := config.ShuntSettings{CalcOnePhase: true, CalcTwoPhase: false, UseTypeValU: false}
	solver, err := NewShuntSolver(fake, newTestShuntBuilder(t, fake), settings, tasks, testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := solver.Run(context.Background(), []inputs.Regime{{Path: "r1.rst"}}, []inputs.Variant{{ID: inputs.NormalVariantID}}, "")
	require.NoError(t, err)
	require.Equal(t, 0, calls)
	require.Empty(t, results[0].Variants[0].Scenarios[0].Value)
}

// TestShuntSolverReseedsCanonicalAngleWhenXUnspecified matches
// shunt_kz.py's calc(): when X1 is unspecified but U1 is given, the
// solver reseeds with the canonical angle and reports a real R, not the
// unspecified sentinel.
func TestShuntSolverReseedsCanonicalAngleWhenXUnspecified(t *testing.T) {
	fake := simfacade.NewFake()
	fake.Cells["node.uhom[ny=41]"] = 115.0
	fake.Cells["node.vras[ny=41]"] = 112.0
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		fake.Emit(simfacade.LogEvent{Description: "Uкз=58.3 кВ"})
		return simfacade.DynamicResult{Success: true, Stable: true}, nil
	}

	tasks := []inputs.ShuntTask{{Bus: 41, R1: inputs.Unspecified, X1: inputs.Unspecified, U1: 58.3, R2: inputs.Unspecified, X2: inputs.Unspecified, U2: inputs.Unspecified}}
	settings := config.ShuntSettings{CalcOnePhase: true, CalcTwoPhase: false}
	solver, err := NewShuntSolver(fake, newTestShuntBuilder(t, fake), settings, tasks, testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := solver.Run(context.Background(), []inputs.Regime{{Path: "r1.rst"}}, []inputs.Variant{{ID: inputs.NormalVariantID}}, "")
	require.NoError(t, err)

	outcome := results[0].Variants[0].Scenarios[0].Value[0]
	require.True(t, outcome.R.IsKnown())
}

// TestShuntSolverBulkModeTargetsPreFaultVoltage matches shunt_kz.py's
// use_sel_nodes branch: the 0.66·U_pre default target is derived from
// vras (pre-fault voltage), never uhom (nominal voltage).
func TestShuntSolverBulkModeTargetsPreFaultVoltage(t *testing.T) {
	fake := simfacade.NewFake()
	fake.SelectionFn = func(ctx context.Context, table, predicate string) ([]int, error) {
		return []int{50}, nil
	}
	fake.Cells["node.uhom[ny=50]"] = 200.0
	fake.Cells["node.vras[ny=50]"] = 100.0
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		fake.Emit(simfacade.LogEvent{Description: "Uкз=66,0 кВ"})
		return simfacade.DynamicResult{Success: true, Stable: true}, nil
	}

	settings := config.ShuntSettings{UseSelNodes: true, CalcOnePhase: true, CalcTwoPhase: false}
	solver, err := NewShuntSolver(fake, newTestShuntBuilder(t, fake), settings, nil, testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := solver.Run(context.Background(), []inputs.Regime{{Path: "r1.rst"}}, []inputs.Variant{{ID: inputs.NormalVariantID}}, "")
	require.NoError(t, err)

	outcome := results[0].Variants[0].Scenarios[0].Value[0]
	uObs, ok := outcome.UObs.Float()
	require.True(t, ok)
	require.InDelta(t, 66.0, uObs, 1e-9)
}
