package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/simfacade"
)

func TestUOstSolverSkipsOnShortLineKey(t *testing.T) {
	fake := simfacade.NewFake()
	fake.CellStr["DFWAutoActionScn.ObjectClass[#0]"] = "vetv"
	fake.CellStr["DFWAutoActionScn.ObjectKey[#0]"] = "1,2"
	fake.SelectionFn = func(ctx context.Context, table, predicate string) ([]int, error) {
		return []int{0}, nil
	}

	solver, err := NewUOstSolver(fake, nil, testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := solver.Run(context.Background(),
		[]inputs.Regime{{Path: "r1.rst"}},
		[]inputs.Variant{{ID: inputs.NormalVariantID}},
		[]inputs.Scenario{{Path: "fault1.scn"}}, "")
	require.NoError(t, err)
	require.Empty(t, results[0].Variants[0].Scenarios)
}

func TestUOstSolverNoBoundaryWhenBothProbesAgree(t *testing.T) {
	fake := simfacade.NewFake()
	fake.CellStr["DFWAutoActionScn.ObjectClass[#0]"] = "vetv"
	fake.CellStr["DFWAutoActionScn.ObjectKey[#0]"] = "1,2,1"
	fake.CellStr["DFWAutoActionScn.ObjectClass[#1]"] = "node"
	fake.CellStr["DFWAutoActionScn.ObjectKey[#1]"] = "1"
	fake.CellStr["DFWAutoActionScn.ObjectProp[#1]"] = "x"
	fake.CellStr["DFWAutoActionScn.Formula[#1]"] = "5,0"
	fake.Cells["DFWAutoActionScn.TimeStart[#1]"] = 0.5
	fake.Cells["node.uhom[ny=1]"] = 115.0
	fake.Cells["vetv.r[ip=1 & iq=2 & np=1]"] = 0.01
	fake.Cells["vetv.x[ip=1 & iq=2 & np=1]"] = 0.05
	fake.Cells["vetv.b[ip=1 & iq=2 & np=1]"] = 0.001
	fake.Points["node.vras[ny=1]"] = []simfacade.Point{{X: 0.5, Y: 80.0}}
	fake.Points["node.vras[ny=2]"] = []simfacade.Point{{X: 0.5, Y: 75.0}}
	fake.SelectionFn = func(ctx context.Context, table, predicate string) ([]int, error) {
		return []int{0, 1}, nil
	}
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		return simfacade.DynamicResult{Success: true, Stable: true}, nil
	}

	solver, err := NewUOstSolver(fake, nil, testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := solver.Run(context.Background(),
		[]inputs.Regime{{Path: "r1.rst"}},
		[]inputs.Variant{{ID: inputs.NormalVariantID}},
		[]inputs.Scenario{{Path: "fault1.scn"}}, "")
	require.NoError(t, err)

	scenarios := results[0].Variants[0].Scenarios
	require.Len(t, scenarios, 1)
	outcome := scenarios[0].Value
	require.Equal(t, "fault1", outcome.ScenarioName)
	require.Equal(t, 1, outcome.BeginNode)
	require.Equal(t, 2, outcome.EndNode)
	require.Equal(t, 1, outcome.NP)
	require.False(t, outcome.Distance.IsKnown())
	require.Equal(t, ReasonNoBoundary, outcome.Distance.Reason())

	beginUost, ok := outcome.BeginUost.Float()
	require.True(t, ok)
	require.Equal(t, 80.0, beginUost)
	endUost, ok := outcome.EndUost.Float()
	require.True(t, ok)
	require.Equal(t, 75.0, endUost)
}

func TestUOstSolverUnbalancedVariantSkipsScenario(t *testing.T) {
	fake := simfacade.NewFake()
	fake.ApplyVariantFn = func(ctx context.Context, ordinal int, repairFile string) (bool, error) {
		return false, nil
	}
	solver, err := NewUOstSolver(fake, nil, testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := solver.Run(context.Background(),
		[]inputs.Regime{{Path: "r1.rst"}},
		[]inputs.Variant{{ID: 1, Ordinal: 1}},
		[]inputs.Scenario{{Path: "fault1.scn"}}, "repair.rst")
	require.NoError(t, err)
	require.False(t, results[0].Variants[0].IsStable)
	require.Empty(t, results[0].Variants[0].Scenarios)
}
