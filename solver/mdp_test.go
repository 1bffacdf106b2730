package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SavinovAleksandr/dss/config"
	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/simfacade"
)

func newTestMDPSolver(t *testing.T, fake *simfacade.Fake, modes config.DynBatchSettings) *MDPSolver {
	t.Helper()
	solver, err := NewMDPSolver(
		fake,
		config.MDPSettings{SelectedSectionOrdinal: 1},
		config.PASettings{},
		t.TempDir()+"/mdp_tmp.rst",
		"crosssection.dat",
		inputs.ContinuationFile("ut.dat"),
		inputs.EmergencyAutomaticsFile{},
		nil, nil,
		testLogger(), nil, nil,
	)
	require.NoError(t, err)
	return solver
}

func TestMDPSolverFirstProbeStable(t *testing.T) {
	fake := simfacade.NewFake()
	fake.Cells["sechen.psech[ordinal=1]"] = 50.0
	fake.RunContinuationFn = func(ctx context.Context) (float64, error) { return 100.0, nil }
	fake.StepFn = func(ctx context.Context, coef float64, init bool) (float64, error) {
		fake.Cells["sechen.psech[ordinal=1]"] = 45.0
		return coef, nil
	}
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		return simfacade.DynamicResult{Success: true, Stable: true}, nil
	}

	solver := newTestMDPSolver(t, fake, config.DynBatchSettings{NoPA: true})
	results, err := solver.Run(context.Background(),
		[]inputs.Regime{{Path: "r1.rst"}},
		[]inputs.Variant{{ID: inputs.NormalVariantID}},
		[]inputs.Scenario{{Path: "s1.scn"}}, "", config.DynBatchSettings{NoPA: true})
	require.NoError(t, err)

	outcome := results[0].Variants[0].Scenarios[0].Value
	mdp, ok := outcome.NoPAMdp.Float()
	require.True(t, ok)
	require.Equal(t, 45.0, mdp)
}

func TestMDPSolverBisectsWhenUnstable(t *testing.T) {
	fake := simfacade.NewFake()
	fake.Cells["sechen.psech[ordinal=1]"] = 50.0
	fake.RunContinuationFn = func(ctx context.Context) (float64, error) { return 100.0, nil }
	fake.StepFn = func(ctx context.Context, coef float64, init bool) (float64, error) {
		fake.Cells["sechen.psech[ordinal=1]"] = 45.0
		return coef, nil
	}

	const trueK = -50.0
	var lastCoef float64
	realStep := fake.StepFn
	fake.StepFn = func(ctx context.Context, coef float64, init bool) (float64, error) {
		lastCoef = coef
		return realStep(ctx, coef, init)
	}
	callNum := 0
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		callNum++
		if callNum == 1 {
			return simfacade.DynamicResult{Success: true, Stable: false}, nil
		}
		return simfacade.DynamicResult{Success: true, Stable: lastCoef <= trueK}, nil
	}

	solver := newTestMDPSolver(t, fake, config.DynBatchSettings{NoPA: true})
	results, err := solver.Run(context.Background(),
		[]inputs.Regime{{Path: "r1.rst"}},
		[]inputs.Variant{{ID: inputs.NormalVariantID}},
		[]inputs.Scenario{{Path: "s1.scn"}}, "", config.DynBatchSettings{NoPA: true})
	require.NoError(t, err)

	outcome := results[0].Variants[0].Scenarios[0].Value
	require.True(t, outcome.NoPAMdp.IsKnown())
	require.Greater(t, callNum, 1, "bisection should have probed more than once")
	require.False(t, math.IsNaN(outcome.NoPAMdp.MustFloat()))
}

func TestNewMDPSolverValidation(t *testing.T) {
	fake := simfacade.NewFake()
	_, err := NewMDPSolver(fake, config.MDPSettings{}, config.PASettings{}, "tmp.rst", "", "", inputs.EmergencyAutomaticsFile{}, nil, nil, testLogger(), nil, nil)
	require.Error(t, err)
}
