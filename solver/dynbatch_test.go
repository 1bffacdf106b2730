package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SavinovAleksandr/dss/config"
	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/simfacade"
)

func TestDynBatchRunnerBothModes(t *testing.T) {
	fake := simfacade.NewFake()
	calls := 0
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		calls++
		return simfacade.DynamicResult{Success: true, Stable: calls%2 == 1}, nil
	}

	settings := config.DynBatchSettings{NoPA: true, WithPA: true}
	pa := inputs.EmergencyAutomaticsFile{Path: "pa.scn"}
	runner, err := NewDynBatchRunner(fake, settings, pa, "", "", nil, nil, t.TempDir(), testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := runner.Run(context.Background(),
		[]inputs.Regime{{Path: "r1.rst"}},
		[]inputs.Variant{{ID: inputs.NormalVariantID}},
		[]inputs.Scenario{{Path: "s1.scn"}}, "")
	require.NoError(t, err)

	outcome := results[0].Variants[0].Scenarios[0].Value
	require.Equal(t, "s1.scn", outcome.ScenarioName)
	require.True(t, outcome.NoPA.Success)
	require.True(t, outcome.WithPA.Success)
	require.NotEqual(t, outcome.NoPA.Stable, outcome.WithPA.Stable)
}

func TestDynBatchRunnerSaveGrfRendersPlots(t *testing.T) {
	fake := simfacade.NewFake()
	fake.RunDynamicFn = func(ctx context.Context, ems bool, maxTime *float64) (simfacade.DynamicResult, error) {
		return simfacade.DynamicResult{Success: true, Stable: true}, nil
	}
	rendered := 0
	renderer := PlotRendererFunc(func(ctx context.Context, outPath string, group inputs.PlotVariableGroup, facade simfacade.Facade) error {
		rendered++
		return nil
	})

	settings := config.DynBatchSettings{NoPA: true, SaveGrf: true}
	plotVars := []inputs.PlotVariable{{ID: 1, Ordinal: 1, Name: "V1", Table: "node", Column: "vras", Selection: "ny=1"}}
	runner, err := NewDynBatchRunner(fake, settings, inputs.EmergencyAutomaticsFile{}, "", "", plotVars, renderer, t.TempDir(), testLogger(), nil, nil)
	require.NoError(t, err)

	results, err := runner.Run(context.Background(),
		[]inputs.Regime{{Path: "r1.rst"}},
		[]inputs.Variant{{ID: inputs.NormalVariantID}},
		[]inputs.Scenario{{Path: "s1.scn"}}, "")
	require.NoError(t, err)

	outcome := results[0].Variants[0].Scenarios[0].Value
	require.Len(t, outcome.NoPAPlots, 1)
	require.Equal(t, 1, rendered)
}

func TestNewDynBatchRunnerValidation(t *testing.T) {
	fake := simfacade.NewFake()
	_, err := NewDynBatchRunner(fake, config.DynBatchSettings{SaveGrf: true}, inputs.EmergencyAutomaticsFile{}, "", "", nil, nil, t.TempDir(), testLogger(), nil, nil)
	require.Error(t, err)

	_, err = NewDynBatchRunner(fake, config.DynBatchSettings{WithPA: true}, inputs.EmergencyAutomaticsFile{}, "", "", nil, nil, t.TempDir(), testLogger(), nil, nil)
	require.Error(t, err)

	_, err = NewDynBatchRunner(fake, config.DynBatchSettings{WithPA: true}, inputs.EmergencyAutomaticsFile{Path: "p.lpn", IsLPN: true}, "", "", nil, nil, t.TempDir(), testLogger(), nil, nil)
	require.Error(t, err)
}

// PlotRendererFunc adapts a plain function to the PlotRenderer interface,
// for tests that only need to count/record render calls.
type PlotRendererFunc func(ctx context.Context, outPath string, group inputs.PlotVariableGroup, facade simfacade.Facade) error

func (f PlotRendererFunc) RenderGroup(ctx context.Context, outPath string, group inputs.PlotVariableGroup, facade simfacade.Facade) error {
	return f(ctx, outPath, group, facade)
}
