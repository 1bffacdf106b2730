package solver

import (
	"context"
	"fmt"

	"github.com/SavinovAleksandr/dss/config"
	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/metrics"
	"github.com/SavinovAleksandr/dss/progress"
	"github.com/SavinovAleksandr/dss/simfacade"
	"github.com/SavinovAleksandr/dss/telemetry"
)

// PlotRenderer is the external plot-rendering collaborator (Non-goal per
// spec.md §1: "Plotly/matplotlib plot rendering" is out of scope). A
// no-op NoopPlotRenderer is used in this module; production wires a real
// implementation.
type PlotRenderer interface {
	RenderGroup(ctx context.Context, outPath string, group inputs.PlotVariableGroup, facade simfacade.Facade) error
}

// NoopPlotRenderer discards every render request; it exists so
// DynBatchRunner can be exercised and tested without an image/HTML
// encoding dependency.
type NoopPlotRenderer struct{}

func (NoopPlotRenderer) RenderGroup(context.Context, string, inputs.PlotVariableGroup, simfacade.Facade) error {
	return nil
}

// DynEventOutcome is one scenario's pass/fail verdict in both modes
// (component C5, spec.md §4.3).
type DynEventOutcome struct {
	ScenarioName string
	NoPA         simfacade.DynamicResult
	WithPA       simfacade.DynamicResult
	NoPAPlots    []string
	WithPAPlots  []string
}

// DynBatchRunner runs a dynamic verdict for every (regime, variant,
// scenario), per spec.md §4.3.
type DynBatchRunner struct {
	facade   simfacade.Facade
	settings config.DynBatchSettings
	paFile   inputs.EmergencyAutomaticsFile
	lpnSuffix string
	crossSectionPath string
	plotGroups []inputs.PlotVariableGroup
	renderer PlotRenderer
	resultsDir string
	logger   telemetry.Logger
	metrics  *metrics.Registry
	progress *progress.Tracker
}

// NewDynBatchRunner validates inputs, mirroring
// dyn_stability.py's DynStabilityCalc.__init__ guard: save_grf requires
// plot variables, with-PA requires a PA file, and LPN mode requires a
// cross-section file.
func NewDynBatchRunner(
	facade simfacade.Facade,
	settings config.DynBatchSettings,
	paFile inputs.EmergencyAutomaticsFile,
	lpnSuffix string,
	crossSectionPath string,
	plotVars []inputs.PlotVariable,
	renderer PlotRenderer,
	resultsDir string,
	logger telemetry.Logger,
	reg *metrics.Registry,
	tracker *progress.Tracker,
) (*DynBatchRunner, error) {
	var missing []string
	if settings.SaveGrf && len(plotVars) == 0 {
		missing = append(missing, "plot-variable set (required because save_grf is enabled)")
	}
	if settings.WithPA && paFile.Path == "" {
		missing = append(missing, "emergency-automatics file (required because with_pa is enabled)")
	}
	if paFile.IsLPN && crossSectionPath == "" {
		missing = append(missing, "cross-section file (required because the PA file is in LPN format)")
	}
	if err := newValidationError(missing...); err != nil {
		return nil, err
	}
	if renderer == nil {
		renderer = NoopPlotRenderer{}
	}
	if tracker == nil {
		tracker = progress.NewTracker(progress.Noop, 1)
	}
	return &DynBatchRunner{
		facade: facade, settings: settings, paFile: paFile,
		lpnSuffix: lpnSuffix, crossSectionPath: crossSectionPath,
		plotGroups: inputs.GroupPlotVariablesByOrdinal(plotVars), renderer: renderer,
		resultsDir: resultsDir, logger: logger, metrics: reg, progress: tracker,
	}, nil
}

// Run executes DynBatchRunner over every (regime, variant, scenario)
// combination.
func (r *DynBatchRunner) Run(ctx context.Context, regimes []inputs.Regime, variants []inputs.Variant, scenarios []inputs.Scenario, repairFile inputs.RepairSchemaFile) (Results[DynEventOutcome], error) {
	active := inputs.ActiveVariants(variants)
	var results Results[DynEventOutcome]

	for rgmIdx, rgm := range regimes {
		var variantResults []VariantResult[DynEventOutcome]
		for vrnIdx, vrn := range active {
			if ctx.Err() != nil {
				break
			}
			if err := r.facade.Load(ctx, rgm.Path); err != nil {
				return nil, fmt.Errorf("solver: loading regime %q: %w", rgm.Path, err)
			}
			if err := r.facade.ConfigureDynamics(ctx); err != nil {
				return nil, fmt.Errorf("solver: configuring dynamics: %w", err)
			}

			var balanced bool
			var err error
			if vrn.IsNormal() {
				balanced, err = r.facade.RunSteadyState(ctx)
			} else {
				balanced, err = r.facade.ApplyVariant(ctx, vrn.Ordinal, string(repairFile))
			}
			if err != nil {
				r.logger.SimOpFailed("ApplyVariant", err)
				balanced = false
			}
			if !balanced {
				r.logger.SchemeUnbalanced(vrn.Name)
				variantResults = append(variantResults, VariantResult[DynEventOutcome]{Variant: vrn, IsStable: false})
				continue
			}

			scnIdx := -1
			vr := buildVariantResult(vrn, scenarios, true, func(scn inputs.Scenario) (DynEventOutcome, bool) {
				scnIdx++
				if ctx.Err() != nil {
					return DynEventOutcome{ScenarioName: scn.Path}, true
				}
				outcome, err := r.runScenario(ctx, rgmIdx, vrnIdx, scnIdx, scn)
				if err != nil {
					r.logger.SimOpFailed("runScenario", err)
				}
				r.progress.Advance(1)
				return outcome, false
			})
			variantResults = append(variantResults, vr)
		}
		results = append(results, RegimeResult[DynEventOutcome]{Regime: rgm, Variants: variantResults})
	}
	return results, nil
}

func (r *DynBatchRunner) runScenario(ctx context.Context, rgmIdx, vrnIdx, scnIdx int, scn inputs.Scenario) (DynEventOutcome, error) {
	outcome := DynEventOutcome{ScenarioName: scn.Path}

	if r.settings.NoPA {
		if err := r.facade.Load(ctx, scn.Path); err != nil {
			return outcome, fmt.Errorf("solver: loading scenario %q: %w", scn.Path, err)
		}
		result, plots, err := r.runOneMode(ctx, rgmIdx, vrnIdx, scnIdx, "без ПА")
		if err != nil {
			return outcome, err
		}
		outcome.NoPA = result
		outcome.NoPAPlots = plots
	}

	if r.settings.WithPA {
		if r.paFile.IsLPN {
			if err := r.facade.Load(ctx, r.crossSectionPath); err != nil {
				return outcome, fmt.Errorf("solver: loading cross-section file: %w", err)
			}
			if err := r.facade.SynthesizeFromLPN(ctx, r.paFile.Path, r.lpnSuffix, scn.Path); err != nil {
				return outcome, fmt.Errorf("solver: synthesizing PA scenario from LPN: %w", err)
			}
		} else {
			if err := r.facade.Load(ctx, scn.Path); err != nil {
				return outcome, fmt.Errorf("solver: loading scenario %q: %w", scn.Path, err)
			}
			if err := r.facade.Load(ctx, r.paFile.Path); err != nil {
				return outcome, fmt.Errorf("solver: loading PA file %q: %w", r.paFile.Path, err)
			}
		}
		result, plots, err := r.runOneMode(ctx, rgmIdx, vrnIdx, scnIdx, "с ПА")
		if err != nil {
			return outcome, err
		}
		outcome.WithPA = result
		outcome.WithPAPlots = plots
	}

	return outcome, nil
}

func (r *DynBatchRunner) runOneMode(ctx context.Context, rgmIdx, vrnIdx, scnIdx int, modeLabel string) (simfacade.DynamicResult, []string, error) {
	if !r.settings.SaveGrf {
		result, err := r.facade.RunDynamic(ctx, true, nil)
		return result, nil, err
	}

	result, err := r.facade.RunDynamic(ctx, false, nil)
	if err != nil {
		return result, nil, err
	}

	var paths []string
	for _, group := range r.plotGroups {
		path := fmt.Sprintf("%s/Рисунок - %d.%d.%d.%d(%s).png", r.resultsDir, rgmIdx+1, vrnIdx+1, scnIdx+1, group.Ordinal, modeLabel)
		if err := r.renderer.RenderGroup(ctx, path, group, r.facade); err != nil {
			r.logger.SimOpFailed("RenderGroup", err)
			continue
		}
		paths = append(paths, path)
	}
	if r.metrics != nil {
		r.metrics.Iterations.WithLabelValues("dynbatch").Inc()
	}
	return result, paths, nil
}
