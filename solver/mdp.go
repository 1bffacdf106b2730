package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/SavinovAleksandr/dss/config"
	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/metrics"
	"github.com/SavinovAleksandr/dss/progress"
	"github.com/SavinovAleksandr/dss/simfacade"
	"github.com/SavinovAleksandr/dss/telemetry"
)

// maxMDPCalibrationIterations bounds the Phase A step-calibration
// fixed-point loop (spec.md §4.4 Phase A step 4).
const maxMDPCalibrationIterations = 50

// maxMDPIterations bounds the Phase B bisection loop (spec.md §4.4 Phase
// B step 3).
const maxMDPIterations = 100

// mdpStagnationWindow/mdpStagnationEps implement "the midpoint is
// unchanged within 10^-3 for 10 consecutive iterations" (spec.md §4.4
// Phase B step 3d).
const mdpStagnationWindow = 10
const mdpStagnationEps = 0.001

// sechenTable/psechColumn are the simulator table/column names for
// cross-section flow, per mdp_stability.py's
// get_val("sechen", "psech", ...).
const sechenTable = "sechen"
const psechColumn = "psech"

// MonitoredValue is one reported cross-section flow or plot-variable
// reading, collected post-probe even on failure paths (spec.md §4.4 step
// 5).
type MonitoredValue struct {
	ID    int
	Name  string
	Value float64
}

// MDPOutcome is one scenario's MDP result in both modes (component C6).
type MDPOutcome struct {
	NoPASechen   []MonitoredValue
	NoPAKpr      []MonitoredValue
	NoPAMdp      Value
	WithPASechen []MonitoredValue
	WithPAKpr    []MonitoredValue
	WithPAMdp    Value
}

// mdpVariantState mirrors mdp_stability.py's per-vrn mdp_shem fields that
// persist across the scenario loop: the baseline is established and
// calibrated once, on the first scenario, then reused.
type mdpVariantState struct {
	ready    bool
	isStable bool
	pStart   float64
	maxStep  float64
	pPred    float64
}

// MDPSolver finds the maximum admissible cross-section flow for which a
// scenario remains dynamically stable, per spec.md §4.4.
type MDPSolver struct {
	facade  simfacade.Facade
	settings config.MDPSettings
	pa      config.PASettings

	tmpFile          string
	crossSectionPath string
	continuationFile inputs.ContinuationFile
	paFile           inputs.EmergencyAutomaticsFile
	crossSections    []inputs.CrossSection
	plotVars         []inputs.PlotVariable
	selectedSelector simfacade.Selector

	logger   telemetry.Logger
	metrics  *metrics.Registry
	progress *progress.Tracker
}

// NewMDPSolver validates inputs, mirroring
// mdp_stability.py's MdpStabilityCalc.__init__ guard.
func NewMDPSolver(
	facade simfacade.Facade,
	settings config.MDPSettings,
	pa config.PASettings,
	tmpFile, crossSectionPath string,
	continuationFile inputs.ContinuationFile,
	paFile inputs.EmergencyAutomaticsFile,
	crossSections []inputs.CrossSection,
	plotVars []inputs.PlotVariable,
	logger telemetry.Logger,
	reg *metrics.Registry,
	tracker *progress.Tracker,
) (*MDPSolver, error) {
	var missing []string
	if continuationFile == "" {
		missing = append(missing, "continuation (UT) file")
	}
	if crossSectionPath == "" {
		missing = append(missing, "cross-section file")
	}
	if err := newValidationError(missing...); err != nil {
		return nil, err
	}
	if tracker == nil {
		tracker = progress.NewTracker(progress.Noop, 1)
	}
	return &MDPSolver{
		facade: facade, settings: settings, pa: pa, tmpFile: tmpFile,
		crossSectionPath: crossSectionPath, continuationFile: continuationFile, paFile: paFile,
		crossSections: crossSections, plotVars: plotVars,
		selectedSelector: simfacade.Predicate(fmt.Sprintf("ordinal=%d", settings.SelectedSectionOrdinal)),
		logger:           logger, metrics: reg, progress: tracker,
	}, nil
}

// Run executes MDPSolver over every (regime, variant, scenario)
// combination and both modes (no-PA / with-PA), per config.DynBatchSettings.
func (s *MDPSolver) Run(ctx context.Context, regimes []inputs.Regime, variants []inputs.Variant, scenarios []inputs.Scenario, repairFile inputs.RepairSchemaFile, modes config.DynBatchSettings) (Results[MDPOutcome], error) {
	active := inputs.ActiveVariants(variants)
	var results Results[MDPOutcome]

	for _, rgm := range regimes {
		var variantResults []VariantResult[MDPOutcome]
		for _, vrn := range active {
			if ctx.Err() != nil {
				break
			}
			state := &mdpVariantState{}
			vr := buildVariantResult(vrn, scenarios, true, func(scn inputs.Scenario) (MDPOutcome, bool) {
				if ctx.Err() != nil {
					return MDPOutcome{}, true
				}
				if !state.ready {
					if err := s.establishAndCalibrate(ctx, rgm, vrn, repairFile, state); err != nil {
						s.logger.SimOpFailed("establishAndCalibrate", err)
						state.isStable = false
					}
					state.ready = true
				}
				if !state.isStable {
					s.logger.SchemeUnbalanced(vrn.Name)
					return MDPOutcome{}, false
				}

				outcome, err := s.runScenario(ctx, state, scn, modes)
				if err != nil {
					s.logger.SimOpFailed("runScenario", err)
				}
				s.progress.Advance(1)
				return outcome, false
			})
			// buildVariantResult's isStable is always true here (the
			// per-scenario is_stable gate lives inside mdpVariantState,
			// matching mdp_stability.py's single pass through the
			// scenario loop that breaks internally rather than skipping
			// the VariantResult wholesale).
			variantResults = append(variantResults, vr)
		}
		results = append(results, RegimeResult[MDPOutcome]{Regime: rgm, Variants: variantResults})
	}
	return results, nil
}

func (s *MDPSolver) establishAndCalibrate(ctx context.Context, rgm inputs.Regime, vrn inputs.Variant, repairFile inputs.RepairSchemaFile, state *mdpVariantState) error {
	if err := s.facade.Load(ctx, rgm.Path); err != nil {
		return fmt.Errorf("solver: loading regime %q: %w", rgm.Path, err)
	}
	if err := s.facade.ConfigureDynamics(ctx); err != nil {
		return fmt.Errorf("solver: configuring dynamics: %w", err)
	}

	var balanced bool
	var err error
	if vrn.IsNormal() {
		balanced, err = s.facade.RunSteadyState(ctx)
	} else {
		balanced, err = s.facade.ApplyVariant(ctx, vrn.Ordinal, string(repairFile))
	}
	if err != nil {
		return fmt.Errorf("solver: applying variant: %w", err)
	}
	if err := s.facade.Save(ctx, s.tmpFile); err != nil {
		return fmt.Errorf("solver: saving baseline: %w", err)
	}
	state.isStable = balanced
	if !balanced {
		return nil
	}

	if err := s.facade.Load(ctx, s.tmpFile); err != nil {
		return err
	}
	if err := s.facade.Add(ctx, s.crossSectionPath); err != nil {
		return fmt.Errorf("solver: adding cross-section file: %w", err)
	}
	if err := s.facade.Add(ctx, string(s.continuationFile)); err != nil {
		return fmt.Errorf("solver: adding continuation file: %w", err)
	}

	state.pStart, err = s.flow(ctx)
	if err != nil {
		return err
	}
	state.maxStep, err = s.facade.RunContinuation(ctx)
	if err != nil {
		return fmt.Errorf("solver: running continuation engine: %w", err)
	}
	state.pPred, err = s.flow(ctx)
	if err != nil {
		return err
	}

	// Step calibration (spec.md §4.4 Phase A step 4).
	if err := s.facade.Load(ctx, s.tmpFile); err != nil {
		return err
	}
	if err := s.facade.Add(ctx, string(s.continuationFile)); err != nil {
		return err
	}
	state.maxStep, err = s.facade.Step(ctx, state.maxStep*0.9, true)
	if err != nil {
		return fmt.Errorf("solver: initial calibration step: %w", err)
	}
	pCurrent, err := s.flow(ctx)
	if err != nil {
		return err
	}

	iteration := 0
	for math.Abs(pCurrent-state.pPred*0.9) > 2.0 && iteration < maxMDPCalibrationIterations {
		if err := s.facade.Load(ctx, s.tmpFile); err != nil {
			return err
		}
		if err := s.facade.Add(ctx, string(s.continuationFile)); err != nil {
			return err
		}
		state.maxStep, err = s.facade.Step(ctx, state.maxStep*state.pPred*0.9/pCurrent, false)
		if err != nil {
			return fmt.Errorf("solver: calibration step: %w", err)
		}
		pCurrent, err = s.flow(ctx)
		if err != nil {
			return err
		}
		iteration++
		if s.metrics != nil {
			s.metrics.Iterations.WithLabelValues("mdp_calibration").Inc()
		}
	}
	if iteration >= maxMDPCalibrationIterations {
		s.logger.BudgetExhausted("mdp_calibration", iteration)
		if s.metrics != nil {
			s.metrics.BudgetExhausted.WithLabelValues("mdp_calibration").Inc()
		}
	}

	return s.facade.Save(ctx, s.tmpFile)
}

func (s *MDPSolver) flow(ctx context.Context) (float64, error) {
	v, err := s.facade.GetValF64(ctx, sechenTable, psechColumn, s.selectedSelector)
	if err != nil {
		return 0, fmt.Errorf("solver: reading cross-section flow: %w", err)
	}
	return v, nil
}

func (s *MDPSolver) runScenario(ctx context.Context, state *mdpVariantState, scn inputs.Scenario, modes config.DynBatchSettings) (MDPOutcome, error) {
	precision := math.Max(2.0, math.Min(10.0, math.Floor(state.pPred*0.02)))
	var outcome MDPOutcome

	if modes.NoPA {
		mdp, sechen, kpr, err := s.runMode(ctx, state, scn, precision, false)
		if err != nil {
			return outcome, err
		}
		outcome.NoPAMdp, outcome.NoPASechen, outcome.NoPAKpr = mdp, sechen, kpr
	}
	if modes.WithPA {
		mdp, sechen, kpr, err := s.runMode(ctx, state, scn, precision, true)
		if err != nil {
			return outcome, err
		}
		outcome.WithPAMdp, outcome.WithPASechen, outcome.WithPAKpr = mdp, sechen, kpr
	}
	return outcome, nil
}

func (s *MDPSolver) applyScenario(ctx context.Context, scn inputs.Scenario, withPA bool) error {
	if !withPA {
		return s.facade.Add(ctx, scn.Path)
	}
	if s.paFile.IsLPN {
		if err := s.facade.Add(ctx, s.crossSectionPath); err != nil {
			return err
		}
		return s.facade.SynthesizeFromLPN(ctx, s.paFile.Path, s.pa.LPNSuffix, scn.Path)
	}
	if err := s.facade.Add(ctx, scn.Path); err != nil {
		return err
	}
	return s.facade.Add(ctx, s.paFile.Path)
}

func (s *MDPSolver) runMode(ctx context.Context, state *mdpVariantState, scn inputs.Scenario, precision float64, withPA bool) (Value, []MonitoredValue, []MonitoredValue, error) {
	label := "mdp_no_pa"
	if withPA {
		label = "mdp_with_pa"
	}

	if err := s.facade.Load(ctx, s.tmpFile); err != nil {
		return Value{}, nil, nil, err
	}
	if err := s.facade.Add(ctx, s.crossSectionPath); err != nil {
		return Value{}, nil, nil, err
	}
	if err := s.facade.Add(ctx, string(s.continuationFile)); err != nil {
		return Value{}, nil, nil, err
	}
	if err := s.applyScenario(ctx, scn, withPA); err != nil {
		return Value{}, nil, nil, err
	}

	result, err := s.facade.RunDynamic(ctx, true, nil)
	if err != nil {
		return Value{}, nil, nil, err
	}

	var mdp Value
	switch {
	case !result.Success:
		mdp = SentinelValue(ReasonSimOpFailed)
	case result.Stable:
		flow, err := s.flow(ctx)
		if err != nil {
			return Value{}, nil, nil, err
		}
		mdp = Known(flow)
	default:
		mdp, err = s.bisect(ctx, state, scn, precision, withPA, result)
		if err != nil {
			return Value{}, nil, nil, err
		}
	}

	sechen, err := s.collectSechen(ctx)
	if err != nil {
		return Value{}, nil, nil, err
	}
	kpr, err := s.collectPlotVars(ctx)
	if err != nil {
		return Value{}, nil, nil, err
	}
	if s.metrics != nil {
		s.metrics.Iterations.WithLabelValues(label).Inc()
	}
	return mdp, sechen, kpr, nil
}

// bisect implements spec.md §4.4 Phase B steps 2-3: bisection over the
// continuation coefficient K, with the outward-widening escape and
// stagnation guard from mdp_stability.py.
func (s *MDPSolver) bisect(ctx context.Context, state *mdpVariantState, scn inputs.Scenario, precision float64, withPA bool, initial simfacade.DynamicResult) (Value, error) {
	label := "mdp_no_pa"
	if withPA {
		label = "mdp_with_pa"
	}

	pCurrent, err := s.flow(ctx)
	if err != nil {
		return Value{}, err
	}
	pStable := state.pStart

	kMin, kMaxBr := 0.0, -state.maxStep
	kCurrent := kMin + (kMaxBr-kMin)*0.5

	success, stable := initial.Success, initial.Stable
	b := newBisector(maxMDPIterations, mdpStagnationWindow, mdpStagnationEps)

	for success && (math.Abs(pCurrent-pStable) > precision || !stable) {
		if b.iterations >= maxMDPIterations {
			break
		}
		if ctx.Err() != nil {
			return SentinelValue(ReasonStagnated), nil
		}

		if err := s.facade.Load(ctx, s.tmpFile); err != nil {
			return Value{}, err
		}
		if err := s.facade.Add(ctx, string(s.continuationFile)); err != nil {
			return Value{}, err
		}
		stepActual, err := s.facade.Step(ctx, kCurrent, true)
		if err != nil {
			return Value{}, err
		}
		if err := s.applyScenario(ctx, scn, withPA); err != nil {
			return Value{}, err
		}
		result, err := s.facade.RunDynamic(ctx, true, nil)
		if err != nil {
			return Value{}, err
		}
		success, stable = result.Success, result.Stable

		if success && stable {
			kMaxBr = stepActual
			pStable, err = s.flow(ctx)
			if err != nil {
				return Value{}, err
			}
		} else {
			kMin = stepActual
			pCurrent, err = s.flow(ctx)
			if err != nil {
				return Value{}, err
			}
			if kMin <= kMaxBr || math.Floor(pCurrent) <= math.Floor(pStable)+2.0 {
				kMaxBr -= 2.0
			}
		}
		kCurrent = kMin + (kMaxBr-kMin)*0.5

		st := b.advance(kCurrent)
		if s.metrics != nil {
			s.metrics.Iterations.WithLabelValues(label).Inc()
		}
		if st == stateStagnated {
			if b.budgetExhausted() {
				s.logger.BudgetExhausted(label, b.iterations)
				if s.metrics != nil {
					s.metrics.BudgetExhausted.WithLabelValues(label).Inc()
				}
			} else {
				s.logger.Stagnated(label, b.iterations)
				if s.metrics != nil {
					s.metrics.Stagnations.WithLabelValues(label).Inc()
				}
			}
			break
		}
	}

	flow, err := s.flow(ctx)
	if err != nil {
		return Value{}, err
	}
	return Known(flow), nil
}

func (s *MDPSolver) collectSechen(ctx context.Context) ([]MonitoredValue, error) {
	var out []MonitoredValue
	for _, sch := range s.crossSections {
		if !sch.Monitored {
			continue
		}
		v, err := s.facade.GetValF64(ctx, sechenTable, psechColumn, simfacade.RowIndex(sch.ID))
		if err != nil {
			return nil, fmt.Errorf("solver: reading monitored cross-section %q: %w", sch.Name, err)
		}
		out = append(out, MonitoredValue{ID: sch.ID, Name: sch.Name, Value: v})
	}
	return out, nil
}

func (s *MDPSolver) collectPlotVars(ctx context.Context) ([]MonitoredValue, error) {
	var out []MonitoredValue
	for _, pv := range s.plotVars {
		v, err := s.facade.GetValF64(ctx, pv.Table, pv.Column, simfacade.Predicate(pv.Selection))
		if err != nil {
			return nil, fmt.Errorf("solver: reading plot variable %q: %w", pv.Name, err)
		}
		out = append(out, MonitoredValue{ID: pv.ID, Name: pv.Name, Value: v})
	}
	return out, nil
}
