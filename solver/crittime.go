package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/SavinovAleksandr/dss/casebuilder"
	"github.com/SavinovAleksandr/dss/config"
	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/metrics"
	"github.com/SavinovAleksandr/dss/progress"
	"github.com/SavinovAleksandr/dss/simfacade"
	"github.com/SavinovAleksandr/dss/telemetry"
)

// maxCritTimeIterations bounds the bisection loop. The Python original
// (rastr_operations.find_crt_time) loops on
// "abs(time_step) > precision or sync lost"; since time_step halves every
// iteration, the loop is already bounded by log2(max_s/precision_s) in
// practice, but an explicit cap matches spec.md §3's termination
// invariant and protects against a simulator that never reports
// SyncLossCause == 0.
const maxCritTimeIterations = 100

// critTimeEventStart is the fixed fault-start time ("time_start" in
// rastr_operations._reset_crt_time) every probe uses.
const critTimeEventStart = 1.0

// critTimePostFaultMargin is the 3.0 s added after the fault clears to
// the simulator's total time horizon.
const critTimePostFaultMargin = 3.0

// CritTimeSolver finds the maximum fault duration that still preserves
// synchronism, per spec.md §4.2.
type CritTimeSolver struct {
	facade   simfacade.Facade
	builder  *casebuilder.Builder
	settings config.CritTimeSettings
	logger   telemetry.Logger
	metrics  *metrics.Registry
	progress *progress.Tracker
}

func NewCritTimeSolver(
	facade simfacade.Facade,
	builder *casebuilder.Builder,
	settings config.CritTimeSettings,
	logger telemetry.Logger,
	reg *metrics.Registry,
	tracker *progress.Tracker,
) (*CritTimeSolver, error) {
	var missing []string
	if settings.MaxS <= 0 {
		missing = append(missing, "crit_time.max_s must be positive")
	}
	if settings.PrecisionS <= 0 {
		missing = append(missing, "crit_time.precision_s must be positive")
	}
	if err := newValidationError(missing...); err != nil {
		return nil, err
	}
	if tracker == nil {
		tracker = progress.NewTracker(progress.Noop, 1)
	}
	return &CritTimeSolver{facade: facade, builder: builder, settings: settings, logger: logger, metrics: reg, progress: tracker}, nil
}

// Run executes CritTimeSolver over every (regime, variant, scenario)
// combination.
func (s *CritTimeSolver) Run(ctx context.Context, regimes []inputs.Regime, variants []inputs.Variant, scenarios []inputs.Scenario, repairFile inputs.RepairSchemaFile) (Results[Value], error) {
	active := inputs.ActiveVariants(variants)
	var results Results[Value]

	for _, rgm := range regimes {
		var variantResults []VariantResult[Value]
		for _, vrn := range active {
			if ctx.Err() != nil {
				break
			}
			balanced, err := s.builder.EstablishBaseline(ctx, rgm, vrn, repairFile)
			if err != nil {
				s.logger.SimOpFailed("EstablishBaseline", err)
				balanced = false
			}
			if !balanced {
				s.logger.SchemeUnbalanced(vrn.Name)
				variantResults = append(variantResults, VariantResult[Value]{Variant: vrn, IsStable: false})
				continue
			}

			vr := buildVariantResult(vrn, scenarios, true, func(scn inputs.Scenario) (Value, bool) {
				if ctx.Err() != nil {
					return SentinelValue(ReasonStagnated), true
				}
				v, err := s.findCriticalTime(ctx, scn)
				if err != nil {
					s.logger.SimOpFailed("findCriticalTime", err)
					v = SentinelValue(ReasonSimOpFailed)
				}
				s.progress.Advance(1)
				return v, false
			})
			variantResults = append(variantResults, vr)
		}
		results = append(results, RegimeResult[Value]{Regime: rgm, Variants: variantResults})
	}
	return results, nil
}

// findCriticalTime implements the bisection in spec.md §4.2, adapted from
// rastr_operations.find_crt_time.
func (s *CritTimeSolver) findCriticalTime(ctx context.Context, scn inputs.Scenario) (Value, error) {
	if err := s.builder.ResetToBaseline(ctx); err != nil {
		return Value{}, err
	}
	if err := s.facade.Load(ctx, scn.Path); err != nil {
		return Value{}, fmt.Errorf("solver: loading scenario %q: %w", scn.Path, err)
	}

	crtTime := s.settings.MaxS
	stable, err := s.probe(ctx, crtTime)
	if err != nil {
		return Value{}, err
	}
	if stable {
		return Known(crtTime), nil
	}

	timeMin, timeMax := 0.0, s.settings.MaxS
	timeStep := (timeMax - timeMin) * 0.5
	b := newBisector(maxCritTimeIterations, 0, 0)

	for {
		sign := -1.0
		if stable {
			sign = 1.0
		}
		crtTime += timeStep * sign

		if b.advance(crtTime) == stateStagnated {
			s.logger.BudgetExhausted("crittime", b.iterations)
			if s.metrics != nil {
				s.metrics.BudgetExhausted.WithLabelValues("crittime").Inc()
			}
			return SentinelValue(ReasonBudgetExhausted), nil
		}
		if s.metrics != nil {
			s.metrics.Iterations.WithLabelValues("crittime").Inc()
		}

		stable, err = s.probe(ctx, crtTime)
		if err != nil {
			return Value{}, err
		}
		if stable {
			timeMin = crtTime
		} else {
			timeMax = crtTime
		}
		timeStep = (timeMax - timeMin) * 0.5

		if math.Abs(timeStep) <= s.settings.PrecisionS && stable {
			b.finish()
			return Known(crtTime), nil
		}
	}
}

// probe rewrites the scenario's fault timing for duration dt and runs one
// EMS-mode transient, returning whether synchronism was preserved.
func (s *CritTimeSolver) probe(ctx context.Context, dt float64) (bool, error) {
	rows, err := s.facade.Selection(ctx, "DFWAutoActionScn", "")
	if err != nil {
		return false, fmt.Errorf("solver: enumerating scenario actions: %w", err)
	}
	for _, row := range rows {
		sel := simfacade.RowIndex(row)
		objClass, err := s.facade.GetValString(ctx, "DFWAutoActionScn", "ObjectClass", sel)
		if err != nil {
			return false, fmt.Errorf("solver: reading action class: %w", err)
		}
		switch objClass {
		case "node":
			if err := s.facade.SetVal(ctx, "DFWAutoActionScn", "TimeStart", sel, critTimeEventStart); err != nil {
				return false, err
			}
			if err := s.facade.SetVal(ctx, "DFWAutoActionScn", "DT", sel, dt); err != nil {
				return false, err
			}
		case "vetv":
			if err := s.facade.SetVal(ctx, "DFWAutoActionScn", "TimeStart", sel, critTimeEventStart+dt); err != nil {
				return false, err
			}
			if err := s.facade.SetVal(ctx, "DFWAutoActionScn", "DT", sel, 999.0); err != nil {
				return false, err
			}
		}
	}
	if err := s.facade.SetVal(ctx, "com_dynamics", "Tras", simfacade.RowIndex(0), critTimeEventStart+dt+critTimePostFaultMargin); err != nil {
		return false, err
	}

	result, err := s.facade.RunDynamic(ctx, true, nil)
	if err != nil {
		return false, fmt.Errorf("solver: running EMS transient: %w", err)
	}
	return result.Success && result.Stable, nil
}
