package solver

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/metrics"
	"github.com/SavinovAleksandr/dss/progress"
	"github.com/SavinovAleksandr/dss/simfacade"
	"github.com/SavinovAleksandr/dss/telemetry"
)

// maxUostLineIterations bounds Phase A's line-position bisection (spec.md
// §4.5 step 3). uost_stability.py's while loop has no explicit bound,
// relying on the 0.5% gap to close naturally; this solver adds one to
// satisfy spec.md §3's termination invariant.
const maxUostLineIterations = 50

// maxUostGrowthIterations bounds Phase B's additive shunt growth (spec.md
// §4.5 step 4a).
const maxUostGrowthIterations = 50

// maxUostRefineIterations/uostStagnationWindow/uostStagnationEps bound
// Phase B's |Z| bisection refinement (spec.md §4.5 step 4b).
const maxUostRefineIterations = 100
const uostStagnationWindow = 5
const uostStagnationEps = 0.01

// UostOutcome is one scenario's residual-voltage result (component C7).
type UostOutcome struct {
	ScenarioName string
	BeginNode    int
	EndNode      int
	NP           int
	// Distance is Known(line %) when Phase A bracketed a boundary,
	// Sentinel(ReasonNoBoundaryAfterGrowth) when both probes were
	// unstable and Phase B's shunt-growth path ran instead, or
	// Sentinel(ReasonNoBoundary) otherwise (both probes agreed, no
	// boundary to search for).
	Distance  Value
	BeginUost Value
	EndUost   Value
	Monitored []MonitoredValue
}

// UOstSolver finds the residual voltage at the stability boundary along a
// faulted line, per spec.md §4.5.
type UOstSolver struct {
	facade  simfacade.Facade
	kprs    []inputs.PlotVariable
	logger  telemetry.Logger
	metrics *metrics.Registry
	progress *progress.Tracker
}

// NewUOstSolver validates inputs, mirroring
// uost_stability.py's UostStabilityCalc.__init__ guard.
func NewUOstSolver(
	facade simfacade.Facade,
	kprs []inputs.PlotVariable,
	logger telemetry.Logger,
	reg *metrics.Registry,
	tracker *progress.Tracker,
) (*UOstSolver, error) {
	if tracker == nil {
		tracker = progress.NewTracker(progress.Noop, 1)
	}
	return &UOstSolver{facade: facade, kprs: kprs, logger: logger, metrics: reg, progress: tracker}, nil
}

// Run executes UOstSolver over every (regime, variant, scenario)
// combination. Unlike the other solvers, the original reloads the regime
// and re-applies the variant fresh for every scenario rather than once per
// variant (uost_stability.py constructs a new RastrOperations per
// scenario) — so a per-scenario unbalanced case skips only that
// scenario, and VariantResult.IsStable reports the *last* scenario's
// balance flag, matching the original's `is_stable` variable scoping.
func (s *UOstSolver) Run(ctx context.Context, regimes []inputs.Regime, variants []inputs.Variant, scenarios []inputs.Scenario, repairFile inputs.RepairSchemaFile) (Results[UostOutcome], error) {
	active := inputs.ActiveVariants(variants)
	var results Results[UostOutcome]

	for _, rgm := range regimes {
		var variantResults []VariantResult[UostOutcome]
		for _, vrn := range active {
			if ctx.Err() != nil {
				break
			}
			var scenarioResults []ScenarioResult[UostOutcome]
			lastStable := false

			for _, scn := range scenarios {
				if ctx.Err() != nil {
					scenarioResults = append(scenarioResults, ScenarioResult[UostOutcome]{Scenario: scn, Cancelled: true})
					break
				}
				balanced, err := s.establishCase(ctx, rgm, vrn, repairFile)
				if err != nil {
					s.logger.SimOpFailed("establishCase", err)
					balanced = false
				}
				lastStable = balanced
				if !balanced {
					s.logger.SchemeUnbalanced(vrn.Name)
					continue
				}

				outcome, skip, err := s.runScenario(ctx, scn)
				if err != nil {
					s.logger.SimOpFailed("runScenario", err)
					continue
				}
				if skip {
					continue
				}
				scenarioResults = append(scenarioResults, ScenarioResult[UostOutcome]{Scenario: scn, Value: outcome})
				s.progress.Advance(1)
			}

			variantResults = append(variantResults, VariantResult[UostOutcome]{Variant: vrn, IsStable: lastStable, Scenarios: scenarioResults})
		}
		results = append(results, RegimeResult[UostOutcome]{Regime: rgm, Variants: variantResults})
	}
	return results, nil
}

func (s *UOstSolver) establishCase(ctx context.Context, rgm inputs.Regime, vrn inputs.Variant, repairFile inputs.RepairSchemaFile) (bool, error) {
	if err := s.facade.Load(ctx, rgm.Path); err != nil {
		return false, fmt.Errorf("solver: loading regime %q: %w", rgm.Path, err)
	}
	if err := s.facade.ConfigureDynamics(ctx); err != nil {
		return false, fmt.Errorf("solver: configuring dynamics: %w", err)
	}
	if vrn.IsNormal() {
		return s.facade.RunSteadyState(ctx)
	}
	return s.facade.ApplyVariant(ctx, vrn.Ordinal, string(repairFile))
}

// runScenario implements spec.md §4.5's setup, line-splitting, and
// boundary search. skip reports that the scenario's fault line key could
// not be parsed (fewer than 3 comma-separated fields), mirroring the
// original's bare `continue`.
func (s *UOstSolver) runScenario(ctx context.Context, scn inputs.Scenario) (UostOutcome, bool, error) {
	if err := s.facade.Load(ctx, scn.Path); err != nil {
		return UostOutcome{}, false, fmt.Errorf("solver: loading scenario %q: %w", scn.Path, err)
	}

	actions, err := s.facade.Selection(ctx, "DFWAutoActionScn", "")
	if err != nil {
		return UostOutcome{}, false, fmt.Errorf("solver: enumerating scenario actions: %w", err)
	}

	var lineKey string
	var nodeKz int
	var timeStart float64
	rShunt, xShunt := inputs.Unspecified, inputs.Unspecified
	rID, xID := 0, 0

	for _, row := range actions {
		sel := simfacade.RowIndex(row)
		objClass, err := s.facade.GetValString(ctx, "DFWAutoActionScn", "ObjectClass", sel)
		if err != nil {
			return UostOutcome{}, false, err
		}

		switch objClass {
		case "vetv":
			lineKey, err = s.facade.GetValString(ctx, "DFWAutoActionScn", "ObjectKey", sel)
			if err != nil {
				return UostOutcome{}, false, err
			}
			if err := s.facade.SetVal(ctx, "DFWAutoActionScn", "State", sel, 1); err != nil {
				return UostOutcome{}, false, err
			}
		case "node":
			keyStr, err := s.facade.GetValString(ctx, "DFWAutoActionScn", "ObjectKey", sel)
			if err != nil {
				return UostOutcome{}, false, err
			}
			nodeKz, err = strconv.Atoi(strings.TrimSpace(keyStr))
			if err != nil {
				return UostOutcome{}, false, fmt.Errorf("solver: parsing fault node %q: %w", keyStr, err)
			}
			timeStart, err = s.facade.GetValF64(ctx, "DFWAutoActionScn", "TimeStart", sel)
			if err != nil {
				return UostOutcome{}, false, err
			}

			// A placeholder node reserving a row id, matching the
			// original's unconditional add_table_row here — it is
			// superseded by the line-splitting node created below.
			placeholder, err := s.facade.AddTableRow(ctx, "node")
			if err != nil {
				return UostOutcome{}, false, err
			}
			if err := s.facade.SetVal(ctx, "node", "ny", simfacade.RowIndex(placeholder), float64(len(actions)+1)); err != nil {
				return UostOutcome{}, false, err
			}
			uNom, err := s.facade.GetValF64(ctx, "node", "uhom", simfacade.Predicate(fmt.Sprintf("ny=%d", nodeKz)))
			if err != nil {
				return UostOutcome{}, false, err
			}
			if err := s.facade.SetVal(ctx, "node", "uhom", simfacade.RowIndex(placeholder), uNom); err != nil {
				return UostOutcome{}, false, err
			}

			objProp, err := s.facade.GetValString(ctx, "DFWAutoActionScn", "ObjectProp", sel)
			if err != nil {
				return UostOutcome{}, false, err
			}
			switch objProp {
			case "r":
				raw, err := s.facade.GetValString(ctx, "DFWAutoActionScn", "Formula", sel)
				if err != nil {
					return UostOutcome{}, false, err
				}
				if rShunt, err = parseLocaleFloat(raw); err != nil {
					return UostOutcome{}, false, err
				}
				rID = row
			case "x":
				raw, err := s.facade.GetValString(ctx, "DFWAutoActionScn", "Formula", sel)
				if err != nil {
					return UostOutcome{}, false, err
				}
				if xShunt, err = parseLocaleFloat(raw); err != nil {
					return UostOutcome{}, false, err
				}
				xID = row
			}
		}
	}

	parts := strings.Split(lineKey, ",")
	if len(parts) < 3 {
		return UostOutcome{}, true, nil
	}
	ip, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	iq, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	np, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return UostOutcome{}, true, nil
	}

	pred := simfacade.Predicate(fmt.Sprintf("ip=%d & iq=%d & np=%d", ip, iq, np))
	rLine, err := s.facade.GetValF64(ctx, "vetv", "r", pred)
	if err != nil {
		return UostOutcome{}, false, err
	}
	xLine, err := s.facade.GetValF64(ctx, "vetv", "x", pred)
	if err != nil {
		return UostOutcome{}, false, err
	}
	bLine, err := s.facade.GetValF64(ctx, "vetv", "b", pred)
	if err != nil {
		return UostOutcome{}, false, err
	}

	if err := s.facade.SetVal(ctx, "vetv", "sta", pred, 1); err != nil {
		return UostOutcome{}, false, err
	}
	if err := s.facade.SetVal(ctx, "node", "bsh", simfacade.Predicate(fmt.Sprintf("ny=%d", ip)), bLine/2.0); err != nil {
		return UostOutcome{}, false, err
	}
	if err := s.facade.SetVal(ctx, "node", "bsh", simfacade.Predicate(fmt.Sprintf("ny=%d", iq)), bLine/2.0); err != nil {
		return UostOutcome{}, false, err
	}

	newNode, err := s.facade.AddTableRow(ctx, "node")
	if err != nil {
		return UostOutcome{}, false, err
	}
	if err := s.facade.SetVal(ctx, "node", "ny", simfacade.RowIndex(newNode), float64(len(actions)+1)); err != nil {
		return UostOutcome{}, false, err
	}
	uNom2, err := s.facade.GetValF64(ctx, "node", "uhom", simfacade.Predicate(fmt.Sprintf("ny=%d", nodeKz)))
	if err != nil {
		return UostOutcome{}, false, err
	}
	if err := s.facade.SetVal(ctx, "node", "uhom", simfacade.RowIndex(newNode), uNom2); err != nil {
		return UostOutcome{}, false, err
	}

	branch1, err := s.facade.AddTableRow(ctx, "vetv")
	if err != nil {
		return UostOutcome{}, false, err
	}
	branch2, err := s.facade.AddTableRow(ctx, "vetv")
	if err != nil {
		return UostOutcome{}, false, err
	}
	if err := s.facade.SetVal(ctx, "vetv", "ip", simfacade.RowIndex(branch1), float64(ip)); err != nil {
		return UostOutcome{}, false, err
	}
	if err := s.facade.SetVal(ctx, "vetv", "iq", simfacade.RowIndex(branch1), float64(newNode)); err != nil {
		return UostOutcome{}, false, err
	}
	if err := s.facade.SetVal(ctx, "vetv", "ip", simfacade.RowIndex(branch2), float64(newNode)); err != nil {
		return UostOutcome{}, false, err
	}
	if err := s.facade.SetVal(ctx, "vetv", "iq", simfacade.RowIndex(branch2), float64(iq)); err != nil {
		return UostOutcome{}, false, err
	}

	if _, err := s.facade.RunSteadyState(ctx); err != nil {
		return UostOutcome{}, false, err
	}

	zMod, zAngle := uostShuntPolar(rShunt, xShunt)
	lStart := 99.9
	if ip == nodeKz {
		lStart = 0.1
	}
	lEnd := 100.0 - lStart

	if err := s.facade.SetLineForUostCalc(ctx, branch1, branch2, rLine, xLine, lStart); err != nil {
		return UostOutcome{}, false, err
	}
	dyn1, err := s.facade.RunDynamic(ctx, true, nil)
	if err != nil {
		return UostOutcome{}, false, err
	}
	if err := s.facade.SetLineForUostCalc(ctx, branch1, branch2, rLine, xLine, lEnd); err != nil {
		return UostOutcome{}, false, err
	}
	dyn2, err := s.facade.RunDynamic(ctx, true, nil)
	if err != nil {
		return UostOutcome{}, false, err
	}

	var distance Value
	switch {
	case dyn1.Success && dyn2.Success && dyn1.Stable != dyn2.Stable:
		distance, err = s.bisectLine(ctx, branch1, branch2, rLine, xLine, dyn1, dyn2, lStart, lEnd)
		if err != nil {
			return UostOutcome{}, false, err
		}
	case dyn1.Success && !dyn1.Stable && dyn2.Success && !dyn2.Stable:
		if err := s.growShunt(ctx, branch1, branch2, rLine, xLine, ip, nodeKz, rShunt, xShunt, rID, xID, zMod, zAngle); err != nil {
			return UostOutcome{}, false, err
		}
		distance = SentinelValue(ReasonNoBoundaryAfterGrowth)
	default:
		distance = SentinelValue(ReasonNoBoundary)
	}

	beginUost, endUost := SentinelValue(ReasonUnspecified), SentinelValue(ReasonUnspecified)
	maxTime := timeStart + 0.02
	result5, err := s.facade.RunDynamic(ctx, false, &maxTime)
	if err != nil {
		return UostOutcome{}, false, err
	}
	if result5.Success && result5.Stable {
		pointsIP, err := s.facade.GetPoints(ctx, "node", "vras", simfacade.Predicate(fmt.Sprintf("ny=%d", ip)))
		if err != nil {
			return UostOutcome{}, false, err
		}
		for _, p := range pointsIP {
			if math.Abs(p.X-timeStart) < 0.001 {
				beginUost = Known(p.Y)
				break
			}
		}
		pointsIQ, err := s.facade.GetPoints(ctx, "node", "vras", simfacade.Predicate(fmt.Sprintf("ny=%d", iq)))
		if err != nil {
			return UostOutcome{}, false, err
		}
		for _, p := range pointsIQ {
			if math.Abs(p.X-timeStart) < 0.001 {
				endUost = Known(p.Y)
				break
			}
		}
	}

	monitored, err := s.collectMonitored(ctx)
	if err != nil {
		return UostOutcome{}, false, err
	}
	if s.metrics != nil {
		s.metrics.Iterations.WithLabelValues("uost").Inc()
	}

	return UostOutcome{
		ScenarioName: sceneStem(scn.Path),
		BeginNode:    ip, EndNode: iq, NP: np,
		Distance: distance, BeginUost: beginUost, EndUost: endUost,
		Monitored: monitored,
	}, false, nil
}

// bisectLine implements spec.md §4.5 Phase A's line-position bisection
// once dyn1/dyn2 disagree on stability.
func (s *UOstSolver) bisectLine(ctx context.Context, branch1, branch2 int, rLine, xLine float64, dyn1, dyn2 simfacade.DynamicResult, lStart, lEnd float64) (Value, error) {
	lStable, lUnstable := lStart, lEnd
	if !dyn1.Stable {
		lStable, lUnstable = lEnd, lStart
	}
	lCurrent := math.Abs(lStable-lUnstable) * 0.5

	if err := s.facade.SetLineForUostCalc(ctx, branch1, branch2, rLine, xLine, lCurrent); err != nil {
		return Value{}, err
	}
	dyn3, err := s.facade.RunDynamic(ctx, true, nil)
	if err != nil {
		return Value{}, err
	}

	b := newBisector(maxUostLineIterations, 0, 0)
	distance := lCurrent

	for dyn3.Success && (!dyn3.Stable || math.Abs(lStable-lUnstable) > 0.5) {
		if dyn3.Stable {
			lStable = lCurrent
		} else {
			lUnstable = lCurrent
		}
		sign := -1.0
		if (dyn1.Stable && dyn3.Stable) || (!dyn1.Stable && !dyn3.Stable) {
			sign = 1.0
		}
		lCurrent += math.Abs(lUnstable-lStable) * 0.5 * sign
		distance = lCurrent

		if b.advance(lCurrent) == stateStagnated {
			s.logger.BudgetExhausted("uost_line", b.iterations)
			if s.metrics != nil {
				s.metrics.BudgetExhausted.WithLabelValues("uost_line").Inc()
			}
			return SentinelValue(ReasonBudgetExhausted), nil
		}
		if s.metrics != nil {
			s.metrics.Iterations.WithLabelValues("uost_line").Inc()
		}

		if err := s.facade.SetLineForUostCalc(ctx, branch1, branch2, rLine, xLine, lCurrent); err != nil {
			return Value{}, err
		}
		dyn3, err = s.facade.RunDynamic(ctx, true, nil)
		if err != nil {
			return Value{}, err
		}
	}
	return Known(distance), nil
}

// growShunt implements spec.md §4.5 Phase B: grow the fault shunt's |Z|
// until the probe becomes stable, then bisect to refine the boundary to
// within 2.5%.
func (s *UOstSolver) growShunt(ctx context.Context, branch1, branch2 int, rLine, xLine float64, ip, nodeKz int, rShunt, xShunt float64, rID, xID int, zMod, zAngle float64) error {
	lineLen := 0.1
	if ip == nodeKz {
		lineLen = 99.9
	}
	if err := s.facade.SetLineForUostCalc(ctx, branch1, branch2, rLine, xLine, lineLen); err != nil {
		return err
	}

	step := zMod
	if zMod <= 0.1 {
		step = 1.0
	}
	zModNew := zMod + step
	zModOld := zMod

	setShunt := func(zm float64) error {
		// rID < 0 tells the façade to leave R alone, mirroring
		// change_rx_for_uost_calc's optional r_id argument when the
		// scenario's shunt was X-only.
		rowR := -1
		if rShunt != inputs.Unspecified {
			rowR = rID
		}
		return s.facade.ChangeRXForUostCalc(ctx, xID, zm*math.Sin(zAngle), rowR, zm*math.Cos(zAngle))
	}

	if err := setShunt(zModNew); err != nil {
		return err
	}
	dyn4, err := s.facade.RunDynamic(ctx, true, nil)
	if err != nil {
		return err
	}

	growthIterations := 0
	for dyn4.Success && !dyn4.Stable {
		if growthIterations >= maxUostGrowthIterations {
			s.logger.BudgetExhausted("uost_growth", growthIterations)
			if s.metrics != nil {
				s.metrics.BudgetExhausted.WithLabelValues("uost_growth").Inc()
			}
			break
		}
		zModOld = zModNew
		zModNew += step
		if err := setShunt(zModNew); err != nil {
			return err
		}
		dyn4, err = s.facade.RunDynamic(ctx, true, nil)
		if err != nil {
			return err
		}
		growthIterations++
		if s.metrics != nil {
			s.metrics.Iterations.WithLabelValues("uost_growth").Inc()
		}
	}

	b := newBisector(maxUostRefineIterations, uostStagnationWindow, uostStagnationEps)
	for dyn4.Success && (!dyn4.Stable || (1.0-zModOld/zModNew) > 0.025) {
		var zStep float64
		if dyn4.Stable {
			zStep = (zModOld - zModNew) * 0.5
		} else {
			zStep = (zModNew - zModOld) * 0.5
		}
		zCurrent := zModNew + zStep
		if err := setShunt(zCurrent); err != nil {
			return err
		}
		dyn4, err = s.facade.RunDynamic(ctx, true, nil)
		if err != nil {
			return err
		}
		if dyn4.Stable {
			zModNew = zCurrent
		} else {
			zModOld = zCurrent
		}

		if b.advance(zCurrent) == stateStagnated {
			if b.budgetExhausted() {
				s.logger.BudgetExhausted("uost_refine", b.iterations)
				if s.metrics != nil {
					s.metrics.BudgetExhausted.WithLabelValues("uost_refine").Inc()
				}
			} else {
				s.logger.Stagnated("uost_refine", b.iterations)
				if s.metrics != nil {
					s.metrics.Stagnations.WithLabelValues("uost_refine").Inc()
				}
			}
			break
		}
		if s.metrics != nil {
			s.metrics.Iterations.WithLabelValues("uost_refine").Inc()
		}
	}
	return nil
}

func (s *UOstSolver) collectMonitored(ctx context.Context) ([]MonitoredValue, error) {
	var out []MonitoredValue
	for _, kpr := range s.kprs {
		v, err := s.facade.GetValF64(ctx, kpr.Table, kpr.Column, simfacade.Predicate(kpr.Selection))
		if err != nil {
			return nil, fmt.Errorf("solver: reading monitored value %q: %w", kpr.Name, err)
		}
		out = append(out, MonitoredValue{ID: kpr.ID, Name: kpr.Name, Value: v})
	}
	return out, nil
}

// uostShuntPolar decomposes the fault shunt's (R, X) into polar form,
// matching uost_stability.py's z_angle/z_mod formulas exactly (note: plain
// atan, not atan2, and a zero real part under the sqrt when R is
// unspecified rather than omitting it).
func uostShuntPolar(rShunt, xShunt float64) (zMod, zAngle float64) {
	if rShunt == inputs.Unspecified {
		return math.Sqrt(xShunt * xShunt), math.Pi / 2.0
	}
	return math.Sqrt(rShunt*rShunt+xShunt*xShunt), math.Atan(xShunt / rShunt)
}

// parseLocaleFloat parses a simulator cell value that may use either "."
// or "," as its decimal separator.
func parseLocaleFloat(raw string) (float64, error) {
	normalized := strings.Replace(strings.TrimSpace(raw), ",", ".", 1)
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("solver: parsing locale float %q: %w", raw, err)
	}
	return v, nil
}

// sceneStem returns a scenario's display name: its file name without
// extension, matching Path(scn.name).stem.
func sceneStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
