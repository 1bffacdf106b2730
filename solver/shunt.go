package solver

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/SavinovAleksandr/dss/casebuilder"
	"github.com/SavinovAleksandr/dss/config"
	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/metrics"
	"github.com/SavinovAleksandr/dss/progress"
	"github.com/SavinovAleksandr/dss/simfacade"
	"github.com/SavinovAleksandr/dss/telemetry"
)

// maxShuntIterations bounds the z_mod refinement fixed-point loop (spec.md
// §4.1 step 4). The original rastr_operations.find_shunt_kz loop has no
// explicit bound and relies only on the unparseable-log break; this
// solver adds one to satisfy spec.md §3's "every iterative loop MUST
// terminate" invariant.
const maxShuntIterations = 25

// shuntFaultDuration is the ~1.1 s fault-on duration spec.md §4.1 step 2
// calls for, matching the Tras column seeded to 1.1 in
// rastr_operations.find_shunt_kz.
const shuntFaultDuration = 1.1

// ShuntOutcome is the per-bus result of ShuntSolver (component C3).
type ShuntOutcome struct {
	Bus   int
	Phase string // "one" or "two"
	R     Value  // Sentinel(ReasonUnspecified) if R was not given
	X     Value
	UObs  Value
}

// ShuntSolver finds (R, X) of a fault shunt at a bus that yields a target
// residual voltage, per spec.md §4.1.
type ShuntSolver struct {
	facade   simfacade.Facade
	builder  *casebuilder.Builder
	settings config.ShuntSettings
	tasks    []inputs.ShuntTask
	logger   telemetry.Logger
	metrics  *metrics.Registry
	progress *progress.Tracker
}

// NewShuntSolver validates inputs and constructs a ShuntSolver. It
// returns a *ValidationError (spec.md §7 item 1) if neither a CSV task
// list nor bulk "use marked buses" mode is available, or if neither
// one-phase nor two-phase calculation is enabled — mirroring
// shunt_kz.py's ShuntKZCalc.__init__ guard exactly.
func NewShuntSolver(
	facade simfacade.Facade,
	builder *casebuilder.Builder,
	settings config.ShuntSettings,
	tasks []inputs.ShuntTask,
	logger telemetry.Logger,
	reg *metrics.Registry,
	tracker *progress.Tracker,
) (*ShuntSolver, error) {
	var missing []string
	if len(tasks) == 0 && !settings.UseSelNodes {
		missing = append(missing, "shunt-task file (or use_sel_nodes)")
	}
	if !settings.CalcOnePhase && !settings.CalcTwoPhase {
		missing = append(missing, "at least one of calc_one_phase/calc_two_phase")
	}
	if err := newValidationError(missing...); err != nil {
		return nil, err
	}
	if tracker == nil {
		tracker = progress.NewTracker(progress.Noop, 1)
	}
	return &ShuntSolver{
		facade: facade, builder: builder, settings: settings, tasks: tasks,
		logger: logger, metrics: reg, progress: tracker,
	}, nil
}

// Run executes ShuntSolver over every (regime, variant) pair, probing
// either the configured CSV task list or — in bulk mode — every bus with
// sel=1, for each enabled phase.
func (s *ShuntSolver) Run(ctx context.Context, regimes []inputs.Regime, variants []inputs.Variant, repairFile inputs.RepairSchemaFile) (Results[[]ShuntOutcome], error) {
	active := inputs.ActiveVariants(variants)
	var results Results[[]ShuntOutcome]

	for _, rgm := range regimes {
		var variantResults []VariantResult[[]ShuntOutcome]
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
				variantResults = append(variantResults, VariantResult[[]ShuntOutcome]{Variant: vrn, IsStable: false})
				continue
			}

			outcomes, err := s.runVariant(ctx, rgm)
			if err != nil {
				return nil, err
			}
			variantResults = append(variantResults, VariantResult[[]ShuntOutcome]{
				Variant: vrn, IsStable: true,
				Scenarios: []ScenarioResult[[]ShuntOutcome]{{Value: outcomes}},
			})
		}
		results = append(results, RegimeResult[[]ShuntOutcome]{Regime: rgm, Variants: variantResults})
	}
	return results, nil
}

func (s *ShuntSolver) runVariant(ctx context.Context, rgm inputs.Regime) ([]ShuntOutcome, error) {
	var out []ShuntOutcome

	buses, err := s.buses(ctx)
	if err != nil {
		return nil, err
	}

	for _, bus := range buses {
		if s.settings.CalcOnePhase {
			o, skip, err := s.probeBus(ctx, bus, "one")
			if err != nil {
				return nil, err
			}
			if !skip {
				out = append(out, o)
			}
			s.progress.Advance(1)
		}
		if s.settings.CalcTwoPhase {
			o, skip, err := s.probeBus(ctx, bus, "two")
			if err != nil {
				return nil, err
			}
			if !skip {
				out = append(out, o)
			}
			s.progress.Advance(1)
		}
	}
	return out, nil
}

// busSpec is one bus to probe together with its target and initial
// impedance, unifying the CSV-task and bulk-mode paths of
// shunt_kz.py's calc(). xOne/rOne and xTwo/rTwo hold the task row's
// per-phase X1/R1 and X2/R2 (inputs.Unspecified if the row left them
// blank); canonical buses (bulk "use marked buses" mode) leave all four
// at their zero value and are never read.
type busSpec struct {
	bus        int
	targetOne  float64
	targetTwo  float64
	xOne, rOne float64
	xTwo, rTwo float64
	canonical  bool // true in bulk mode: use BaseAngle, ignore the task fields
}

func (s *ShuntSolver) buses(ctx context.Context) ([]busSpec, error) {
	if !s.settings.UseSelNodes {
		specs := make([]busSpec, 0, len(s.tasks))
		for _, t := range s.tasks {
			specs = append(specs, busSpec{
				bus: t.Bus, targetOne: t.U1, targetTwo: t.U2,
				xOne: t.X1, rOne: t.R1, xTwo: t.X2, rTwo: t.R2,
			})
		}
		return specs, nil
	}

	rows, err := s.facade.Selection(ctx, "node", "sel = 1")
	if err != nil {
		return nil, fmt.Errorf("solver: enumerating marked buses: %w", err)
	}
	specs := make([]busSpec, 0, len(rows))
	for _, row := range rows {
		specs = append(specs, busSpec{bus: row, canonical: true})
	}
	return specs, nil
}

// probeBus probes one bus/phase. The bool result reports whether
// shunt_kz.py's calc() would have skipped this phase entirely (task row
// gave no target voltage and config.ShuntSettings.UseTypeValU is off) —
// callers must not count a skip as an outcome.
func (s *ShuntSolver) probeBus(ctx context.Context, spec busSpec, phase string) (ShuntOutcome, bool, error) {
	uNom, err := s.facade.GetValF64(ctx, "node", "uhom", simfacade.Predicate(fmt.Sprintf("ny=%d", spec.bus)))
	if err != nil {
		return ShuntOutcome{}, false, fmt.Errorf("solver: reading nominal voltage for bus %d: %w", spec.bus, err)
	}
	uPre, err := s.facade.GetValF64(ctx, "node", "vras", simfacade.Predicate(fmt.Sprintf("ny=%d", spec.bus)))
	if err != nil {
		return ShuntOutcome{}, false, fmt.Errorf("solver: reading pre-fault voltage for bus %d: %w", spec.bus, err)
	}

	target, x0, r0, skip := s.targetAndInitialZ(spec, phase, uPre)
	if skip {
		return ShuntOutcome{}, true, nil
	}

	zMod, zAngle := polarImpedance(x0, r0)
	precision := math.Min(2.0, 0.02*uNom)

	var uObs float64
	haveReading := false
	iterations := 0
	for {
		if ctx.Err() != nil {
			return makeOutcome(spec.bus, phase, r0, zMod, zAngle, SentinelValue(ReasonStagnated)), false, nil
		}
		observed, ok, err := s.probeAndReadResidual(ctx, spec.bus, zMod, zAngle, r0)
		if err != nil {
			return ShuntOutcome{}, false, err
		}
		if !ok {
			// spec.md §4.1 failure semantics: no matching log line, loop
			// terminates with the last valid reading, no retries.
			s.logger.UnparseableLogLine("ShuntSolver", fmt.Sprintf("bus=%d iteration=%d", spec.bus, iterations))
			break
		}
		uObs = observed
		haveReading = true

		if math.Abs(uObs-target) <= precision {
			break
		}
		iterations++
		if s.metrics != nil {
			s.metrics.Iterations.WithLabelValues("shunt").Inc()
		}
		if iterations > maxShuntIterations {
			s.logger.BudgetExhausted("shunt", iterations)
			if s.metrics != nil {
				s.metrics.BudgetExhausted.WithLabelValues("shunt").Inc()
			}
			return makeOutcome(spec.bus, phase, r0, zMod, zAngle, SentinelValue(ReasonBudgetExhausted)), false, nil
		}
		if uObs > 0 {
			zMod = zMod * target / uObs
		}
	}

	if !haveReading {
		return makeOutcome(spec.bus, phase, r0, zMod, zAngle, SentinelValue(ReasonUnspecified)), false, nil
	}
	return makeOutcome(spec.bus, phase, r0, zMod, zAngle, Known(uObs)), false, nil
}

// targetAndInitialZ reproduces shunt_kz.py's calc() branch structure for
// one phase: a task row's explicit X/R is honored when given, a missing
// target voltage falls back to 0.66/0.33 of the pre-fault voltage uPre
// only when UseTypeValU is set, and a phase with neither an explicit nor
// a defaulted target is skipped outright rather than chasing an
// unreachable target. Bulk "use marked buses" mode always uses the
// canonical angle and the uPre-derived default, matching calc()'s
// use_sel_nodes branch, which never consults per-row X/U at all.
func (s *ShuntSolver) targetAndInitialZ(spec busSpec, phase string, uPre float64) (target, x0, r0 float64, skip bool) {
	frac := 0.66
	if phase == "two" {
		frac = 0.33
	}

	if !spec.canonical {
		x, r, u := spec.xOne, spec.rOne, spec.targetOne
		if phase == "two" {
			x, r, u = spec.xTwo, spec.rTwo, spec.targetTwo
		}

		uGiven := u != inputs.Unspecified
		if !uGiven && !s.settings.UseTypeValU {
			return 0, 0, 0, true
		}
		target = u
		if !uGiven {
			target = frac * uPre
		}
		if x != inputs.Unspecified {
			return target, x, r, false
		}
		// X unspecified: reseed at the canonical angle with R now a real
		// specified value, not the sentinel.
		return target, math.Sin(s.baseAngle()), math.Cos(s.baseAngle()), false
	}

	// Bulk mode (spec.md §4.1 "Bulk mode"): canonical angle, target is
	// always a fraction of the pre-fault voltage.
	return frac * uPre, math.Sin(s.baseAngle()), math.Cos(s.baseAngle()), false
}

func (s *ShuntSolver) baseAngle() float64 {
	if s.settings.BaseAngle == 0 {
		return 1.471
	}
	return s.settings.BaseAngle
}

func polarImpedance(x0, r0 float64) (zMod, zAngle float64) {
	if r0 == inputs.Unspecified {
		return x0, math.Pi / 2.0
	}
	return math.Sqrt(r0*r0+x0*x0), math.Atan2(x0, r0)
}

func makeOutcome(bus int, phase string, r0, zMod, zAngle float64, uObs Value) ShuntOutcome {
	x := Known(zMod * math.Sin(zAngle))
	r := SentinelValue(ReasonUnspecified)
	if r0 != inputs.Unspecified {
		r = Known(zMod * math.Cos(zAngle))
	}
	return ShuntOutcome{Bus: bus, Phase: phase, R: r, X: x, UObs: uObs}
}

// probeAndReadResidual rewrites the one-shot fault scenario at bus with
// the given polar impedance, runs the simulator for shuntFaultDuration,
// and returns the last "Uкз=<value> кВ" line the run logged. The log sink
// is subscribed *before* the run starts — never after — so a line
// emitted while the transient is in progress is never missed (spec.md
// §4.1's "Contract guarantees"), matching
// rastr_operations._create_shunt_scn + FWDynamic().Run().
func (s *ShuntSolver) probeAndReadResidual(ctx context.Context, bus int, zMod, zAngle, r0 float64) (float64, bool, error) {
	ch, unsubscribe := s.facade.Subscribe()
	defer unsubscribe()

	x := zMod * math.Sin(zAngle)
	row, err := s.facade.AddTableRow(ctx, "DFWAutoActionScn")
	if err != nil {
		return 0, false, fmt.Errorf("solver: adding shunt scenario row: %w", err)
	}
	if err := s.facade.SetVal(ctx, "DFWAutoActionScn", "Formula", simfacade.RowIndex(row), strconv.FormatFloat(x, 'f', -1, 64)); err != nil {
		return 0, false, fmt.Errorf("solver: setting shunt X: %w", err)
	}
	if r0 != inputs.Unspecified {
		r := zMod * math.Cos(zAngle)
		rRow, err := s.facade.AddTableRow(ctx, "DFWAutoActionScn")
		if err != nil {
			return 0, false, fmt.Errorf("solver: adding shunt R row: %w", err)
		}
		if err := s.facade.SetVal(ctx, "DFWAutoActionScn", "Formula", simfacade.RowIndex(rRow), strconv.FormatFloat(r, 'f', -1, 64)); err != nil {
			return 0, false, fmt.Errorf("solver: setting shunt R: %w", err)
		}
	}
	_ = bus
	maxTime := shuntFaultDuration
	if _, err := s.facade.RunDynamic(ctx, false, &maxTime); err != nil {
		return 0, false, err
	}

	return drainResidualVoltage(ctx, ch)
}

// drainResidualVoltage reads every already-queued log line off ch without
// blocking and parses the last "Uкз=<value> кВ" line, accepting both "."
// and "," decimal separators (spec.md §9 Open Questions).
func drainResidualVoltage(ctx context.Context, ch <-chan simfacade.LogEvent) (float64, bool, error) {
	var last string
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return parseUkz(last)
			}
			if strings.Contains(ev.Description, "Uкз=") {
				last = ev.Description
			}
		case <-ctx.Done():
			return parseUkz(last)
		default:
			return parseUkz(last)
		}
	}
}

func parseUkz(line string) (float64, bool, error) {
	if line == "" {
		return 0.0, false, nil
	}
	afterEq := strings.SplitN(line, "Uкз=", 2)
	if len(afterEq) != 2 {
		return 0.0, false, nil
	}
	field := strings.SplitN(afterEq[1], " кВ", 2)[0]
	field = strings.TrimSpace(strings.Replace(field, ",", ".", 1))
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0.0, false, nil
	}
	return v, true, nil
}
