package solver

import "gonum.org/v1/gonum/floats"

// state is the small state machine {Probing, Tightening, Stagnated, Done}
// called for by the REDESIGN FLAGS in spec.md §9, replacing the nested
// while/break bisection loops of
// original_source/python_dss/rastr_operations/rastr_operations.py's
// find_shunt_kz/find_crt_time and
// original_source/python_dss/calculations/{mdp_stability,uost_stability}.py.
// CritTimeSolver, MDPSolver, and UOstSolver each drive one stepper through
// their own probe logic; the stepper only tracks convergence bookkeeping
// shared across all three: iteration bounds and stagnation detection.
type state int

const (
	stateProbing state = iota
	stateTightening
	stateStagnated
	stateDone
)

func (s state) String() string {
	switch s {
	case stateProbing:
		return "Probing"
	case stateTightening:
		return "Tightening"
	case stateStagnated:
		return "Stagnated"
	case stateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// bisector tracks an iteration count plus a stagnation counter across
// successive midpoint proposals (the bracket itself stays in the
// caller), shared by CritTimeSolver (dt), MDPSolver (K), and UOstSolver
// (ℓ and |Z|).
type bisector struct {
	maxIterations      int
	stagnationWindow   int
	stagnationEps      float64
	iterations         int
	stagnationStreak   int
	lastMidpoint       float64
	haveLastMidpoint   bool
	st                 state
}

// newBisector builds a bisector with the given iteration bound, the
// number of consecutive near-identical midpoints that counts as
// stagnation, and the tolerance used to compare consecutive midpoints.
func newBisector(maxIterations, stagnationWindow int, stagnationEps float64) *bisector {
	return &bisector{
		maxIterations:    maxIterations,
		stagnationWindow: stagnationWindow,
		stagnationEps:    stagnationEps,
		st:               stateProbing,
	}
}

// advance records one proposed midpoint and returns the resulting state.
// Callers call this once per loop iteration. CritTimeSolver, MDPSolver and
// UOstSolver's line bisection call it after computing the next midpoint
// but before probing it, so a Stagnated/budget-exhausted verdict costs no
// extra simulator call; UOstSolver's |Z| refinement calls it after
// probing the midpoint.
func (b *bisector) advance(midpoint float64) state {
	if b.st == stateDone || b.st == stateStagnated {
		return b.st
	}

	b.iterations++
	if b.haveLastMidpoint && floats.EqualWithinAbs(midpoint, b.lastMidpoint, b.stagnationEps) {
		b.stagnationStreak++
	} else {
		b.stagnationStreak = 0
	}
	b.lastMidpoint = midpoint
	b.haveLastMidpoint = true

	switch {
	case b.stagnationWindow > 0 && b.stagnationStreak >= b.stagnationWindow:
		b.st = stateStagnated
	case b.iterations > b.maxIterations:
		b.st = stateStagnated
	default:
		b.st = stateTightening
	}
	return b.st
}

// budgetExhausted reports whether advance's iteration bound, rather than
// the stagnation window, caused the Stagnated verdict. Both map to a
// Sentinel on return, but telemetry distinguishes them (spec.md §7 items
// 4 vs 5).
func (b *bisector) budgetExhausted() bool {
	return b.iterations > b.maxIterations
}

func (b *bisector) finish() { b.st = stateDone }
