// Package solver implements the five iterative search algorithms
// (ShuntSolver, CritTimeSolver, DynBatchRunner, MDPSolver, UOstSolver) that
// form the core of the batch engine, plus the shared result containers
// (ResultAggregator) they all feed.
package solver

import "encoding/json"

// Reason explains why a Value is a Sentinel instead of a known number.
type Reason int

const (
	// ReasonUnspecified is the zero value. Solvers use it for a quantity
	// that was not given or not obtained (an unspecified shunt R, a shunt
	// probe with no residual-voltage reading, UOst residual voltages that
	// were not read), and UnmarshalJSON decodes -1 to it.
	ReasonUnspecified Reason = iota
	// ReasonCaseUnbalanced records taxonomy item 2 (spec.md §7):
	// rgm()/apply_variant() returned false.
	ReasonCaseUnbalanced
	// ReasonSimOpFailed records taxonomy item 3: a simulator operation
	// returned a typed simfacade error.
	ReasonSimOpFailed
	// ReasonBudgetExhausted records taxonomy item 4: a bounded loop hit
	// its iteration bound without converging.
	ReasonBudgetExhausted
	// ReasonStagnated records taxonomy item 5: a bisection/continuation
	// loop detected no further progress. Solvers also return it when ctx
	// is cancelled in the middle of a search.
	ReasonStagnated
	// ReasonNoBoundary is UOstSolver-specific: Phase A never found a sign
	// change, so no stability boundary exists along the line (spec.md
	// §4.5, "distance = 100.0 if Phase A never bracketed").
	ReasonNoBoundary
	// ReasonNoBoundaryAfterGrowth is UOstSolver-specific: both initial
	// probes were unstable, so Phase B's shunt-growth path ran; it is set
	// whatever state that path ended in (spec.md §4.5,
	// "distance = -1.0 if Phase B path was taken").
	ReasonNoBoundaryAfterGrowth
)

func (r Reason) String() string {
	switch r {
	case ReasonCaseUnbalanced:
		return "case_unbalanced"
	case ReasonSimOpFailed:
		return "sim_op_failed"
	case ReasonBudgetExhausted:
		return "budget_exhausted"
	case ReasonStagnated:
		return "stagnated"
	case ReasonNoBoundary:
		return "no_boundary"
	case ReasonNoBoundaryAfterGrowth:
		return "no_boundary_after_growth"
	default:
		return "unspecified"
	}
}

// Value is the sum type `Known(float64) | Sentinel(Reason)` called for by
// the REDESIGN FLAGS in spec.md §9 ("sentinel values propagate as sum-type
// variants ... rather than magic floats"). The zero Value is a Sentinel
// with ReasonUnspecified; construct others via Known or SentinelValue.
type Value struct {
	known  bool
	number float64
	reason Reason
}

// Known wraps a computed numeric result.
func Known(v float64) Value { return Value{known: true, number: v} }

// SentinelValue wraps an explanation for why no number was computed.
func SentinelValue(r Reason) Value { return Value{known: false, reason: r} }

// IsKnown reports whether v holds a computed number.
func (v Value) IsKnown() bool { return v.known }

// Float returns the numeric value and true if v is Known, or (0, false)
// if v is a Sentinel.
func (v Value) Float() (float64, bool) { return v.number, v.known }

// MustFloat returns the numeric value, panicking if v is a Sentinel. Used
// only in tests and call sites that have already checked IsKnown.
func (v Value) MustFloat() float64 {
	if !v.known {
		panic("solver: MustFloat called on a Sentinel Value: " + v.reason.String())
	}
	return v.number
}

// Reason returns the sentinel reason, or ReasonUnspecified if v is Known.
func (v Value) Reason() Reason {
	if v.known {
		return ReasonUnspecified
	}
	return v.reason
}

// OrSentinel returns -1.0 for a Sentinel and the wrapped number for Known,
// matching spec.md §3's on-disk convention (-1.0 meaning "not computed").
func (v Value) OrSentinel() float64 {
	if v.known {
		return v.number
	}
	return -1.0
}

// MarshalJSON serializes Known as the bare number and Sentinel as -1, so
// JSON/report consumers written against the original -1.0 convention
// (spec.md §3) keep working without knowing about the Go sum type.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.OrSentinel())
}

// UnmarshalJSON treats exactly -1 as a Sentinel(ReasonUnspecified) and any
// other number as Known.
func (v *Value) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f == -1.0 {
		*v = SentinelValue(ReasonUnspecified)
		return nil
	}
	*v = Known(f)
	return nil
}
