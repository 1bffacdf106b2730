// Package simfacade defines the uniform interface onto the external
// steady-state / electromechanical-transient simulator (component C1 in
// SPEC_FULL.md §2). It treats the simulator as an opaque façade: every
// solver in package solver talks only to the Facade interface, never to a
// concrete simulator binding, matching spec.md §6.2.
package simfacade

import (
	"context"
	"strconv"
	"time"
)

// Selector addresses a single table row, either by raw row index or by a
// simulator-native predicate string such as "ip = 12 & iq = 34 & np = 1".
// This replaces the dynamically-typed Union[str, int] selector in
// original_source/python_dss/rastr_operations/rastr_operations.py's
// get_val/set_val/selection, per SPEC_FULL.md §6.2 and the REDESIGN FLAGS
// in spec.md §9 ("eliminate the runtime-dispatch class hierarchy").
type Selector struct {
	index     int
	predicate string
	isIndex   bool
}

// RowIndex builds a Selector that addresses a row by its integer index.
func RowIndex(i int) Selector { return Selector{index: i, isIndex: true} }

// Predicate builds a Selector that addresses rows by a simulator predicate
// string, e.g. "ny=501".
func Predicate(p string) Selector { return Selector{predicate: p} }

// String renders the selector for logging and for facades that need a
// textual predicate regardless of how it was constructed.
func (s Selector) String() string {
	if s.isIndex {
		return predicateFromIndex(s.index)
	}
	return s.predicate
}

func predicateFromIndex(i int) string {
	// Row-index encoding for facades that take a textual predicate:
	// process.go sends it over the wire for RowIndex selectors, and Fake
	// uses it in its cell keys.
	return "#" + strconv.Itoa(i)
}

// DynamicResult is the outcome of one RunDynamic call (spec.md §6.2).
type DynamicResult struct {
	Success     bool
	Stable      bool
	Message     string
	TimeReached float64
}

// Point is one sample extracted from a post-run time series
// (GetPoints / "get_points_from_exit_file" in spec.md §6.2).
type Point struct {
	X float64
	Y float64
}

// LogEvent is one line from the simulator's event sink, the channel
// ShuntSolver subscribes to in order to parse the
// "Uкз=<value> кВ" residual-voltage line (spec.md §4.1, §6.2).
type LogEvent struct {
	Code        int
	Level       int
	Description string
}

// OpError is the typed error returned for taxonomy item 3 in SPEC_FULL.md
// §7 (simulator operation failed): bad path, missing template,
// type-mismatched cell.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	if e.Path != "" {
		return "simfacade: " + e.Op + " " + e.Path + ": " + e.Err.Error()
	}
	return "simfacade: " + e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// Facade is the uniform interface onto the external simulator (spec.md
// §6.2). Every method that can block for the duration of a simulator
// operation takes a context.Context so callers can enforce a deadline or
// cooperative cancellation, per SPEC_FULL.md §5.
type Facade interface {
	// Load, Save, and Add round-trip case/scenario/etc. files.
	Load(ctx context.Context, path string) error
	Save(ctx context.Context, path string) error
	Add(ctx context.Context, path string) error

	// RunSteadyState runs "rgm()" and reports whether the case converged.
	RunSteadyState(ctx context.Context) (bool, error)
	// ApplyVariant applies the repair-schema variant at the given ordinal
	// from repairFile and then runs steady state.
	ApplyVariant(ctx context.Context, ordinal int, repairFile string) (bool, error)

	// ConfigureDynamics sets the simulator-side dynamic switches described
	// in spec.md §6.2 (max result files = 1, snap auto-load = 1, snap max
	// count = 1).
	ConfigureDynamics(ctx context.Context) error
	// RunDynamic runs one electromechanical transient. ems selects the
	// fast verdict-only path; maxTime, if non-nil, overrides the
	// simulator's total time horizon for this run only.
	RunDynamic(ctx context.Context, ems bool, maxTime *float64) (DynamicResult, error)

	// RunContinuation exhausts the continuation ("utjazhelenie") engine
	// and returns the final coefficient sum.
	RunContinuation(ctx context.Context) (float64, error)
	// Step performs a single continuation step with the supplied
	// coefficient, returning the resulting coefficient sum.
	Step(ctx context.Context, coef float64, init bool) (float64, error)

	// GetValF64, GetValI64, and GetValString are the typed cell accessors
	// that replace the Python layer's chained try/except coercion
	// (rastr_operations.get_val), per SPEC_FULL.md §6.2.
	GetValF64(ctx context.Context, table, col string, sel Selector) (float64, error)
	GetValI64(ctx context.Context, table, col string, sel Selector) (int64, error)
	GetValString(ctx context.Context, table, col string, sel Selector) (string, error)
	SetVal(ctx context.Context, table, col string, sel Selector, value any) error

	// Selection enumerates row indices matching predicate.
	Selection(ctx context.Context, table, predicate string) ([]int, error)
	// AddTableRow appends a row to table and returns its index.
	AddTableRow(ctx context.Context, table string) (int, error)

	// GetPoints extracts a post-run time series for one (table, col,
	// selector).
	GetPoints(ctx context.Context, table, col string, sel Selector) ([]Point, error)

	// SetLineForUostCalc and ChangeRXForUostCalc encapsulate the
	// line-splitting arithmetic UOstSolver needs (spec.md §4.5, §6.2).
	SetLineForUostCalc(ctx context.Context, branch1, branch2 int, r, x, pctLen float64) error
	ChangeRXForUostCalc(ctx context.Context, xRowID int, x float64, rRowID int, r float64) error

	// SynthesizeFromLPN invokes the simulator's LAPNUSMZU-equivalent
	// operation to build a scenario from an LPN-format automatics file
	// (spec.md §6.2, SPEC_FULL.md §4.6).
	SynthesizeFromLPN(ctx context.Context, lpnFile, lpnSuffix, scenarioFile string) error

	// FindTemplatePath resolves the per-file-type simulator template
	// required for Load/Save to specify the correct schema.
	FindTemplatePath(ext string) (string, error)

	// Subscribe installs a log-event observer and returns the channel plus
	// an unsubscribe function that MUST be called on every exit path
	// (spec.md §6.2 "Event sink"; SPEC_FULL.md §6.2).
	Subscribe() (ch <-chan LogEvent, unsubscribe func())

	// Close releases the simulator handle. Implementations must be safe
	// to call multiple times.
	Close() error
}

// DefaultTimeout is used when config.SimulatorSettings.Timeout is zero.
const DefaultTimeout = 10 * time.Minute
