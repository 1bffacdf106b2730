// Package progress plumbs the monotonically increasing progress counter
// described in SPEC_FULL.md §5 out of a running calculation to a foreign
// event loop (a GUI, a CLI spinner, a test assertion) without blocking the
// solver that is producing it.
//
// The design mirrors cloudlus/server.go's dispatcher goroutine, which
// multiplexes state changes onto typed channels rather than sharing mutable
// state across goroutines, and jhkimqd-chaos-utils/pkg/reporting's
// ProgressReporter, which separates "what happened" from "how it's shown".
package progress

// Reporter receives progress ticks. Implementations must not block the
// caller for long; Report is called from the solver's own goroutine on
// every unit of work completed.
type Reporter interface {
	// Report is called with the total number of completed units of work
	// so far. Values are monotonically non-decreasing within one
	// calculation and never exceed the value returned by Max.
	Report(done int)
}

// Func adapts a plain function to the Reporter interface.
type Func func(done int)

// Report implements Reporter.
func (f Func) Report(done int) {
	if f != nil {
		f(done)
	}
}

// Noop discards all progress reports. It is the zero-value-safe default
// used when a caller does not care about progress.
var Noop Reporter = Func(nil)

// Tracker accumulates a monotonic count and forwards it to a Reporter. Each
// solver owns exactly one Tracker for the duration of its Run call, exactly
// as each `*_calc.py` in original_source/python_dss owns one `progress`
// local variable and one `self._progress_callback`.
type Tracker struct {
	reporter Reporter
	done     int
	max      int
}

// NewTracker creates a Tracker that reports to r, declaring an upper bound
// max so callers/tests can assert the monotonic-and-bounded invariant from
// spec.md §8 ("last value <= declared max").
func NewTracker(r Reporter, max int) *Tracker {
	if r == nil {
		r = Noop
	}
	return &Tracker{reporter: r, max: max}
}

// Advance increments the tracker by n (n may be zero, to force a re-report
// of the current value, matching the Python callers that invoke the
// callback with the current progress both before and after a step) and
// reports the new total.
func (t *Tracker) Advance(n int) {
	t.done += n
	if t.max > 0 && t.done > t.max {
		t.done = t.max
	}
	t.reporter.Report(t.done)
}

// Done returns the number of units of work reported so far.
func (t *Tracker) Done() int { return t.done }

// Max returns the declared upper bound.
func (t *Tracker) Max() int { return t.max }
