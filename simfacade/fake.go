package simfacade

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Fake is an in-memory, scriptable Facade for unit-testing solvers without
// an external simulator binary. Tests seed its fields and script functions
// directly rather than replaying a wire protocol; this mirrors the way
// katalvlaran-lvlath's flow tests build small deterministic fixtures
// in-process instead of faking out an external dependency.
type Fake struct {
	mu sync.Mutex

	Cells   map[string]float64
	CellStr map[string]string
	Points  map[string][]Point
	Rows    map[string]int

	LoadFn           func(ctx context.Context, path string) error
	RunSteadyStateFn func(ctx context.Context) (bool, error)
	ApplyVariantFn   func(ctx context.Context, ordinal int, repairFile string) (bool, error)
	RunDynamicFn     func(ctx context.Context, ems bool, maxTime *float64) (DynamicResult, error)
	RunContinuationFn func(ctx context.Context) (float64, error)
	StepFn           func(ctx context.Context, coef float64, init bool) (float64, error)
	SelectionFn      func(ctx context.Context, table, predicate string) ([]int, error)

	calls   []string
	closed  bool
	subs    map[chan LogEvent]struct{}
}

// NewFake returns a ready-to-seed Fake with empty tables.
func NewFake() *Fake {
	return &Fake{
		Cells:   map[string]float64{},
		CellStr: map[string]string{},
		Points:  map[string][]Point{},
		Rows:    map[string]int{},
		subs:    map[chan LogEvent]struct{}{},
	}
}

func cellKey(table, col string, sel Selector) string {
	return fmt.Sprintf("%s.%s[%s]", table, col, sel.String())
}

// Calls returns the operations invoked so far, in order, for assertions
// about call sequencing (e.g. "ApplyVariant before RunDynamic").
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) record(op string) {
	f.calls = append(f.calls, op)
}

// Emit pushes a LogEvent to every current subscriber, for tests that
// exercise the Uкз log-line parsing path in ShuntSolver.
func (f *Fake) Emit(ev LogEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (f *Fake) Load(ctx context.Context, path string) error {
	f.mu.Lock()
	f.record("Load:" + path)
	f.mu.Unlock()
	if f.LoadFn != nil {
		return f.LoadFn(ctx, path)
	}
	return nil
}

// Save touches path on disk so tests asserting baseline-file lifecycle
// (casebuilder's create-then-remove pattern) can observe it, mirroring
// what a real simulator backend would leave behind.
func (f *Fake) Save(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Save:" + path)
	if path == "" {
		return nil
	}
	file, err := os.Create(path)
	if err != nil {
		return &OpError{Op: "Save", Path: path, Err: err}
	}
	return file.Close()
}

func (f *Fake) Add(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Add:" + path)
	return nil
}

func (f *Fake) RunSteadyState(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.record("RunSteadyState")
	f.mu.Unlock()
	if f.RunSteadyStateFn != nil {
		return f.RunSteadyStateFn(ctx)
	}
	return true, nil
}

func (f *Fake) ApplyVariant(ctx context.Context, ordinal int, repairFile string) (bool, error) {
	f.mu.Lock()
	f.record(fmt.Sprintf("ApplyVariant:%d", ordinal))
	f.mu.Unlock()
	if f.ApplyVariantFn != nil {
		return f.ApplyVariantFn(ctx, ordinal, repairFile)
	}
	return true, nil
}

func (f *Fake) ConfigureDynamics(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ConfigureDynamics")
	return nil
}

func (f *Fake) RunDynamic(ctx context.Context, ems bool, maxTime *float64) (DynamicResult, error) {
	f.mu.Lock()
	f.record("RunDynamic")
	f.mu.Unlock()
	if f.RunDynamicFn != nil {
		return f.RunDynamicFn(ctx, ems, maxTime)
	}
	return DynamicResult{Success: true, Stable: true}, nil
}

func (f *Fake) RunContinuation(ctx context.Context) (float64, error) {
	f.mu.Lock()
	f.record("RunContinuation")
	f.mu.Unlock()
	if f.RunContinuationFn != nil {
		return f.RunContinuationFn(ctx)
	}
	return 0, nil
}

func (f *Fake) Step(ctx context.Context, coef float64, init bool) (float64, error) {
	f.mu.Lock()
	f.record(fmt.Sprintf("Step:%g:%v", coef, init))
	f.mu.Unlock()
	if f.StepFn != nil {
		return f.StepFn(ctx, coef, init)
	}
	return coef, nil
}

func (f *Fake) GetValF64(ctx context.Context, table, col string, sel Selector) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetValF64:" + cellKey(table, col, sel))
	v, ok := f.Cells[cellKey(table, col, sel)]
	if !ok {
		return 0, &OpError{Op: "GetValF64", Path: cellKey(table, col, sel), Err: fmt.Errorf("no such cell")}
	}
	return v, nil
}

func (f *Fake) GetValI64(ctx context.Context, table, col string, sel Selector) (int64, error) {
	v, err := f.GetValF64(ctx, table, col, sel)
	return int64(v), err
}

func (f *Fake) GetValString(ctx context.Context, table, col string, sel Selector) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetValString:" + cellKey(table, col, sel))
	v, ok := f.CellStr[cellKey(table, col, sel)]
	if !ok {
		return "", &OpError{Op: "GetValString", Path: cellKey(table, col, sel), Err: fmt.Errorf("no such cell")}
	}
	return v, nil
}

func (f *Fake) SetVal(ctx context.Context, table, col string, sel Selector, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := cellKey(table, col, sel)
	f.record("SetVal:" + key)
	switch v := value.(type) {
	case float64:
		f.Cells[key] = v
	case int:
		f.Cells[key] = float64(v)
	case string:
		f.CellStr[key] = v
	default:
		f.CellStr[key] = fmt.Sprint(v)
	}
	return nil
}

func (f *Fake) Selection(ctx context.Context, table, predicate string) ([]int, error) {
	f.mu.Lock()
	fn := f.SelectionFn
	f.record("Selection:" + table + ":" + predicate)
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, table, predicate)
	}
	return nil, nil
}

func (f *Fake) AddTableRow(ctx context.Context, table string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Rows[table]++
	row := f.Rows[table]
	f.record(fmt.Sprintf("AddTableRow:%s:%d", table, row))
	return row, nil
}

func (f *Fake) GetPoints(ctx context.Context, table, col string, sel Selector) ([]Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := cellKey(table, col, sel)
	f.record("GetPoints:" + key)
	return f.Points[key], nil
}

func (f *Fake) SetLineForUostCalc(ctx context.Context, branch1, branch2 int, r, x, pctLen float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("SetLineForUostCalc:%d:%d", branch1, branch2))
	return nil
}

func (f *Fake) ChangeRXForUostCalc(ctx context.Context, xRowID int, x float64, rRowID int, r float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("ChangeRXForUostCalc:%d:%d", xRowID, rRowID))
	return nil
}

func (f *Fake) SynthesizeFromLPN(ctx context.Context, lpnFile, lpnSuffix, scenarioFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SynthesizeFromLPN:" + lpnFile)
	return nil
}

func (f *Fake) FindTemplatePath(ext string) (string, error) {
	return "template" + ext, nil
}

func (f *Fake) Subscribe() (<-chan LogEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan LogEvent, 64)
	f.subs[ch] = struct{}{}
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
	}
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
