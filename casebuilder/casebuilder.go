// Package casebuilder applies a regime and an optional repair-schema
// variant to the simulator, then snapshots the resulting steady state as
// a baseline file every subsequent probe resets to (component C2).
//
// The scratch-directory lifecycle here is adapted from the teacher's
// cloudlus/job.go Job.setup/teardown pair: setup mints a fresh working
// location and populates it, teardown restores the prior state and
// removes everything created. Job used a single process-wide working
// directory per job; Builder uses a single baseline *file* per (regime,
// variant) pair, since the simulator itself — not the OS process — is the
// thing being reset between probes.
package casebuilder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/simfacade"
)

// Builder owns the baseline snapshot file for one (regime, variant) pair.
type Builder struct {
	facade     simfacade.Facade
	resultsDir string

	baselinePath string
}

// New returns a Builder that will write baseline snapshots under
// resultsDir.
func New(facade simfacade.Facade, resultsDir string) *Builder {
	return &Builder{facade: facade, resultsDir: resultsDir}
}

// EstablishBaseline loads regime, applies variant (unless it is the
// sentinel Normal variant, in which case it just runs steady state), and
// — if the case balances — saves the result as this Builder's baseline.
// It reports false, matching spec.md §7 item 2, if the case fails to
// balance; callers must skip every scenario for this (regime, variant)
// pair in that case rather than treating it as an error.
func (b *Builder) EstablishBaseline(ctx context.Context, regime inputs.Regime, variant inputs.Variant, repairFile inputs.RepairSchemaFile) (bool, error) {
	if err := b.Close(); err != nil {
		return false, err
	}
	if err := b.facade.Load(ctx, regime.Path); err != nil {
		return false, fmt.Errorf("casebuilder: loading regime %q: %w", regime.Path, err)
	}

	var balanced bool
	var err error
	if variant.IsNormal() {
		balanced, err = b.facade.RunSteadyState(ctx)
	} else {
		balanced, err = b.facade.ApplyVariant(ctx, variant.Ordinal, string(repairFile))
	}
	if err != nil {
		return false, fmt.Errorf("casebuilder: applying variant %q: %w", variant.Name, err)
	}
	if !balanced {
		return false, nil
	}

	path, err := b.snapshotPath(regime, variant)
	if err != nil {
		return false, err
	}
	if err := b.facade.Save(ctx, path); err != nil {
		return false, fmt.Errorf("casebuilder: saving baseline %q: %w", path, err)
	}
	b.baselinePath = path
	return true, nil
}

// ResetToBaseline reloads the last established baseline. Every probe in
// every solver calls this before mutating simulator state, per spec.md
// §3's "reset-before-probe" invariant.
func (b *Builder) ResetToBaseline(ctx context.Context) error {
	if b.baselinePath == "" {
		return fmt.Errorf("casebuilder: no baseline established")
	}
	if err := b.facade.Load(ctx, b.baselinePath); err != nil {
		return fmt.Errorf("casebuilder: resetting to baseline %q: %w", b.baselinePath, err)
	}
	return nil
}

// BaselinePath returns the current baseline snapshot's path, or "" when
// no baseline is established.
func (b *Builder) BaselinePath() string { return b.baselinePath }

// Close removes the baseline snapshot file, matching the teacher's
// Job.teardown cleanup and the Testable Properties §8 requirement that no
// *.rst/*.scn temp files remain in the results directory after a run.
func (b *Builder) Close() error {
	if b.baselinePath == "" {
		return nil
	}
	err := os.Remove(b.baselinePath)
	b.baselinePath = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("casebuilder: removing baseline: %w", err)
	}
	return nil
}

func (b *Builder) snapshotPath(regime inputs.Regime, variant inputs.Variant) (string, error) {
	if err := os.MkdirAll(b.resultsDir, 0o755); err != nil {
		return "", fmt.Errorf("casebuilder: creating results dir %q: %w", b.resultsDir, err)
	}
	name := fmt.Sprintf("baseline-%s-%s-%s.rst", filepath.Base(regime.Path), variant.Name, uuid.NewString())
	return filepath.Join(b.resultsDir, name), nil
}
