package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SavinovAleksandr/dss/solver"
)

var dynBatchCmd = &cobra.Command{
	Use:   "dyn-batch",
	Short: "Run a dynamic stability verdict per (regime, variant, scenario), with and without emergency automatics",
	Args:  cobra.NoArgs,
	RunE:  runDynBatch,
}

func runDynBatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, cleanup, err := setupRuntime(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	r, err := solver.NewDynBatchRunner(
		rt.facade, rt.cfg.DynBatch, rt.bundle.PAFile, rt.cfg.PA.LPNSuffix,
		rt.bundle.CrossSectionPath, rt.bundle.PlotVariables, nil,
		rt.cfg.Results.Root, rt.logger, rt.metrics, rt.tracker,
	)
	if err != nil {
		return fmt.Errorf("dss dyn-batch: %w", err)
	}

	results, err := r.Run(ctx, rt.bundle.Regimes, rt.bundle.Variants, rt.bundle.Scenarios, rt.bundle.RepairFile)
	if err != nil {
		return fmt.Errorf("dss dyn-batch: %w", err)
	}
	journal(rt, "dynbatch", time.Now(), results)
	rt.logger.Info(fmt.Sprintf("dyn-batch: journaled %d result(s)", results.Len()))
	return nil
}
