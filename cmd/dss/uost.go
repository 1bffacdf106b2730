package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SavinovAleksandr/dss/solver"
)

var uostCmd = &cobra.Command{
	Use:   "uost",
	Short: "Locate the uncontrolled-separation boundary along each faulted line",
	Args:  cobra.NoArgs,
	RunE:  runUOst,
}

func runUOst(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, cleanup, err := setupRuntime(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := solver.NewUOstSolver(rt.facade, rt.bundle.PlotVariables, rt.logger, rt.metrics, rt.tracker)
	if err != nil {
		return fmt.Errorf("dss uost: %w", err)
	}

	results, err := s.Run(ctx, rt.bundle.Regimes, rt.bundle.Variants, rt.bundle.Scenarios, rt.bundle.RepairFile)
	if err != nil {
		return fmt.Errorf("dss uost: %w", err)
	}
	journal(rt, "uost", time.Now(), results)
	rt.logger.Info(fmt.Sprintf("uost: journaled %d result(s)", results.Len()))
	return nil
}
