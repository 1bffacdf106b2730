package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SavinovAleksandr/dss/solver"
)

var critTimeCmd = &cobra.Command{
	Use:   "crit-time",
	Short: "Bisect the critical fault-clearing time per (regime, variant, scenario)",
	Args:  cobra.NoArgs,
	RunE:  runCritTime,
}

func runCritTime(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, cleanup, err := setupRuntime(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	s, err := solver.NewCritTimeSolver(rt.facade, rt.builder, rt.cfg.CritTime, rt.logger, rt.metrics, rt.tracker)
	if err != nil {
		return fmt.Errorf("dss crit-time: %w", err)
	}

	results, err := s.Run(ctx, rt.bundle.Regimes, rt.bundle.Variants, rt.bundle.Scenarios, rt.bundle.RepairFile)
	if err != nil {
		return fmt.Errorf("dss crit-time: %w", err)
	}
	journal(rt, "crittime", time.Now(), results)
	rt.logger.Info(fmt.Sprintf("crit-time: journaled %d result(s)", results.Len()))
	return nil
}
