package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/SavinovAleksandr/dss/solver"
)

var mdpCmd = &cobra.Command{
	Use:   "mdp",
	Short: "Establish the maximum-permissible-flow boundary for the configured cross-section",
	Args:  cobra.NoArgs,
	RunE:  runMDP,
}

func runMDP(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, cleanup, err := setupRuntime(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	tmpFile := filepath.Join(rt.cfg.Results.Root, "mdp_tmp.rst")
	defer os.Remove(tmpFile)
	s, err := solver.NewMDPSolver(
		rt.facade, rt.cfg.MDP, rt.cfg.PA, tmpFile, rt.bundle.CrossSectionPath,
		rt.bundle.ContinuationFile, rt.bundle.PAFile, rt.bundle.CrossSections,
		rt.bundle.PlotVariables, rt.logger, rt.metrics, rt.tracker,
	)
	if err != nil {
		return fmt.Errorf("dss mdp: %w", err)
	}

	results, err := s.Run(ctx, rt.bundle.Regimes, rt.bundle.Variants, rt.bundle.Scenarios, rt.bundle.RepairFile, rt.cfg.DynBatch)
	if err != nil {
		return fmt.Errorf("dss mdp: %w", err)
	}
	journal(rt, "mdp", time.Now(), results)
	rt.logger.Info(fmt.Sprintf("mdp: journaled %d result(s)", results.Len()))
	return nil
}
