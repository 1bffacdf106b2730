package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SavinovAleksandr/dss/inputs"
	"github.com/SavinovAleksandr/dss/solver"
)

var shuntTaskPath string

var shuntCmd = &cobra.Command{
	Use:   "shunt",
	Short: "Find fault-shunt (R, X) per bus that yields the configured residual voltage",
	Args:  cobra.NoArgs,
	RunE:  runShunt,
}

func init() {
	shuntCmd.Flags().StringVar(&shuntTaskPath, "tasks", "", "shunt-task CSV file (overrides the bundle's shunt_task_path)")
}

func runShunt(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	rt, cleanup, err := setupRuntime(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	path := shuntTaskPath
	if path == "" {
		path = rt.bundle.ShuntTaskPath
	}
	var tasks []inputs.ShuntTask
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("dss shunt: opening task file: %w", err)
		}
		defer f.Close()
		tasks, err = inputs.ParseShuntTasks(f)
		if err != nil {
			return fmt.Errorf("dss shunt: parsing task file: %w", err)
		}
	}

	s, err := solver.NewShuntSolver(rt.facade, rt.builder, rt.cfg.Shunt, tasks, rt.logger, rt.metrics, rt.tracker)
	if err != nil {
		return fmt.Errorf("dss shunt: %w", err)
	}

	results, err := s.Run(ctx, rt.bundle.Regimes, rt.bundle.Variants, rt.bundle.RepairFile)
	if err != nil {
		return fmt.Errorf("dss shunt: %w", err)
	}
	journal(rt, "shunt", time.Now(), results)
	rt.logger.Info(fmt.Sprintf("shunt: journaled %d result(s)", results.Len()))
	return nil
}
