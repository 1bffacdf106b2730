// Command dss drives one batch stability calculation: it loads a config
// file and an input bundle (regimes, variants, scenarios, auxiliary
// files), runs the one solver named by the subcommand against them, and
// journals the results to a resultstore.Store once that solver's Run
// returns.
//
// The rootCmd/subcommand layout follows jhkimqd-chaos-utils's
// cmd/chaos-runner — the teacher's own cmd/cloudlus uses the plain flag
// package and a hand-rolled dispatch table, but nothing else in the
// corpus shows an idiomatic cobra CLI, and SPEC_FULL.md's per-solver
// subcommand shape (dss shunt, dss crit-time, dss dyn-batch, dss mdp,
// dss uost) maps directly onto cobra's AddCommand model.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	bundleFile string
	verbose    bool
	version    = "dev"
)

var rootCmd = &cobra.Command{
	Use:     "dss",
	Short:   "Batch power-system stability analysis engine",
	Long:    `dss runs shunt, critical-time, dynamic-batch, MDP, and uncontrolled-separation stability calculations over a declared set of regimes, variants, and scenarios.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default settings if omitted)")
	rootCmd.PersistentFlags().StringVar(&bundleFile, "bundle", "", "input bundle file (regimes/variants/scenarios)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose (debug-level) logging")

	rootCmd.AddCommand(shuntCmd)
	rootCmd.AddCommand(critTimeCmd)
	rootCmd.AddCommand(dynBatchCmd)
	rootCmd.AddCommand(mdpCmd)
	rootCmd.AddCommand(uostCmd)
}

// Commands are defined in separate files:
// - shuntCmd in shunt.go
// - critTimeCmd in crittime.go
// - dynBatchCmd in dynbatch.go
// - mdpCmd in mdp.go
// - uostCmd in uost.go

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
