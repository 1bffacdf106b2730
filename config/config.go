// Package config loads the batch engine's settings from YAML and hands
// them to solver constructors by value (see SPEC_FULL.md §6.4 and §9's
// "config singleton" redesign note — there is no process-global config).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the root configuration object for one calculation run.
type Settings struct {
	Simulator SimulatorSettings `yaml:"simulator"`
	Shunt     ShuntSettings     `yaml:"shunt"`
	CritTime  CritTimeSettings  `yaml:"crit_time"`
	DynBatch  DynBatchSettings  `yaml:"dyn_batch"`
	MDP       MDPSettings       `yaml:"mdp"`
	PA        PASettings        `yaml:"pa"`
	Results   ResultsSettings   `yaml:"results"`
	Logging   LoggingSettings   `yaml:"logging"`
	Metrics   MetricsSettings   `yaml:"metrics"`
}

// SimulatorSettings configures the SimFacade backend.
type SimulatorSettings struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// ShuntSettings maps to spec.md §6.4's ShuntSolver keys.
type ShuntSettings struct {
	UseSelNodes  bool    `yaml:"use_sel_nodes"`
	UseTypeValU  bool    `yaml:"use_type_val_u"`
	CalcOnePhase bool    `yaml:"calc_one_phase"`
	CalcTwoPhase bool    `yaml:"calc_two_phase"`
	BaseAngle    float64 `yaml:"base_angle"`
}

// CritTimeSettings maps to spec.md §6.4's CritTimeSolver keys.
type CritTimeSettings struct {
	PrecisionS float64 `yaml:"precision_s"`
	MaxS       float64 `yaml:"max_s"`
}

// DynBatchSettings maps to spec.md §6.4's DynBatchRunner keys.
type DynBatchSettings struct {
	NoPA    bool `yaml:"no_pa"`
	WithPA  bool `yaml:"with_pa"`
	SaveGrf bool `yaml:"save_grf"`
}

// MDPSettings maps to spec.md §6.4's MDPSolver keys.
type MDPSettings struct {
	SelectedSectionOrdinal int `yaml:"selected_section_ordinal"`
}

// PASettings configures the optional LPN-format emergency-automatics
// synthesis path shared by DynBatchRunner and MDPSolver.
type PASettings struct {
	UseLPN    bool   `yaml:"use_lpn"`
	LPNSuffix string `yaml:"lpn_suffix"`
}

// ResultsSettings controls where a run's results directory lives and how
// long the result journal (resultstore.Store) retains entries.
type ResultsSettings struct {
	Root     string        `yaml:"root"`
	PurgeAge time.Duration `yaml:"purge_age"`
}

// LoggingSettings configures telemetry.New.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsSettings configures metrics.Registry.Serve. An empty ListenAddr disables
// the /metrics endpoint entirely.
type MetricsSettings struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Default returns the settings a fresh calculation starts from absent a
// config file, matching the default precision/bound values named
// throughout spec.md §4.
func Default() Settings {
	return Settings{
		Simulator: SimulatorSettings{Timeout: 10 * time.Minute},
		Shunt: ShuntSettings{
			UseTypeValU:  true,
			CalcOnePhase: true,
			CalcTwoPhase: true,
			BaseAngle:    1.471,
		},
		CritTime: CritTimeSettings{PrecisionS: 0.02, MaxS: 1.0},
		DynBatch: DynBatchSettings{NoPA: true, WithPA: true},
		MDP:      MDPSettings{SelectedSectionOrdinal: 1},
		Results:  ResultsSettings{Root: "./results", PurgeAge: 30 * time.Minute},
		Logging:  LoggingSettings{Level: "info", Format: "text"},
	}
}

// Load reads and validates settings from a YAML file, overlaying them onto
// Default() so an omitted section keeps its default value.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return s, nil
}
