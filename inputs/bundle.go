package inputs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Bundle is the full set of inputs for one calculation run: every regime,
// variant, and scenario to iterate, plus the auxiliary files and
// declarations each solver needs. It is the on-disk counterpart to
// config.Settings — config.Settings says *how* to solve, Bundle says
// *what* to solve it over — loaded the same way (YAML overlaid onto
// zero values) per config.Load's pattern.
type Bundle struct {
	Regimes   []Regime   `yaml:"regimes"`
	Variants  []Variant  `yaml:"variants"`
	Scenarios []Scenario `yaml:"scenarios"`

	RepairFile       RepairSchemaFile        `yaml:"repair_file"`
	ContinuationFile ContinuationFile        `yaml:"continuation_file"`
	CrossSectionPath string                  `yaml:"cross_section_path"`
	CrossSections    []CrossSection          `yaml:"cross_sections"`
	PAFile           EmergencyAutomaticsFile `yaml:"pa_file"`
	PlotVariables    []PlotVariable          `yaml:"plot_variables"`
	ShuntTaskPath    string                  `yaml:"shunt_task_path"`
}

// LoadBundle reads and validates a Bundle from a YAML file.
func LoadBundle(path string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("inputs: reading bundle %s: %w", path, err)
	}
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("inputs: parsing bundle %s: %w", path, err)
	}
	if len(b.Regimes) == 0 {
		return Bundle{}, fmt.Errorf("inputs: bundle %s declares no regimes", path)
	}
	if len(b.Scenarios) == 0 {
		return Bundle{}, fmt.Errorf("inputs: bundle %s declares no scenarios", path)
	}
	if len(b.Variants) == 0 {
		b.Variants = []Variant{{ID: NormalVariantID, Name: "Normal"}}
	}
	return b, nil
}
