package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Step actions.
const (
	ActionRebuild   = "rebuild"
	ActionDuplicate = "duplicate"
	ActionEvaluate  = "evaluate"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tree is the tree document to import, relative to the scenario file.
	Tree string `yaml:"tree"`

	// OperationID is returned for every duplication. Defaults to
	// "op-<name>" so traces are deterministic.
	OperationID string `yaml:"operation_id,omitempty"`

	// GlobalSharedRefs keeps shared-ref-* identifiers unsuffixed. Default false.
	GlobalSharedRefs *bool `yaml:"global_shared_refs,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions check the store after all steps ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one action of the scenario flow.
type Step struct {
	Action string `yaml:"action"`

	// Template and Suffix drive duplicate. A zero Suffix asks for the next
	// free one.
	Template         string `yaml:"template,omitempty"`
	Suffix           int    `yaml:"suffix,omitempty"`
	CopySharedTables bool   `yaml:"copy_shared_tables,omitempty"`

	// Target and Form drive evaluate. Target is a capacity or node ID.
	Target string         `yaml:"target,omitempty"`
	Form   map[string]any `yaml:"form,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks a step's outcome.
type Expect struct {
	// Outcome is "ok" or an error code such as DUPLICATE_SUFFIX_COLLISION.
	Outcome string `yaml:"outcome"`

	// Value is the expected evaluation result. Absent means unchecked; an
	// explicit null expects null.
	Value yaml.Node `yaml:"value,omitempty"`

	// Diagnostics lists the expected diagnostic codes in order. Absent
	// means unchecked.
	Diagnostics []string `yaml:"diagnostics,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and the tree path is resolved against the scenario directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Tree != "" && !filepath.IsAbs(scenario.Tree) {
		scenario.Tree = filepath.Join(filepath.Dir(path), scenario.Tree)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files directly under dir.
func FindScenarios(dir string) ([]string, error) {
	var out []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Tree == "" {
		return fmt.Errorf("tree is required")
	}
	if _, err := os.Stat(s.Tree); os.IsNotExist(err) {
		return fmt.Errorf("tree file not found: %s", s.Tree)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Action {
		case ActionRebuild:
		case ActionDuplicate:
			if step.Template == "" {
				return fmt.Errorf("steps[%d]: duplicate requires template", i)
			}
			if step.Suffix < 0 {
				return fmt.Errorf("steps[%d]: suffix must not be negative", i)
			}
		case ActionEvaluate:
			if step.Target == "" {
				return fmt.Errorf("steps[%d]: evaluate requires target", i)
			}
		case "":
			return fmt.Errorf("steps[%d]: action is required", i)
		default:
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
		if step.Expect != nil && step.Expect.Outcome == "" {
			return fmt.Errorf("steps[%d].expect: outcome is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// HasValue reports whether the expect clause names a value, null included.
func (e *Expect) HasValue() bool {
	return e.Value.Kind != 0
}
