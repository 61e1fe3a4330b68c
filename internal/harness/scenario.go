package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/loopmerge/internal/config"
	"github.com/roach88/loopmerge/internal/ir"
	"github.com/roach88/loopmerge/internal/source"
)

// DefaultRunID is used when a scenario does not name its run.
const DefaultRunID = "test-run-default"

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overlays the default configuration. Same keys as a config file.
	Config map[string]any `yaml:"config,omitempty"`

	// Streams holds the tracker and game events.
	Streams source.Document `yaml:"streams"`

	// Assertions validate the final registry, groups and trace.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is the stored run's id. Empty means DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`
}

// Assertion validates final state or the trace.
type Assertion struct {
	// Type selects the check; see the package documentation.
	Type string `yaml:"type"`

	// Tag is the unit (registry_contains, registry_absent, unit_radius).
	Tag *ir.UnitTag `yaml:"tag,omitempty"`

	// Name and Selected refine registry_contains.
	Name     string `yaml:"name,omitempty"`
	Selected *bool  `yaml:"selected,omitempty"`

	// User and Group address a control group slot (group_equals).
	User  *int64 `yaml:"user,omitempty"`
	Group *int   `yaml:"group,omitempty"`

	// Tags is the expected slot content, in order (group_equals).
	Tags []ir.UnitTag `yaml:"tags,omitempty"`

	// Radius is the expected unit radius (unit_radius).
	Radius float64 `yaml:"radius,omitempty"`

	// Kind and Path select deltas (delta_contains, delta_count).
	Kind string `yaml:"kind,omitempty"`
	Path string `yaml:"path,omitempty"`

	// Paths is the expected order of first occurrences (delta_order).
	Paths []string `yaml:"paths,omitempty"`

	// Count is the expected number of units or deltas.
	Count int `yaml:"count,omitempty"`

	// Summary fields (summary). Unset fields are not checked.
	EventsAccepted *int  `yaml:"events_accepted,omitempty"`
	DeltasEmitted  *int  `yaml:"deltas_emitted,omitempty"`
	Truncated      *bool `yaml:"truncated,omitempty"`
}

// Assertion type constants.
const (
	AssertRegistryContains = "registry_contains"
	AssertRegistryAbsent   = "registry_absent"
	AssertRegistryCount    = "registry_count"
	AssertGroupEquals      = "group_equals"
	AssertUnitRadius       = "unit_radius"
	AssertDeltaContains    = "delta_contains"
	AssertDeltaOrder       = "delta_order"
	AssertDeltaCount       = "delta_count"
	AssertSummary          = "summary"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// config resolves the scenario's configuration. The overlay goes through
// the same schema check as a configuration file.
func (s *Scenario) config() (config.Config, error) {
	if len(s.Config) == 0 {
		return config.Default(), nil
	}
	data, err := json.Marshal(s.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("encode scenario config: %w", err)
	}
	cfg, err := config.Parse(data, s.Name+".config")
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (s *Scenario) runID() string {
	if s.RunID == "" {
		return DefaultRunID
	}
	return s.RunID
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Streams.Tracker.Kind == 0 && s.Streams.Game.Kind == 0 {
		return fmt.Errorf("streams must contain a tracker or game list")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRegistryContains, AssertRegistryAbsent:
		if a.Tag == nil {
			return fmt.Errorf("assertions[%d]: tag is required for %s", index, a.Type)
		}
	case AssertUnitRadius:
		if a.Tag == nil {
			return fmt.Errorf("assertions[%d]: tag is required for unit_radius", index)
		}
		if a.Radius <= 0 {
			return fmt.Errorf("assertions[%d]: radius must be positive for unit_radius", index)
		}
	case AssertRegistryCount, AssertDeltaCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertGroupEquals:
		if a.User == nil || a.Group == nil {
			return fmt.Errorf("assertions[%d]: user and group are required for group_equals", index)
		}
		if *a.Group < 0 || *a.Group > 10 {
			return fmt.Errorf("assertions[%d]: group must be 0-10, got %d", index, *a.Group)
		}
	case AssertDeltaContains:
		if a.Kind == "" && a.Path == "" {
			return fmt.Errorf("assertions[%d]: kind or path is required for delta_contains", index)
		}
	case AssertDeltaOrder:
		if len(a.Paths) == 0 {
			return fmt.Errorf("assertions[%d]: paths list is required for delta_order", index)
		}
	case AssertSummary:
		if a.EventsAccepted == nil && a.DeltasEmitted == nil && a.Truncated == nil {
			return fmt.Errorf("assertions[%d]: summary needs at least one field", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Kind != "" && !knownKind(a.Kind) {
		return fmt.Errorf("assertions[%d]: unknown delta kind %q", index, a.Kind)
	}
	return nil
}

func knownKind(kind string) bool {
	for _, k := range ir.DeltaKinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}
