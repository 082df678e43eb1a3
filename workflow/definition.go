package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/civant/agentcore/types"
)

// Step is one unit of a workflow definition. Mappings are declarative
// dot-path copies: InputMapping builds the agent's input from the
// workflow data bag (target-path <- source-path), OutputMapping copies
// values from the step result back into the bag.
type Step struct {
	ID      string `yaml:"id" json:"id"`
	AgentID string `yaml:"agent" json:"agent"`

	// Condition is an optional dot-path into the workflow data bag. A
	// missing or falsy value skips the step; that is not an error.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	InputMapping  map[string]string `yaml:"input_mapping,omitempty" json:"input_mapping,omitempty"`
	OutputMapping map[string]string `yaml:"output_mapping,omitempty" json:"output_mapping,omitempty"`

	// ContinueOnError degrades a failing run to partial-success instead of
	// aborting it.
	ContinueOnError bool `yaml:"continue_on_error,omitempty" json:"continue_on_error,omitempty"`
}

// Definition is an immutable ordered list of steps. Once registered with
// an engine it is never mutated; Execute works on a private copy.
type Definition struct {
	ID                string         `yaml:"id" json:"id"`
	Name              string         `yaml:"name" json:"name"`
	Steps             []Step         `yaml:"steps" json:"steps"`
	DefaultParameters map[string]any `yaml:"default_parameters,omitempty" json:"default_parameters,omitempty"`
	Enabled           bool           `yaml:"enabled" json:"enabled"`
	Category          string         `yaml:"category,omitempty" json:"category,omitempty"`
	Tags              []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Validate checks structural invariants of a definition.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return types.NewError(types.ErrInvalidDefinition, "definition id is required")
	}
	if len(d.Steps) == 0 {
		return types.NewError(types.ErrInvalidDefinition, fmt.Sprintf("workflow %s has no steps", d.ID))
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i, s := range d.Steps {
		if s.ID == "" {
			return types.NewError(types.ErrInvalidDefinition, fmt.Sprintf("workflow %s: step %d has no id", d.ID, i))
		}
		if s.AgentID == "" {
			return types.NewError(types.ErrInvalidDefinition, fmt.Sprintf("workflow %s: step %s has no agent", d.ID, s.ID))
		}
		if _, dup := seen[s.ID]; dup {
			return types.NewError(types.ErrInvalidDefinition, fmt.Sprintf("workflow %s: duplicate step id %s", d.ID, s.ID))
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

func (d *Definition) clone() *Definition {
	cp := *d
	cp.Steps = append([]Step(nil), d.Steps...)
	cp.Tags = append([]string(nil), d.Tags...)
	if d.DefaultParameters != nil {
		cp.DefaultParameters = make(map[string]any, len(d.DefaultParameters))
		for k, v := range d.DefaultParameters {
			cp.DefaultParameters[k] = v
		}
	}
	return &cp
}

// definitionsFile is the YAML document shape accepted by ParseDefinitions.
type definitionsFile struct {
	Workflows []rawDefinition `yaml:"workflows"`
}

// rawDefinition shadows Definition so an omitted "enabled" key defaults
// to true instead of the bool zero value.
type rawDefinition struct {
	ID                string         `yaml:"id"`
	Name              string         `yaml:"name"`
	Steps             []Step         `yaml:"steps"`
	DefaultParameters map[string]any `yaml:"default_parameters"`
	Enabled           *bool          `yaml:"enabled"`
	Category          string         `yaml:"category"`
	Tags              []string       `yaml:"tags"`
}

// ParseDefinitions decodes workflow definitions from YAML. Definitions
// omit "enabled" to mean enabled.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "workflow yaml is malformed").WithCause(err)
	}

	defs := make([]Definition, 0, len(file.Workflows))
	for _, raw := range file.Workflows {
		def := Definition{
			ID:                raw.ID,
			Name:              raw.Name,
			Steps:             raw.Steps,
			DefaultParameters: raw.DefaultParameters,
			Enabled:           raw.Enabled == nil || *raw.Enabled,
			Category:          raw.Category,
			Tags:              raw.Tags,
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
