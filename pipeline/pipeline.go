// Package pipeline models a SageMaker pipeline definition: typed parameters,
// processing steps and their inputs, outputs, processor and network
// placement, rendered to the pipeline definition JSON document.
//
// Example:
//
//	count := pipeline.ParameterInteger("ProcessingInstanceCount", 1)
//	step := &pipeline.ProcessingStep{Name: "process", Processor: proc}
//	p := pipeline.New("my-pipeline", []pipeline.Parameter{count}, []pipeline.Step{step})
//	body, err := p.Definition()
package pipeline

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// DefinitionVersion is the pipeline definition schema version emitted.
const DefinitionVersion = "2020-12-01"

// Validation errors.
var (
	ErrEmptyName          = errors.New("pipeline name is required")
	ErrDuplicateParameter = errors.New("duplicate parameter name")
	ErrDuplicateStep      = errors.New("duplicate step name")
	ErrDuplicateInput     = errors.New("duplicate input name")
	ErrEmptyInputName     = errors.New("input name is required")
)

// Pipeline is a named definition made of ordered parameters and steps. Its
// identity on the platform is its name.
type Pipeline struct {
	Name       string
	Parameters []Parameter
	Steps      []Step
}

// New creates a Pipeline.
func New(name string, parameters []Parameter, steps []Step) *Pipeline {
	return &Pipeline{Name: name, Parameters: parameters, Steps: steps}
}

// Validate checks the local invariants: a name, unique parameter names and
// unique step names. Step-level checks run when the definition is rendered.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return ErrEmptyName
	}

	params := make(map[string]struct{}, len(p.Parameters))
	for _, param := range p.Parameters {
		if _, dup := params[param.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateParameter, param.Name)
		}
		params[param.Name] = struct{}{}
	}

	steps := make(map[string]struct{}, len(p.Steps))
	for _, s := range p.Steps {
		if _, dup := steps[s.StepName()]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateStep, s.StepName())
		}
		steps[s.StepName()] = struct{}{}
	}

	return nil
}

type definition struct {
	Version                  string           `json:"Version"`
	Metadata                 map[string]any   `json:"Metadata"`
	Parameters               []Parameter      `json:"Parameters"`
	PipelineExperimentConfig experimentConfig `json:"PipelineExperimentConfig"`
	Steps                    []stepDefinition `json:"Steps"`
}

type experimentConfig struct {
	ExperimentName Property `json:"ExperimentName"`
	TrialName      Property `json:"TrialName"`
}

type stepDefinition struct {
	Name      string   `json:"Name"`
	Type      StepType `json:"Type"`
	Arguments any      `json:"Arguments"`
}

// Definition validates the pipeline and renders its definition JSON.
func (p *Pipeline) Definition() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	def := definition{
		Version:    DefinitionVersion,
		Metadata:   map[string]any{},
		Parameters: p.Parameters,
		PipelineExperimentConfig: experimentConfig{
			ExperimentName: ExecutionPipelineName,
			TrialName:      ExecutionID,
		},
		Steps: make([]stepDefinition, 0, len(p.Steps)),
	}
	if def.Parameters == nil {
		def.Parameters = []Parameter{}
	}

	for _, s := range p.Steps {
		args, err := s.Arguments()
		if err != nil {
			return nil, err
		}
		def.Steps = append(def.Steps, stepDefinition{Name: s.StepName(), Type: s.StepType(), Arguments: args})
	}

	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pipeline definition: %w", err)
	}
	return data, nil
}
