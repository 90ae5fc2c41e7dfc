package pipeline

// ParameterType is the declared type of a pipeline parameter.
type ParameterType string

// Parameter types understood by SageMaker Pipelines.
const (
	ParameterTypeString  ParameterType = "String"
	ParameterTypeInteger ParameterType = "Integer"
)

// Parameter is a typed, named pipeline input with a default value. Values can
// be overridden per execution.
type Parameter struct {
	Name         string        `json:"Name"`
	Type         ParameterType `json:"Type"`
	DefaultValue any           `json:"DefaultValue,omitempty"`
}

// ParameterString declares a String parameter.
func ParameterString(name, defaultValue string) Parameter {
	return Parameter{Name: name, Type: ParameterTypeString, DefaultValue: defaultValue}
}

// ParameterInteger declares an Integer parameter.
func ParameterInteger(name string, defaultValue int) Parameter {
	return Parameter{Name: name, Type: ParameterTypeInteger, DefaultValue: defaultValue}
}

// Ref returns the expression that resolves to this parameter's value at
// execution time.
func (p Parameter) Ref() Property {
	return Property{Get: "Parameters." + p.Name}
}

// Property is a runtime reference, rendered as {"Get": "<path>"}. Fields typed
// any in this package accept either a literal or a Property.
type Property struct {
	Get string `json:"Get"`
}

// Execution variables available to every step.
var (
	ExecutionPipelineName = Property{Get: "Execution.PipelineName"}
	ExecutionID           = Property{Get: "Execution.PipelineExecutionId"}
)
