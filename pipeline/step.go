package pipeline

import "fmt"

// StepType names the kind of a pipeline step.
type StepType string

// StepTypeProcessing runs a processing job.
const StepTypeProcessing StepType = "Processing"

// Step is one node of a pipeline definition.
type Step interface {
	StepName() string
	StepType() StepType
	// Arguments returns the request body SageMaker issues when it runs the step.
	Arguments() (any, error)
}

// ProcessingStep runs a processing job built from a Processor, its inputs and
// its outputs.
type ProcessingStep struct {
	Name      string
	Processor Processor
	Inputs    []ProcessingInput
	Outputs   []ProcessingOutput
}

// StepName implements Step
func (s *ProcessingStep) StepName() string { return s.Name }

// StepType implements Step
func (s *ProcessingStep) StepType() StepType { return StepTypeProcessing }

// Arguments implements Step. It renders a CreateProcessingJob request body.
func (s *ProcessingStep) Arguments() (any, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	p := s.Processor
	args := processingJobArgs{
		ProcessingResources: processingResources{
			ClusterConfig: clusterConfig{
				InstanceCount:  p.InstanceCount,
				InstanceType:   p.InstanceType,
				VolumeSizeInGB: p.VolumeSizeInGB,
				VolumeKmsKeyID: p.VolumeKMSKey,
			},
		},
		AppSpecification: appSpecification{ImageURI: p.ImageURI},
		RoleARN:          p.RoleARN,
		NetworkConfig: &networkConfigArgs{
			EnableNetworkIsolation:                p.Network.EnableNetworkIsolation(),
			EnableInterContainerTrafficEncryption: p.Network.EncryptInterContainerTraffic(),
		},
	}

	if sgs, subnets := p.Network.SecurityGroupIDs(), p.Network.Subnets(); len(sgs) > 0 || len(subnets) > 0 {
		args.NetworkConfig.VpcConfig = &vpcConfig{SecurityGroupIDs: sgs, Subnets: subnets}
	}

	if p.MaxRuntimeSeconds > 0 {
		args.StoppingCondition = &stoppingCondition{MaxRuntimeInSeconds: p.MaxRuntimeSeconds}
	}

	args.ProcessingInputs = make([]processingInputArgs, 0, len(s.Inputs))
	for _, in := range s.Inputs {
		args.ProcessingInputs = append(args.ProcessingInputs, processingInputArgs{
			InputName:  in.InputName,
			AppManaged: false,
			S3Input: &s3InputArgs{
				S3URI:                  in.Source,
				LocalPath:              in.Destination,
				S3DataType:             in.S3DataType,
				S3InputMode:            in.S3InputMode,
				S3DataDistributionType: in.S3DataDistributionType,
			},
		})
	}

	if len(s.Outputs) > 0 {
		cfg := &processingOutputConfig{KmsKeyID: p.OutputKMSKey}
		for _, out := range s.Outputs {
			cfg.Outputs = append(cfg.Outputs, processingOutputArgs{
				OutputName:         out.OutputName,
				AppManaged:         out.AppManaged,
				FeatureStoreOutput: out.FeatureStoreOutput,
			})
		}
		args.ProcessingOutputConfig = cfg
	}

	return args, nil
}

// validate enforces unique input names within the step.
func (s *ProcessingStep) validate() error {
	seen := make(map[string]struct{}, len(s.Inputs))
	for _, in := range s.Inputs {
		if in.InputName == "" {
			return fmt.Errorf("step %s: %w", s.Name, ErrEmptyInputName)
		}
		if _, dup := seen[in.InputName]; dup {
			return fmt.Errorf("step %s: %w: %s", s.Name, ErrDuplicateInput, in.InputName)
		}
		seen[in.InputName] = struct{}{}
	}
	return nil
}

// The types below mirror the CreateProcessingJob request shape.

type processingJobArgs struct {
	ProcessingResources    processingResources     `json:"ProcessingResources"`
	AppSpecification       appSpecification        `json:"AppSpecification"`
	RoleARN                string                  `json:"RoleArn"`
	ProcessingInputs       []processingInputArgs   `json:"ProcessingInputs"`
	ProcessingOutputConfig *processingOutputConfig `json:"ProcessingOutputConfig,omitempty"`
	NetworkConfig          *networkConfigArgs      `json:"NetworkConfig,omitempty"`
	StoppingCondition      *stoppingCondition      `json:"StoppingCondition,omitempty"`
}

type processingResources struct {
	ClusterConfig clusterConfig `json:"ClusterConfig"`
}

type clusterConfig struct {
	InstanceCount  any    `json:"InstanceCount"`
	InstanceType   any    `json:"InstanceType"`
	VolumeSizeInGB any    `json:"VolumeSizeInGB"`
	VolumeKmsKeyID string `json:"VolumeKmsKeyId,omitempty"`
}

type appSpecification struct {
	ImageURI string `json:"ImageUri"`
}

type processingInputArgs struct {
	InputName  string       `json:"InputName"`
	AppManaged bool         `json:"AppManaged"`
	S3Input    *s3InputArgs `json:"S3Input,omitempty"`
}

type s3InputArgs struct {
	S3URI                  any                    `json:"S3Uri"`
	LocalPath              string                 `json:"LocalPath"`
	S3DataType             S3DataType             `json:"S3DataType"`
	S3InputMode            S3InputMode            `json:"S3InputMode"`
	S3DataDistributionType S3DataDistributionType `json:"S3DataDistributionType"`
}

type processingOutputConfig struct {
	Outputs  []processingOutputArgs `json:"Outputs"`
	KmsKeyID string                 `json:"KmsKeyId,omitempty"`
}

type processingOutputArgs struct {
	OutputName         any                 `json:"OutputName"`
	AppManaged         bool                `json:"AppManaged"`
	FeatureStoreOutput *FeatureStoreOutput `json:"FeatureStoreOutput,omitempty"`
}

type networkConfigArgs struct {
	EnableNetworkIsolation                bool       `json:"EnableNetworkIsolation"`
	EnableInterContainerTrafficEncryption bool       `json:"EnableInterContainerTrafficEncryption"`
	VpcConfig                             *vpcConfig `json:"VpcConfig,omitempty"`
}

type vpcConfig struct {
	SecurityGroupIDs []string `json:"SecurityGroupIds"`
	Subnets          []string `json:"Subnets"`
}

type stoppingCondition struct {
	MaxRuntimeInSeconds int `json:"MaxRuntimeInSeconds"`
}
