package pipeline

// S3DataType selects how an S3 input URI is interpreted.
type S3DataType string

// S3InputMode selects how input data is made available to the container.
type S3InputMode string

// S3DataDistributionType selects how input data is spread across instances.
type S3DataDistributionType string

const (
	S3DataTypePrefix            S3DataType             = "S3Prefix"
	S3InputModeFile             S3InputMode            = "File"
	DistributionFullyReplicated S3DataDistributionType = "FullyReplicated"
)

// ProcessingInput maps an S3 location onto a local path in the processing
// container. Source is an S3 URI or a Property.
type ProcessingInput struct {
	InputName              string
	Source                 any
	Destination            string
	S3DataType             S3DataType
	S3InputMode            S3InputMode
	S3DataDistributionType S3DataDistributionType
}

// NewS3Input returns an input with the S3Prefix/File/FullyReplicated defaults.
func NewS3Input(name string, source any, destination string) ProcessingInput {
	return ProcessingInput{
		InputName:              name,
		Source:                 source,
		Destination:            destination,
		S3DataType:             S3DataTypePrefix,
		S3InputMode:            S3InputModeFile,
		S3DataDistributionType: DistributionFullyReplicated,
	}
}

// FeatureStoreOutput sends processing results to a feature group.
type FeatureStoreOutput struct {
	FeatureGroupName string `json:"FeatureGroupName"`
}

// ProcessingOutput is one output of a processing job. OutputName is a
// literal or a Property.
type ProcessingOutput struct {
	OutputName         any
	AppManaged         bool
	FeatureStoreOutput *FeatureStoreOutput
}

// NewFeatureStoreOutput returns an app-managed output feeding featureGroup.
func NewFeatureStoreOutput(name any, featureGroup string) ProcessingOutput {
	return ProcessingOutput{
		OutputName:         name,
		AppManaged:         true,
		FeatureStoreOutput: &FeatureStoreOutput{FeatureGroupName: featureGroup},
	}
}

// NetworkConfig is the network placement of processing instances. It is
// built only through NewNetworkConfig so that network isolation stays off
// and inter-container traffic encryption stays on.
type NetworkConfig struct {
	securityGroupIDs []string
	subnets          []string
}

// NewNetworkConfig returns a config placing instances in the given security
// groups and subnets.
func NewNetworkConfig(securityGroupIDs, subnets []string) NetworkConfig {
	return NetworkConfig{
		securityGroupIDs: append([]string(nil), securityGroupIDs...),
		subnets:          append([]string(nil), subnets...),
	}
}

// EnableNetworkIsolation is always false.
func (n NetworkConfig) EnableNetworkIsolation() bool { return false }

// EncryptInterContainerTraffic is always true.
func (n NetworkConfig) EncryptInterContainerTraffic() bool { return true }

// SecurityGroupIDs returns a copy of the security group ids.
func (n NetworkConfig) SecurityGroupIDs() []string {
	return append([]string(nil), n.securityGroupIDs...)
}

// Subnets returns a copy of the subnet ids.
func (n NetworkConfig) Subnets() []string {
	return append([]string(nil), n.subnets...)
}

// Processor describes the container and compute shape of a processing job.
// InstanceCount, InstanceType and VolumeSizeInGB accept literals or
// Properties.
type Processor struct {
	RoleARN        string
	ImageURI       string
	InstanceCount  any
	InstanceType   any
	VolumeSizeInGB any
	Network        NetworkConfig
	VolumeKMSKey   string
	OutputKMSKey   string

	MaxRuntimeSeconds int // 0 leaves the platform default
}
