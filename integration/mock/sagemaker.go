package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/smithy-go"
)

// Pipeline is a pipeline as stored by the mock SageMaker control plane.
type Pipeline struct {
	Name        string
	ARN         string
	Definition  string
	S3Location  *types.PipelineDefinitionS3Location
	Description string
	RoleARN     string
	Tags        map[string]string
	Version     int
}

// SageMakerClient is an in-memory mock of the SageMaker control plane
// covering domains, tags and pipelines.
type SageMakerClient struct {
	mu sync.Mutex

	Region    string
	AccountID string

	Domains      []types.DomainDetails
	Descriptions map[string]*sagemaker.DescribeDomainOutput // by domain id
	Tags         map[string][]types.Tag                     // by resource ARN
	Pipelines    map[string]*Pipeline                       // by name

	// Injected failures
	ListDomainsErr    error
	CreatePipelineErr error

	Calls map[string]int
}

// NewSageMakerClient creates an empty mock for region.
func NewSageMakerClient(region, accountID string) *SageMakerClient {
	return &SageMakerClient{
		Region:       region,
		AccountID:    accountID,
		Descriptions: make(map[string]*sagemaker.DescribeDomainOutput),
		Tags:         make(map[string][]types.Tag),
		Pipelines:    make(map[string]*Pipeline),
		Calls:        make(map[string]int),
	}
}

// AddDomain registers a domain with its description and tags. The domain ARN
// is derived from region, account and id.
func (m *SageMakerClient) AddDomain(region, id string, desc *sagemaker.DescribeDomainOutput, tags map[string]string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	arn := fmt.Sprintf("arn:aws:sagemaker:%s:%s:domain/%s", region, m.AccountID, id)
	m.Domains = append(m.Domains, types.DomainDetails{
		DomainArn:  aws.String(arn),
		DomainId:   aws.String(id),
		DomainName: desc.DomainName,
	})

	desc.DomainArn = aws.String(arn)
	desc.DomainId = aws.String(id)
	m.Descriptions[id] = desc

	for k, v := range tags {
		m.Tags[arn] = append(m.Tags[arn], types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return arn
}

// ListDomains returns every registered domain in registration order.
func (m *SageMakerClient) ListDomains(ctx context.Context, params *sagemaker.ListDomainsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.ListDomainsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["ListDomains"]++

	if m.ListDomainsErr != nil {
		return nil, m.ListDomainsErr
	}
	return &sagemaker.ListDomainsOutput{Domains: append([]types.DomainDetails(nil), m.Domains...)}, nil
}

// DescribeDomain returns the registered description for the domain id.
func (m *SageMakerClient) DescribeDomain(ctx context.Context, params *sagemaker.DescribeDomainInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeDomainOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["DescribeDomain"]++

	desc, ok := m.Descriptions[aws.ToString(params.DomainId)]
	if !ok {
		return nil, &types.ResourceNotFound{Message: aws.String("domain not found: " + aws.ToString(params.DomainId))}
	}
	return desc, nil
}

// ListTags returns the tags registered for a resource ARN.
func (m *SageMakerClient) ListTags(ctx context.Context, params *sagemaker.ListTagsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.ListTagsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["ListTags"]++

	return &sagemaker.ListTagsOutput{Tags: append([]types.Tag(nil), m.Tags[aws.ToString(params.ResourceArn)]...)}, nil
}

// CreatePipeline stores a new pipeline. A taken name yields the same
// ValidationException SageMaker returns.
func (m *SageMakerClient) CreatePipeline(ctx context.Context, params *sagemaker.CreatePipelineInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreatePipelineOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["CreatePipeline"]++

	if m.CreatePipelineErr != nil {
		return nil, m.CreatePipelineErr
	}
	if aws.ToString(params.ClientRequestToken) == "" {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "ClientRequestToken is required"}
	}

	name := aws.ToString(params.PipelineName)
	if _, exists := m.Pipelines[name]; exists {
		return nil, &smithy.GenericAPIError{
			Code:    "ValidationException",
			Message: fmt.Sprintf("Pipeline names must be unique within an AWS account and region. Pipeline with name (%s) already exists.", name),
		}
	}

	p := &Pipeline{
		Name:        name,
		ARN:         m.pipelineARN(name),
		Definition:  aws.ToString(params.PipelineDefinition),
		S3Location:  params.PipelineDefinitionS3Location,
		Description: aws.ToString(params.PipelineDescription),
		RoleARN:     aws.ToString(params.RoleArn),
		Tags:        make(map[string]string),
		Version:     1,
	}
	for _, t := range params.Tags {
		p.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	m.Pipelines[name] = p

	return &sagemaker.CreatePipelineOutput{PipelineArn: aws.String(p.ARN)}, nil
}

// UpdatePipeline replaces the definition of an existing pipeline.
func (m *SageMakerClient) UpdatePipeline(ctx context.Context, params *sagemaker.UpdatePipelineInput, optFns ...func(*sagemaker.Options)) (*sagemaker.UpdatePipelineOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["UpdatePipeline"]++

	name := aws.ToString(params.PipelineName)
	p, ok := m.Pipelines[name]
	if !ok {
		return nil, &types.ResourceNotFound{Message: aws.String("pipeline not found: " + name)}
	}
	p.Definition = aws.ToString(params.PipelineDefinition)
	p.S3Location = params.PipelineDefinitionS3Location
	if params.PipelineDescription != nil {
		p.Description = *params.PipelineDescription
	}
	if params.RoleArn != nil {
		p.RoleARN = *params.RoleArn
	}
	p.Version++

	return &sagemaker.UpdatePipelineOutput{PipelineArn: aws.String(p.ARN)}, nil
}

// AddTags merges tags into the pipeline identified by ARN.
func (m *SageMakerClient) AddTags(ctx context.Context, params *sagemaker.AddTagsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.AddTagsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["AddTags"]++

	arn := aws.ToString(params.ResourceArn)
	for _, p := range m.Pipelines {
		if p.ARN != arn {
			continue
		}
		for _, t := range params.Tags {
			p.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
		return &sagemaker.AddTagsOutput{Tags: params.Tags}, nil
	}
	return nil, &types.ResourceNotFound{Message: aws.String("resource not found: " + arn)}
}

// CallCount returns how many times op was invoked.
func (m *SageMakerClient) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[op]
}

func (m *SageMakerClient) pipelineARN(name string) string {
	return fmt.Sprintf("arn:aws:sagemaker:%s:%s:pipeline/%s", m.Region, m.AccountID, strings.ToLower(name))
}
