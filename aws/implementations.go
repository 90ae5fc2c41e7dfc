package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SageMakerClientImpl implements SageMakerClient using the AWS SDK.
type SageMakerClientImpl struct {
	client *sagemaker.Client
}

// NewSageMakerClient creates a new SageMakerClientImpl instance
func NewSageMakerClient(client *sagemaker.Client) *SageMakerClientImpl {
	return &SageMakerClientImpl{client: client}
}

// ListDomains lists the SageMaker domains visible to the caller
func (c *SageMakerClientImpl) ListDomains(ctx context.Context, params *sagemaker.ListDomainsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.ListDomainsOutput, error) {
	return c.client.ListDomains(ctx, params, optFns...)
}

// DescribeDomain returns the full description of one domain
func (c *SageMakerClientImpl) DescribeDomain(ctx context.Context, params *sagemaker.DescribeDomainInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeDomainOutput, error) {
	return c.client.DescribeDomain(ctx, params, optFns...)
}

// ListTags returns the tags attached to a SageMaker resource
func (c *SageMakerClientImpl) ListTags(ctx context.Context, params *sagemaker.ListTagsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.ListTagsOutput, error) {
	return c.client.ListTags(ctx, params, optFns...)
}

// CreatePipeline creates a new pipeline definition
func (c *SageMakerClientImpl) CreatePipeline(ctx context.Context, params *sagemaker.CreatePipelineInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreatePipelineOutput, error) {
	return c.client.CreatePipeline(ctx, params, optFns...)
}

// UpdatePipeline replaces the definition of an existing pipeline
func (c *SageMakerClientImpl) UpdatePipeline(ctx context.Context, params *sagemaker.UpdatePipelineInput, optFns ...func(*sagemaker.Options)) (*sagemaker.UpdatePipelineOutput, error) {
	return c.client.UpdatePipeline(ctx, params, optFns...)
}

// AddTags attaches tags to a SageMaker resource
func (c *SageMakerClientImpl) AddTags(ctx context.Context, params *sagemaker.AddTagsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.AddTagsOutput, error) {
	return c.client.AddTags(ctx, params, optFns...)
}

// ParameterClientImpl implements ParameterClient using the AWS SDK.
type ParameterClientImpl struct {
	client *ssm.Client
}

// NewParameterClient creates a new ParameterClientImpl instance
func NewParameterClient(client *ssm.Client) *ParameterClientImpl {
	return &ParameterClientImpl{client: client}
}

// GetParameter reads one parameter from SSM Parameter Store
func (c *ParameterClientImpl) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return c.client.GetParameter(ctx, params, optFns...)
}

// S3ClientImpl implements S3Client using the AWS SDK.
type S3ClientImpl struct {
	client *s3.Client
}

// NewS3Client creates a new S3ClientImpl instance
func NewS3Client(client *s3.Client) *S3ClientImpl {
	return &S3ClientImpl{client: client}
}

// HeadObject implements the S3Client interface for retrieving object metadata
func (c *S3ClientImpl) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return c.client.HeadObject(ctx, params, optFns...)
}

// PutObject implements the S3Client interface for writing objects
func (c *S3ClientImpl) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return c.client.PutObject(ctx, params, optFns...)
}

// ListObjectsV2 implements the S3Client interface for listing a prefix
func (c *S3ClientImpl) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return c.client.ListObjectsV2(ctx, params, optFns...)
}

// IAMClientImpl implements IAMClient using the AWS SDK.
type IAMClientImpl struct {
	client *iam.Client
}

// NewIAMClient creates a new IAMClientImpl instance
func NewIAMClient(client *iam.Client) *IAMClientImpl {
	return &IAMClientImpl{client: client}
}

// SimulatePrincipalPolicy implements the IAMClient interface for permission simulation
func (c *IAMClientImpl) SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	return c.client.SimulatePrincipalPolicy(ctx, params, optFns...)
}

// DynamoDBClientImpl implements DynamoDBClient using the AWS SDK.
type DynamoDBClientImpl struct {
	client *dynamodb.Client
}

// NewDynamoDBClient creates a new DynamoDBClientImpl instance
func NewDynamoDBClient(client *dynamodb.Client) *DynamoDBClientImpl {
	return &DynamoDBClientImpl{client: client}
}

// PutItem implements the DynamoDBClient interface for writing a single item
func (c *DynamoDBClientImpl) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return c.client.PutItem(ctx, params, optFns...)
}

// Query implements the DynamoDBClient interface for key-condition queries
func (c *DynamoDBClientImpl) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return c.client.Query(ctx, params, optFns...)
}
