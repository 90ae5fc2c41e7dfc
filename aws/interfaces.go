// Package aws provides narrow interfaces over the AWS services the pipeline
// deployer talks to, together with SDK-backed implementations. Every component
// depends on these interfaces so tests can substitute in-memory fakes.
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// DomainClient is the read-only slice of SageMaker used to resolve the
// caller's domain, its default user settings and its tags.
type DomainClient interface {
	ListDomains(ctx context.Context, params *sagemaker.ListDomainsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.ListDomainsOutput, error)
	DescribeDomain(ctx context.Context, params *sagemaker.DescribeDomainInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeDomainOutput, error)
	ListTags(ctx context.Context, params *sagemaker.ListTagsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.ListTagsOutput, error)
}

// PipelineClient covers the SageMaker calls needed to upsert a pipeline
// definition and tag it.
type PipelineClient interface {
	CreatePipeline(ctx context.Context, params *sagemaker.CreatePipelineInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreatePipelineOutput, error)
	UpdatePipeline(ctx context.Context, params *sagemaker.UpdatePipelineInput, optFns ...func(*sagemaker.Options)) (*sagemaker.UpdatePipelineOutput, error)
	AddTags(ctx context.Context, params *sagemaker.AddTagsInput, optFns ...func(*sagemaker.Options)) (*sagemaker.AddTagsOutput, error)
}

// SageMakerClient is the union of DomainClient and PipelineClient.
type SageMakerClient interface {
	DomainClient
	PipelineClient
}

// ParameterClient reads single values from SSM Parameter Store.
type ParameterClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// S3Client defines the S3 operations used for preflight checks and for
// offloading large pipeline definitions.
type S3Client interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// IAMClient defines the interface for IAM permission simulation.
type IAMClient interface {
	SimulatePrincipalPolicy(ctx context.Context, params *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error)
}

// DynamoDBClient defines the DynamoDB operations used by the deployment ledger.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Compile-time interface checks to ensure implementations satisfy interfaces
var (
	_ SageMakerClient = (*SageMakerClientImpl)(nil)
	_ ParameterClient = (*ParameterClientImpl)(nil)
	_ S3Client        = (*S3ClientImpl)(nil)
	_ IAMClient       = (*IAMClientImpl)(nil)
	_ DynamoDBClient  = (*DynamoDBClientImpl)(nil)

	// AWS SDK interface checks to ensure SDK clients satisfy interfaces
	_ SageMakerClient = (*sagemaker.Client)(nil)
	_ ParameterClient = (*ssm.Client)(nil)
	_ S3Client        = (*s3.Client)(nil)
	_ IAMClient       = (*iam.Client)(nil)
	_ DynamoDBClient  = (*dynamodb.Client)(nil)
)
