// Package deploy upserts pipeline definitions into SageMaker: create the
// pipeline when its name is free, otherwise replace the existing definition
// and re-apply the tags.
package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	smtypes "github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/gurre/fs-ingest/aws"
	"github.com/gurre/fs-ingest/logging"
	"github.com/gurre/fs-ingest/metrics"
	"github.com/gurre/fs-ingest/pipeline"
	"github.com/rs/zerolog"
)

// MaxInlineDefinitionBytes is the largest definition sent inline; larger
// ones are uploaded to S3 first.
const MaxInlineDefinitionBytes = 100 * 1024

// Action records whether an upsert created or replaced the pipeline.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped" // dry run
)

// Tag is a key/value pair attached to the pipeline.
type Tag struct {
	Key   string
	Value string
}

// Options carry the per-upsert values that are not part of the definition.
type Options struct {
	RoleARN     string
	Description string
	Tags        []Tag

	// DefinitionBucket receives definitions over MaxInlineDefinitionBytes.
	// When empty, large definitions are still sent inline.
	DefinitionBucket string
}

// Result describes a completed upsert.
type Result struct {
	PipelineARN     string
	Action          Action
	ClientToken     string
	Definition      []byte
	DefinitionS3URI string // set when the definition was uploaded
}

// Upserter creates or updates pipelines.
type Upserter struct {
	client  aws.PipelineClient
	s3      aws.S3Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures an Upserter.
type Option func(*Upserter)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(u *Upserter) { u.logger = logging.Component(l, "deploy") }
}

// WithMetrics sets the collector that counts control-plane calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Upserter) { u.metrics = m }
}

// NewUpserter creates an Upserter. s3Client may be nil, in which case
// definitions are always sent inline.
func NewUpserter(client aws.PipelineClient, s3Client aws.S3Client, opts ...Option) *Upserter {
	u := &Upserter{client: client, s3: s3Client, logger: logging.Nop()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upsert creates the pipeline, or updates it and re-applies tags when a
// pipeline with the same name already exists. Any other platform error is
// returned unchanged apart from wrapping.
func (u *Upserter) Upsert(ctx context.Context, p *pipeline.Pipeline, opts Options) (Result, error) {
	body, err := p.Definition()
	if err != nil {
		return Result{}, err
	}

	res := Result{Definition: body, ClientToken: uuid.NewString()}

	var location *smtypes.PipelineDefinitionS3Location
	if len(body) > MaxInlineDefinitionBytes && opts.DefinitionBucket != "" && u.s3 != nil {
		location, err = u.uploadDefinition(ctx, p.Name, opts.DefinitionBucket, body)
		if err != nil {
			return Result{}, err
		}
		res.DefinitionS3URI = fmt.Sprintf("s3://%s/%s", *location.Bucket, *location.ObjectKey)
	}

	create := &sagemaker.CreatePipelineInput{
		PipelineName:       awssdk.String(p.Name),
		ClientRequestToken: awssdk.String(res.ClientToken),
		RoleArn:            awssdk.String(opts.RoleARN),
		Tags:               sdkTags(opts.Tags),
	}
	if opts.Description != "" {
		create.PipelineDescription = awssdk.String(opts.Description)
	}
	if location != nil {
		create.PipelineDefinitionS3Location = location
	} else {
		create.PipelineDefinition = awssdk.String(string(body))
	}

	u.metrics.RecordCall(metrics.CallCreatePipeline)
	created, err := u.client.CreatePipeline(ctx, create)
	if err == nil {
		res.PipelineARN = awssdk.ToString(created.PipelineArn)
		res.Action = ActionCreated
		return res, nil
	}
	if !IsAlreadyExists(err) {
		return Result{}, fmt.Errorf("failed to create pipeline %s: %w", p.Name, err)
	}

	u.logger.Debug().Str("pipeline", p.Name).Msg("pipeline exists, updating")

	update := &sagemaker.UpdatePipelineInput{
		PipelineName:                 create.PipelineName,
		PipelineDefinition:           create.PipelineDefinition,
		PipelineDefinitionS3Location: create.PipelineDefinitionS3Location,
		PipelineDescription:          create.PipelineDescription,
		RoleArn:                      create.RoleArn,
	}
	u.metrics.RecordCall(metrics.CallUpdatePipeline)
	updated, err := u.client.UpdatePipeline(ctx, update)
	if err != nil {
		return Result{}, fmt.Errorf("failed to update pipeline %s: %w", p.Name, err)
	}
	res.PipelineARN = awssdk.ToString(updated.PipelineArn)
	res.Action = ActionUpdated

	if len(opts.Tags) > 0 {
		u.metrics.RecordCall(metrics.CallAddTags)
		if _, err := u.client.AddTags(ctx, &sagemaker.AddTagsInput{
			ResourceArn: updated.PipelineArn,
			Tags:        sdkTags(opts.Tags),
		}); err != nil {
			return Result{}, fmt.Errorf("failed to tag pipeline %s: %w", p.Name, err)
		}
	}

	return res, nil
}

// uploadDefinition writes body to s3://bucket/{name}/definition.json.
func (u *Upserter) uploadDefinition(ctx context.Context, name, bucket string, body []byte) (*smtypes.PipelineDefinitionS3Location, error) {
	key := name + "/definition.json"
	u.metrics.RecordCall(metrics.CallPutObject)
	if _, err := u.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: awssdk.String("application/json"),
	}); err != nil {
		return nil, fmt.Errorf("failed to upload pipeline definition to s3://%s/%s: %w", bucket, key, err)
	}
	u.logger.Info().Str("bucket", bucket).Str("key", key).Int("bytes", len(body)).Msg("uploaded pipeline definition")
	return &smtypes.PipelineDefinitionS3Location{Bucket: &bucket, ObjectKey: &key}, nil
}

// IsAlreadyExists reports whether err is SageMaker's answer to creating a
// pipeline whose name is taken.
func IsAlreadyExists(err error) bool {
	var inUse *smtypes.ResourceInUse
	if errors.As(err, &inUse) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
		msg := apiErr.ErrorMessage()
		return strings.Contains(msg, "already exists") ||
			strings.Contains(msg, "Pipeline names must be unique")
	}
	return false
}

func sdkTags(tags []Tag) []smtypes.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]smtypes.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, smtypes.Tag{Key: awssdk.String(t.Key), Value: awssdk.String(t.Value)})
	}
	return out
}
