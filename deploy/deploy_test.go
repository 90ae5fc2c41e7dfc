package deploy

import (
	"context"
	"errors"
	"strings"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	smtypes "github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/smithy-go"
	"github.com/gurre/fs-ingest/integration/mock"
	"github.com/gurre/fs-ingest/metrics"
	"github.com/gurre/fs-ingest/pipeline"
)

func testPipeline(name string, image string) *pipeline.Pipeline {
	step := &pipeline.ProcessingStep{
		Name: "process",
		Processor: pipeline.Processor{
			RoleARN:        "arn:aws:iam::111122223333:role/exec",
			ImageURI:       image,
			InstanceCount:  1,
			InstanceType:   "ml.m5.xlarge",
			VolumeSizeInGB: 30,
			Network:        pipeline.NewNetworkConfig(nil, nil),
		},
	}
	return pipeline.New(name, nil, []pipeline.Step{step})
}

func testOptions() Options {
	return Options{
		RoleARN:     "arn:aws:iam::111122223333:role/pipeline",
		Description: "test pipeline",
		Tags: []Tag{
			{Key: "EnvironmentName", Value: "ml"},
			{Key: "EnvironmentType", Value: "dev"},
		},
	}
}

func TestUpsertCreates(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	m := metrics.NewMetrics()
	u := NewUpserter(sm, nil, WithMetrics(m))

	res, err := u.Upsert(context.Background(), testPipeline("p1", "img:1"), testOptions())
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if res.Action != ActionCreated {
		t.Errorf("expected created, got %s", res.Action)
	}
	if res.PipelineARN == "" || res.ClientToken == "" {
		t.Errorf("expected ARN and client token, got %+v", res)
	}

	stored := sm.Pipelines["p1"]
	if stored == nil {
		t.Fatal("pipeline not stored")
	}
	if stored.RoleARN != "arn:aws:iam::111122223333:role/pipeline" || stored.Description != "test pipeline" {
		t.Errorf("unexpected stored pipeline: %+v", stored)
	}
	if stored.Tags["EnvironmentName"] != "ml" {
		t.Errorf("expected tags on create, got %v", stored.Tags)
	}
	if stored.Definition != string(res.Definition) {
		t.Error("stored definition differs from rendered definition")
	}
	if m.Calls(metrics.CallCreatePipeline) != 1 || m.Calls(metrics.CallUpdatePipeline) != 0 {
		t.Error("unexpected call counts for create")
	}
}

func TestUpsertIsIdempotentByName(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	u := NewUpserter(sm, nil)
	ctx := context.Background()

	first, err := u.Upsert(ctx, testPipeline("p1", "img:1"), testOptions())
	if err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	second, err := u.Upsert(ctx, testPipeline("p1", "img:2"), testOptions())
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	if len(sm.Pipelines) != 1 {
		t.Fatalf("expected one pipeline, got %d", len(sm.Pipelines))
	}
	if second.Action != ActionUpdated {
		t.Errorf("expected updated, got %s", second.Action)
	}
	if first.PipelineARN != second.PipelineARN {
		t.Errorf("ARN changed across upserts: %s vs %s", first.PipelineARN, second.PipelineARN)
	}
	if !strings.Contains(sm.Pipelines["p1"].Definition, "img:2") {
		t.Error("expected definition to be replaced")
	}
	if sm.Pipelines["p1"].Version != 2 {
		t.Errorf("expected version 2, got %d", sm.Pipelines["p1"].Version)
	}
	if sm.CallCount("AddTags") != 1 {
		t.Errorf("expected tags re-applied once, got %d", sm.CallCount("AddTags"))
	}
	if first.ClientToken == second.ClientToken {
		t.Error("expected a fresh client token per upsert")
	}
}

func TestUpsertPropagatesOtherErrors(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	denied := &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not allowed"}
	sm.CreatePipelineErr = denied

	_, err := NewUpserter(sm, nil).Upsert(context.Background(), testPipeline("p1", "img:1"), testOptions())
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "AccessDeniedException" {
		t.Errorf("expected wrapped API error, got %v", err)
	}
	if sm.CallCount("UpdatePipeline") != 0 {
		t.Error("must not fall back to update on unrelated errors")
	}
}

func TestUpsertOffloadsLargeDefinitions(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	s3 := mock.NewS3Client()
	u := NewUpserter(sm, s3)

	big := testPipeline("big", "img:1")
	big.Parameters = []pipeline.Parameter{
		pipeline.ParameterString("Padding", strings.Repeat("x", MaxInlineDefinitionBytes)),
	}
	opts := testOptions()
	opts.DefinitionBucket = "data-bucket"

	res, err := u.Upsert(context.Background(), big, opts)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if res.DefinitionS3URI != "s3://data-bucket/big/definition.json" {
		t.Errorf("unexpected definition location: %s", res.DefinitionS3URI)
	}
	if _, ok := s3.Get("data-bucket", "big/definition.json"); !ok {
		t.Error("definition not uploaded")
	}
	stored := sm.Pipelines["big"]
	if stored.Definition != "" || stored.S3Location == nil {
		t.Errorf("expected S3 location instead of inline body, got %+v", stored)
	}
}

func TestUpsertRejectsInvalidPipeline(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	p := testPipeline("", "img:1")
	if _, err := NewUpserter(sm, nil).Upsert(context.Background(), p, testOptions()); !errors.Is(err, pipeline.ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
	if sm.CallCount("CreatePipeline") != 0 {
		t.Error("invalid pipeline must not reach the platform")
	}
}

func TestIsAlreadyExists(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"resource in use", &smtypes.ResourceInUse{Message: awssdk.String("in use")}, true},
		{"unique name", &smithy.GenericAPIError{Code: "ValidationException", Message: "Pipeline names must be unique within an AWS account and region"}, true},
		{"already exists", &smithy.GenericAPIError{Code: "ValidationException", Message: "Pipeline p already exists"}, true},
		{"other validation", &smithy.GenericAPIError{Code: "ValidationException", Message: "bad role"}, false},
		{"other code", &smithy.GenericAPIError{Code: "ThrottlingException", Message: "already exists"}, false},
		{"plain error", errors.New("already exists"), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAlreadyExists(tc.err); got != tc.want {
				t.Errorf("IsAlreadyExists = %v, want %v", got, tc.want)
			}
		})
	}
}
