// Package builder assembles the S3-to-Feature-Store ingestion pipeline and
// deploys it. A build is one linear sequence: resolve the environment,
// declare parameters, inputs and outputs, pick the processing image, build
// the network and processor, assemble the single processing step and the
// pipeline, then upsert it.
package builder

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gurre/fs-ingest/config"
	"github.com/gurre/fs-ingest/deploy"
	"github.com/gurre/fs-ingest/environment"
	"github.com/gurre/fs-ingest/flow"
	"github.com/gurre/fs-ingest/imageuri"
	"github.com/gurre/fs-ingest/ledger"
	"github.com/gurre/fs-ingest/logging"
	"github.com/gurre/fs-ingest/pipeline"
	"github.com/gurre/fs-ingest/preflight"
	"github.com/rs/zerolog"
)

// Parameter names declared on every pipeline.
const (
	ParamInstanceType   = "ProcessingInstanceType"
	ParamInstanceCount  = "ProcessingInstanceCount"
	ParamVolumeSize     = "ProcessingVolumeSize"
	ParamFlowOutputName = "FlowOutputName"
	ParamInputFlow      = "InputFlowUrl"
	ParamInputData      = "InputDataUrl"
)

// Fixed layout of the processing step.
const (
	StepName        = "datawrangler-processing-to-feature-store"
	FlowInputName   = "flow"
	DataInputName   = "data"
	FlowMountPath   = "/opt/ml/processing/flow"
	DataMountPath   = "/opt/ml/processing/data"
	EnvPipelineRole = "PipelineExecutionRole"
	EnvDataBucket   = "DataBucketName"
	EnvS3KmsKey     = "S3KmsKeyId"
	EnvEbsKmsKey    = "EbsKmsKeyArn"
)

// EnvironmentParameters are the parameter-store values every build resolves.
var EnvironmentParameters = []environment.ParameterSpec{
	{VariableName: EnvPipelineRole, ParameterName: "sm-pipeline-execution-role-arn"},
	{VariableName: EnvDataBucket, ParameterName: "data-bucket-name"},
	{VariableName: EnvS3KmsKey, ParameterName: "kms-s3-key-arn"},
	{VariableName: EnvEbsKmsKey, ParameterName: "kms-ebs-key-arn"},
}

// Request identifies the pipeline to build and the data it processes.
type Request struct {
	PipelineName        string
	PipelineDescription string
	ProjectID           string
	ProjectName         string
	FlowS3URI           string
	FlowOutputName      string
	InputDataS3URI      string
	FeatureGroupName    string
}

// RequestFromConfig copies the request fields out of a Config.
func RequestFromConfig(cfg *config.Config) Request {
	return Request{
		PipelineName:        cfg.PipelineName,
		PipelineDescription: cfg.PipelineDescription,
		ProjectID:           cfg.ProjectID,
		ProjectName:         cfg.ProjectName,
		FlowS3URI:           cfg.FlowS3URI,
		FlowOutputName:      cfg.FlowOutputName,
		InputDataS3URI:      cfg.InputDataS3URI,
		FeatureGroupName:    cfg.FeatureGroupName,
	}
}

// Sizing holds the defaults of the three compute-sizing parameters.
type Sizing struct {
	InstanceType  string
	InstanceCount int
	VolumeSizeGB  int
}

// DefaultSizing matches the pipeline's historical defaults.
var DefaultSizing = Sizing{
	InstanceType:  config.DefaultInstanceType,
	InstanceCount: config.DefaultInstanceCount,
	VolumeSizeGB:  config.DefaultVolumeSizeGB,
}

// Resolver resolves the deployment environment.
type Resolver interface {
	Resolve(ctx context.Context, specs []environment.ParameterSpec) (environment.Record, error)
}

// Upserter creates or replaces a pipeline on the platform.
type Upserter interface {
	Upsert(ctx context.Context, p *pipeline.Pipeline, opts deploy.Options) (deploy.Result, error)
}

// FlowLoader loads a flow document.
type FlowLoader interface {
	Load(ctx context.Context, uri string) (*flow.Document, error)
}

// PreflightRunner runs pre-deploy checks.
type PreflightRunner interface {
	Run(ctx context.Context, plan preflight.Plan) error
}

// Outcome is everything a deploy produced.
type Outcome struct {
	Pipeline    *pipeline.Pipeline
	Environment environment.Record
	Result      deploy.Result
	Changed     bool // definition differs from the last ledger entry, or no entry exists
}

// Builder builds and deploys the ingestion pipeline.
type Builder struct {
	resolver Resolver
	upserter Upserter
	region   string

	sizing       Sizing
	maxRuntime   time.Duration
	imageURI     string
	imageVersion string
	dryRun       bool

	flows     FlowLoader
	preflight PreflightRunner
	ledger    ledger.Store

	logger zerolog.Logger
	now    func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Builder) { b.logger = logging.Component(l, "builder") }
}

// WithSizing overrides the defaults of the sizing parameters.
func WithSizing(s Sizing) Option {
	return func(b *Builder) { b.sizing = s }
}

// WithMaxRuntime sets the processing job stopping condition. Zero keeps the
// platform default.
func WithMaxRuntime(d time.Duration) Option {
	return func(b *Builder) { b.maxRuntime = d }
}

// WithImage pins the processing image URI, or the Data Wrangler image
// version when uri is empty.
func WithImage(uri, version string) Option {
	return func(b *Builder) {
		b.imageURI = uri
		b.imageVersion = version
	}
}

// WithDryRun builds the pipeline without upserting it.
func WithDryRun(dryRun bool) Option {
	return func(b *Builder) { b.dryRun = dryRun }
}

// WithFlowCheck verifies the flow output exists before deploying.
func WithFlowCheck(l FlowLoader) Option {
	return func(b *Builder) { b.flows = l }
}

// WithPreflight runs preflight checks before deploying.
func WithPreflight(r PreflightRunner) Option {
	return func(b *Builder) { b.preflight = r }
}

// WithLedger records each deployment in store.
func WithLedger(store ledger.Store) Option {
	return func(b *Builder) { b.ledger = store }
}

// WithClock sets the time source for ledger entries.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// New creates a Builder deploying into region.
func New(resolver Resolver, upserter Upserter, region string, opts ...Option) *Builder {
	b := &Builder{
		resolver: resolver,
		upserter: upserter,
		region:   region,
		sizing:   DefaultSizing,
		logger:   logging.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build constructs and upserts the pipeline and returns it.
func (b *Builder) Build(ctx context.Context, req Request) (*pipeline.Pipeline, error) {
	out, err := b.Deploy(ctx, req)
	return out.Pipeline, err
}

// Deploy is Build returning everything the run produced. The ledger never
// blocks the upsert: an unreadable ledger counts as a changed definition,
// and a failed ledger write after a successful upsert returns the filled
// Outcome together with the error.
func (b *Builder) Deploy(ctx context.Context, req Request) (Outcome, error) {
	b.logger.Info().Str("pipeline", req.PipelineName).Msg("creating S3 to feature store ingestion pipeline")

	env, err := b.resolver.Resolve(ctx, EnvironmentParameters)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to resolve environment: %w", err)
	}
	if b.logger.GetLevel() <= zerolog.InfoLevel {
		if data, err := json.MarshalIndent(env, "", "  "); err == nil {
			b.logger.Info().Msgf("retrieved environment data:\n%s", data)
		}
	}

	p, err := b.Assemble(req, env)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Pipeline: p, Environment: env, Changed: true}

	if b.flows != nil {
		doc, err := b.flows.Load(ctx, req.FlowS3URI)
		if err != nil {
			return Outcome{}, err
		}
		if err := doc.RequireOutput(req.FlowOutputName); err != nil {
			return Outcome{}, err
		}
		b.logger.Debug().Strs("sources", doc.SourceURIs()).Msg("flow output verified")
	}

	if b.preflight != nil {
		if err := b.preflight.Run(ctx, PreflightPlan(req, env)); err != nil {
			return Outcome{}, fmt.Errorf("preflight failed: %w", err)
		}
		b.logger.Info().Msg("preflight checks passed")
	}

	body, err := p.Definition()
	if err != nil {
		return Outcome{}, err
	}
	digest := ledger.Digest(body)
	if b.ledger != nil {
		last, ok, err := b.ledger.Latest(ctx, p.Name)
		if err != nil {
			b.logger.Warn().Err(err).Msg("failed to read last deployment, treating definition as changed")
		} else {
			out.Changed = !ok || last.DefinitionDigest != digest
			b.logger.Info().Bool("changed", out.Changed).Str("digest", digest).Msg("compared definition with last deployment")
		}
	}

	if b.dryRun {
		b.logger.Info().RawJSON("definition", body).Msg("dry run, pipeline not deployed")
		out.Result = deploy.Result{Action: deploy.ActionSkipped, Definition: body}
		return out, nil
	}

	res, err := b.upserter.Upsert(ctx, p, deploy.Options{
		RoleARN:          env.String(EnvPipelineRole),
		Description:      req.PipelineDescription,
		Tags:             Tags(req, env),
		DefinitionBucket: env.String(EnvDataBucket),
	})
	if err != nil {
		return Outcome{}, err
	}
	out.Result = res
	b.logger.Info().
		Str("pipelineArn", res.PipelineARN).
		Str("action", string(res.Action)).
		Msg("pipeline upsert response")

	if b.ledger != nil {
		if err := b.ledger.Append(ctx, ledger.Entry{
			PipelineName:     p.Name,
			PipelineARN:      res.PipelineARN,
			Action:           string(res.Action),
			DefinitionDigest: digest,
			EnvironmentName:  env.String(environment.KeyEnvironmentName),
			EnvironmentType:  env.String(environment.KeyEnvironmentType),
			ClientToken:      res.ClientToken,
			DeployedAt:       b.now(),
		}); err != nil {
			return out, fmt.Errorf("pipeline %s deployed but ledger write failed: %w", p.Name, err)
		}
	}

	return out, nil
}

// Assemble builds the in-memory pipeline from a request and a resolved
// environment without calling the platform.
func (b *Builder) Assemble(req Request, env environment.Record) (*pipeline.Pipeline, error) {
	params := DeclareParameters(req, b.sizing)
	byName := make(map[string]pipeline.Parameter, len(params))
	for _, p := range params {
		byName[p.Name] = p
	}

	inputs := []pipeline.ProcessingInput{
		pipeline.NewS3Input(FlowInputName, byName[ParamInputFlow].Ref(), FlowMountPath),
		pipeline.NewS3Input(DataInputName, byName[ParamInputData].Ref(), DataMountPath),
	}
	outputs := []pipeline.ProcessingOutput{
		pipeline.NewFeatureStoreOutput(byName[ParamFlowOutputName].Ref(), req.FeatureGroupName),
	}

	image := b.imageURI
	if image == "" {
		var err error
		image, err = imageuri.Retrieve(imageuri.FrameworkDataWrangler, b.region, b.imageVersion)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve processing image: %w", err)
		}
	}

	network := pipeline.NewNetworkConfig(
		env.Strings(environment.KeySecurityGroups),
		env.Strings(environment.KeySubnetIDs),
	)

	b.logger.Info().Str("image", image).Msg("creating Data Wrangler processor")

	processor := pipeline.Processor{
		RoleARN:        env.String(environment.KeyExecutionRole),
		ImageURI:       image,
		InstanceCount:  byName[ParamInstanceCount].Ref(),
		InstanceType:   byName[ParamInstanceType].Ref(),
		VolumeSizeInGB: byName[ParamVolumeSize].Ref(),
		Network:        network,
		VolumeKMSKey:   env.String(EnvEbsKmsKey),
		OutputKMSKey:   env.String(EnvS3KmsKey),

		MaxRuntimeSeconds: int(b.maxRuntime / time.Second),
	}

	step := &pipeline.ProcessingStep{
		Name:      StepName,
		Processor: processor,
		Inputs:    inputs,
		Outputs:   outputs,
	}

	p := pipeline.New(req.PipelineName, params, []pipeline.Step{step})
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// DeclareParameters returns the six pipeline parameters in declaration order.
func DeclareParameters(req Request, s Sizing) []pipeline.Parameter {
	return []pipeline.Parameter{
		pipeline.ParameterString(ParamInstanceType, s.InstanceType),
		pipeline.ParameterInteger(ParamInstanceCount, s.InstanceCount),
		pipeline.ParameterInteger(ParamVolumeSize, s.VolumeSizeGB),
		pipeline.ParameterString(ParamFlowOutputName, req.FlowOutputName),
		pipeline.ParameterString(ParamInputFlow, req.FlowS3URI),
		pipeline.ParameterString(ParamInputData, req.InputDataS3URI),
	}
}

// Tags returns the four tags attached on upsert, in order.
func Tags(req Request, env environment.Record) []deploy.Tag {
	return []deploy.Tag{
		{Key: "sagemaker:project-name", Value: req.ProjectName},
		{Key: "sagemaker:project-id", Value: req.ProjectID},
		{Key: environment.KeyEnvironmentName, Value: env.String(environment.KeyEnvironmentName)},
		{Key: environment.KeyEnvironmentType, Value: env.String(environment.KeyEnvironmentType)},
	}
}

// PreflightPlan lists the checks run before deploying req.
func PreflightPlan(req Request, env environment.Record) preflight.Plan {
	return preflight.Plan{
		Objects:  []string{req.FlowS3URI},
		Prefixes: []string{req.InputDataS3URI},
		Permissions: []preflight.Permission{
			{
				PrincipalARN: env.String(environment.KeyExecutionRole),
				Actions:      []string{"s3:GetObject", "s3:ListBucket", "sagemaker:PutRecord"},
			},
			{
				PrincipalARN: env.String(EnvPipelineRole),
				Actions:      []string{"sagemaker:CreateProcessingJob", "iam:PassRole"},
			},
		},
	}
}
