package builder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gurre/fs-ingest/deploy"
	"github.com/gurre/fs-ingest/environment"
	"github.com/gurre/fs-ingest/flow"
	"github.com/gurre/fs-ingest/integration/mock"
	"github.com/gurre/fs-ingest/ledger"
	"github.com/gurre/fs-ingest/pipeline"
	"github.com/gurre/fs-ingest/preflight"
)

type fakeResolver struct {
	record environment.Record
	err    error
	specs  []environment.ParameterSpec
}

func (f *fakeResolver) Resolve(ctx context.Context, specs []environment.ParameterSpec) (environment.Record, error) {
	f.specs = specs
	return f.record, f.err
}

type fakeFlows struct {
	doc *flow.Document
	err error
}

func (f *fakeFlows) Load(ctx context.Context, uri string) (*flow.Document, error) {
	return f.doc, f.err
}

type fakePreflight struct {
	plan preflight.Plan
	err  error
}

func (f *fakePreflight) Run(ctx context.Context, plan preflight.Plan) error {
	f.plan = plan
	return f.err
}

func testRecord() environment.Record {
	return environment.Record{
		environment.KeyDomainArn:       "arn:aws:sagemaker:eu-west-1:111122223333:domain/d-1",
		environment.KeyExecutionRole:   "arn:aws:iam::111122223333:role/studio",
		environment.KeySecurityGroups:  []any{"sg-1"},
		environment.KeySubnetIDs:       []any{"subnet-a", "subnet-b"},
		environment.KeyEnvironmentName: "ml",
		environment.KeyEnvironmentType: "dev",
		EnvPipelineRole:                "arn:aws:iam::111122223333:role/pipeline",
		EnvDataBucket:                  "data-bucket",
		EnvS3KmsKey:                    "arn:aws:kms:eu-west-1:111122223333:key/s3",
		EnvEbsKmsKey:                   "arn:aws:kms:eu-west-1:111122223333:key/ebs",
	}
}

func testRequest() Request {
	return Request{
		PipelineName:        "s3-fs-ingest-pipeline",
		PipelineDescription: "automated ingestion from s3 to feature store",
		ProjectID:           "p-123",
		ProjectName:         "churn",
		FlowS3URI:           "s3://bucket/flows/churn.flow",
		FlowOutputName:      "node-1.default",
		InputDataS3URI:      "s3://bucket/data/",
		FeatureGroupName:    "churn-features",
	}
}

func TestAssembleShape(t *testing.T) {
	b := New(&fakeResolver{}, nil, "eu-west-1")
	p, err := b.Assemble(testRequest(), testRecord())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	wantParams := []string{ParamInstanceType, ParamInstanceCount, ParamVolumeSize, ParamFlowOutputName, ParamInputFlow, ParamInputData}
	if len(p.Parameters) != len(wantParams) {
		t.Fatalf("expected %d parameters, got %d", len(wantParams), len(p.Parameters))
	}
	for i, name := range wantParams {
		if p.Parameters[i].Name != name {
			t.Errorf("parameter %d: expected %s, got %s", i, name, p.Parameters[i].Name)
		}
	}
	if p.Parameters[1].DefaultValue != 1 || p.Parameters[2].DefaultValue != 50 {
		t.Errorf("unexpected sizing defaults: %v %v", p.Parameters[1].DefaultValue, p.Parameters[2].DefaultValue)
	}

	if len(p.Steps) != 1 {
		t.Fatalf("expected one step, got %d", len(p.Steps))
	}
	step, ok := p.Steps[0].(*pipeline.ProcessingStep)
	if !ok {
		t.Fatalf("expected a processing step, got %T", p.Steps[0])
	}
	if step.Name != StepName {
		t.Errorf("expected step %s, got %s", StepName, step.Name)
	}
	if len(step.Inputs) != 2 || step.Inputs[0].InputName != FlowInputName || step.Inputs[1].InputName != DataInputName {
		t.Errorf("unexpected inputs: %+v", step.Inputs)
	}
	if len(step.Outputs) != 1 || step.Outputs[0].FeatureStoreOutput == nil ||
		step.Outputs[0].FeatureStoreOutput.FeatureGroupName != "churn-features" {
		t.Errorf("unexpected outputs: %+v", step.Outputs)
	}

	proc := step.Processor
	if proc.RoleARN != "arn:aws:iam::111122223333:role/studio" {
		t.Errorf("expected studio execution role, got %s", proc.RoleARN)
	}
	if proc.ImageURI != "245179582081.dkr.ecr.eu-west-1.amazonaws.com/sagemaker-data-wrangler-container:1.x" {
		t.Errorf("unexpected image %s", proc.ImageURI)
	}
	if proc.VolumeKMSKey != "arn:aws:kms:eu-west-1:111122223333:key/ebs" || proc.OutputKMSKey != "arn:aws:kms:eu-west-1:111122223333:key/s3" {
		t.Errorf("unexpected kms keys: %s %s", proc.VolumeKMSKey, proc.OutputKMSKey)
	}
	if proc.Network.EnableNetworkIsolation() || !proc.Network.EncryptInterContainerTraffic() {
		t.Error("expected isolation off and inter-container encryption on")
	}
	if got := proc.Network.Subnets(); len(got) != 2 || got[0] != "subnet-a" {
		t.Errorf("unexpected subnets %v", got)
	}
	if got := proc.Network.SecurityGroupIDs(); len(got) != 1 || got[0] != "sg-1" {
		t.Errorf("unexpected security groups %v", got)
	}
}

func TestAssembleDefinitionReferencesParameters(t *testing.T) {
	b := New(&fakeResolver{}, nil, "eu-west-1")
	p, err := b.Assemble(testRequest(), testRecord())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	body, err := p.Definition()
	if err != nil {
		t.Fatalf("Definition failed: %v", err)
	}
	for _, want := range []string{
		`{"Get":"Parameters.InputFlowUrl"}`,
		`{"Get":"Parameters.InputDataUrl"}`,
		`{"Get":"Parameters.ProcessingInstanceType"}`,
		`{"Get":"Parameters.FlowOutputName"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected definition to contain %s", want)
		}
	}
}

func TestAssembleImageOverrides(t *testing.T) {
	b := New(&fakeResolver{}, nil, "eu-west-1", WithImage("custom:latest", ""))
	p, err := b.Assemble(testRequest(), testRecord())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if got := p.Steps[0].(*pipeline.ProcessingStep).Processor.ImageURI; got != "custom:latest" {
		t.Errorf("expected pinned image, got %s", got)
	}

	b = New(&fakeResolver{}, nil, "xx-nowhere-1")
	if _, err := b.Assemble(testRequest(), testRecord()); err == nil {
		t.Error("expected error for a region without an image")
	}
}

func TestAssembleWithSizing(t *testing.T) {
	b := New(&fakeResolver{}, nil, "eu-west-1", WithSizing(Sizing{InstanceType: "ml.c5.xlarge", InstanceCount: 3, VolumeSizeGB: 100}))
	p, err := b.Assemble(testRequest(), testRecord())
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if p.Parameters[0].DefaultValue != "ml.c5.xlarge" || p.Parameters[1].DefaultValue != 3 || p.Parameters[2].DefaultValue != 100 {
		t.Errorf("sizing not applied: %+v", p.Parameters[:3])
	}
}

func TestBuildTwiceYieldsOnePipeline(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	resolver := &fakeResolver{record: testRecord()}
	b := New(resolver, deploy.NewUpserter(sm, nil), "eu-west-1")

	for i := 0; i < 2; i++ {
		if _, err := b.Build(context.Background(), testRequest()); err != nil {
			t.Fatalf("build %d failed: %v", i, err)
		}
	}

	if len(sm.Pipelines) != 1 {
		t.Fatalf("expected one pipeline, got %d", len(sm.Pipelines))
	}
	stored := sm.Pipelines["s3-fs-ingest-pipeline"]
	if stored.RoleARN != "arn:aws:iam::111122223333:role/pipeline" {
		t.Errorf("expected pipeline role, got %s", stored.RoleARN)
	}
	for k, v := range map[string]string{
		"sagemaker:project-name": "churn",
		"sagemaker:project-id":   "p-123",
		"EnvironmentName":        "ml",
		"EnvironmentType":        "dev",
	} {
		if stored.Tags[k] != v {
			t.Errorf("tag %s: expected %q, got %q", k, v, stored.Tags[k])
		}
	}
	if len(resolver.specs) != len(EnvironmentParameters) {
		t.Errorf("expected %d parameter specs, got %d", len(EnvironmentParameters), len(resolver.specs))
	}
}

func TestBuildResolverError(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	b := New(&fakeResolver{err: environment.ErrDomainNotFound}, deploy.NewUpserter(sm, nil), "eu-west-1")

	_, err := b.Build(context.Background(), testRequest())
	if !errors.Is(err, environment.ErrDomainNotFound) {
		t.Fatalf("expected ErrDomainNotFound, got %v", err)
	}
	if sm.CallCount("CreatePipeline") != 0 {
		t.Error("expected no pipeline calls")
	}
}

func TestDeployDryRun(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	b := New(&fakeResolver{record: testRecord()}, deploy.NewUpserter(sm, nil), "eu-west-1", WithDryRun(true))

	out, err := b.Deploy(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Deploy failed: %v", err)
	}
	if out.Result.Action != deploy.ActionSkipped {
		t.Errorf("expected skipped, got %s", out.Result.Action)
	}
	if !json.Valid(out.Result.Definition) {
		t.Error("expected a valid definition")
	}
	if len(sm.Pipelines) != 0 {
		t.Error("dry run must not create pipelines")
	}
}

func TestDeployFlowCheck(t *testing.T) {
	doc, err := flow.Decode([]byte(`{"nodes":[{"node_id":"node-1","type":"TRANSFORM","outputs":[{"name":"default"}]}]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	b := New(&fakeResolver{record: testRecord()}, deploy.NewUpserter(sm, nil), "eu-west-1", WithFlowCheck(&fakeFlows{doc: doc}))
	if _, err := b.Build(context.Background(), testRequest()); err != nil {
		t.Fatalf("expected flow check to pass: %v", err)
	}

	req := testRequest()
	req.FlowOutputName = "node-9.default"
	_, err = b.Build(context.Background(), req)
	if !errors.Is(err, flow.ErrOutputNotFound) {
		t.Fatalf("expected ErrOutputNotFound, got %v", err)
	}
}

func TestDeployPreflightFailureStopsDeploy(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	pf := &fakePreflight{err: preflight.ErrMissingInput}
	b := New(&fakeResolver{record: testRecord()}, deploy.NewUpserter(sm, nil), "eu-west-1", WithPreflight(pf))

	_, err := b.Build(context.Background(), testRequest())
	if !errors.Is(err, preflight.ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
	if len(sm.Pipelines) != 0 {
		t.Error("expected no pipeline after failed preflight")
	}
	if len(pf.plan.Objects) != 1 || pf.plan.Objects[0] != testRequest().FlowS3URI {
		t.Errorf("unexpected plan objects %v", pf.plan.Objects)
	}
}

func TestDeployLedger(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	store := ledger.NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(&fakeResolver{record: testRecord()}, deploy.NewUpserter(sm, nil), "eu-west-1",
		WithLedger(store), WithClock(func() time.Time { return now }))

	first, err := b.Deploy(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("first deploy failed: %v", err)
	}
	if !first.Changed {
		t.Error("expected first deploy to be a change")
	}

	second, err := b.Deploy(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("second deploy failed: %v", err)
	}
	if second.Changed {
		t.Error("expected identical redeploy to be unchanged")
	}

	entries := store.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	if entries[0].Action != string(deploy.ActionCreated) || entries[1].Action != string(deploy.ActionUpdated) {
		t.Errorf("unexpected actions %s, %s", entries[0].Action, entries[1].Action)
	}
	if entries[1].EnvironmentName != "ml" || !entries[1].DeployedAt.Equal(now) {
		t.Errorf("unexpected entry %+v", entries[1])
	}
}

type failingLedger struct {
	latestErr error
	appendErr error
	appended  int
}

func (f *failingLedger) Append(ctx context.Context, e ledger.Entry) error {
	f.appended++
	return f.appendErr
}

func (f *failingLedger) Latest(ctx context.Context, pipelineName string) (ledger.Entry, bool, error) {
	return ledger.Entry{}, false, f.latestErr
}

func TestDeployUnreadableLedgerStillUpserts(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	store := &failingLedger{latestErr: errors.New("table not found")}
	b := New(&fakeResolver{record: testRecord()}, deploy.NewUpserter(sm, nil), "eu-west-1", WithLedger(store))

	out, err := b.Deploy(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("expected deploy to succeed, got %v", err)
	}
	if len(sm.Pipelines) != 1 {
		t.Fatalf("expected one pipeline, got %d", len(sm.Pipelines))
	}
	if !out.Changed {
		t.Error("expected an unreadable ledger to count as changed")
	}
	if out.Result.Action != deploy.ActionCreated {
		t.Errorf("expected created, got %s", out.Result.Action)
	}
	if store.appended != 1 {
		t.Errorf("expected one ledger append, got %d", store.appended)
	}
}

func TestDeployLedgerWriteFailureKeepsOutcome(t *testing.T) {
	sm := mock.NewSageMakerClient("eu-west-1", "111122223333")
	writeErr := errors.New("throttled")
	b := New(&fakeResolver{record: testRecord()}, deploy.NewUpserter(sm, nil), "eu-west-1",
		WithLedger(&failingLedger{appendErr: writeErr}))

	out, err := b.Deploy(context.Background(), testRequest())
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected ledger write error, got %v", err)
	}
	if !strings.Contains(err.Error(), "deployed but ledger write failed") {
		t.Errorf("expected error to say the pipeline was deployed, got %v", err)
	}
	if len(sm.Pipelines) != 1 {
		t.Fatalf("expected one pipeline, got %d", len(sm.Pipelines))
	}
	if out.Pipeline == nil || out.Result.PipelineARN == "" {
		t.Errorf("expected pipeline and ARN in outcome, got %+v", out.Result)
	}

	p, err := b.Build(context.Background(), testRequest())
	if err == nil || p == nil {
		t.Errorf("expected Build to return the pipeline with the error, got %v, %v", p, err)
	}
}

func TestAssembleMaxRuntime(t *testing.T) {
	testCases := []struct {
		name    string
		runtime time.Duration
		want    int
	}{
		{name: "platform default", runtime: 0, want: 0},
		{name: "two hours", runtime: 2 * time.Hour, want: 7200},
		{name: "sub-second truncated", runtime: 90500 * time.Millisecond, want: 90},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := New(&fakeResolver{}, nil, "eu-west-1", WithMaxRuntime(tc.runtime))
			p, err := b.Assemble(testRequest(), testRecord())
			if err != nil {
				t.Fatalf("Assemble failed: %v", err)
			}
			got := p.Steps[0].(*pipeline.ProcessingStep).Processor.MaxRuntimeSeconds
			if got != tc.want {
				t.Errorf("expected %d seconds, got %d", tc.want, got)
			}
			body, err := p.Definition()
			if err != nil {
				t.Fatalf("Definition failed: %v", err)
			}
			if has := strings.Contains(string(body), `"StoppingCondition"`); has != (tc.want > 0) {
				t.Errorf("StoppingCondition present=%v, want %v", has, tc.want > 0)
			}
		})
	}
}
