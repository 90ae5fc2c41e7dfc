// Package main implements the fs-ingest-pipeline command. It resolves the
// SageMaker environment of the caller, builds the S3 to Feature Store
// ingestion pipeline and creates or updates it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gurre/fs-ingest/aws"
	"github.com/gurre/fs-ingest/builder"
	"github.com/gurre/fs-ingest/config"
	"github.com/gurre/fs-ingest/deploy"
	"github.com/gurre/fs-ingest/environment"
	"github.com/gurre/fs-ingest/flow"
	"github.com/gurre/fs-ingest/ledger"
	"github.com/gurre/fs-ingest/logging"
	"github.com/gurre/fs-ingest/metrics"
	"github.com/gurre/fs-ingest/preflight"
	"github.com/gurre/s3streamer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration. Validate already
// prefixes its errors, so they are returned as is.
func loadConfig(args []string) (*config.Config, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	if awsCfg.Region == "" {
		return errors.New("no AWS region configured")
	}

	sageMakerClient := aws.NewSageMakerClient(sagemaker.NewFromConfig(awsCfg))
	parameterClient := aws.NewParameterClient(ssm.NewFromConfig(awsCfg))
	rawS3Client := s3.NewFromConfig(awsCfg)
	s3Client := aws.NewS3Client(rawS3Client)

	m := metrics.NewMetrics()

	resolver := environment.NewResolver(sageMakerClient, parameterClient, awsCfg.Region,
		environment.WithLogger(logger), environment.WithMetrics(m))
	upserter := deploy.NewUpserter(sageMakerClient, s3Client,
		deploy.WithLogger(logger), deploy.WithMetrics(m))

	opts := []builder.Option{
		builder.WithLogger(logger),
		builder.WithImage(cfg.ImageURI, cfg.ImageVersion),
		builder.WithSizing(builder.Sizing{
			InstanceType:  cfg.InstanceType,
			InstanceCount: cfg.InstanceCount,
			VolumeSizeGB:  cfg.VolumeSizeGB,
		}),
		builder.WithMaxRuntime(cfg.MaxRuntime),
		builder.WithDryRun(cfg.DryRun),
	}
	if cfg.CheckFlow {
		opts = append(opts, builder.WithFlowCheck(flow.NewInspector(s3streamer.NewS3Streamer(rawS3Client))))
	}
	if cfg.Preflight {
		iamClient := aws.NewIAMClient(iam.NewFromConfig(awsCfg))
		opts = append(opts, builder.WithPreflight(preflight.NewChecker(s3Client, iamClient, m)))
	}

	switch {
	case cfg.LedgerTable != "":
		ddb := aws.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg))
		opts = append(opts, builder.WithLedger(ledger.NewDynamoDBStore(ddb, cfg.LedgerTable)))
	case cfg.LedgerFile != "":
		store, err := ledger.NewFileStore(cfg.LedgerFile)
		if err != nil {
			return fmt.Errorf("failed to create ledger store: %w", err)
		}
		opts = append(opts, builder.WithLedger(store))
	}

	b := builder.New(resolver, upserter, awsCfg.Region, opts...)

	out, err := b.Deploy(ctx, builder.RequestFromConfig(cfg))
	if out.Pipeline == nil {
		return err
	}

	report := m.GenerateReport()
	report.PipelineName = out.Pipeline.Name
	report.PipelineARN = out.Result.PipelineARN
	report.Action = string(out.Result.Action)
	rendered, rerr := report.Render(cfg.LogFormat)
	if rerr != nil {
		return errors.Join(err, rerr)
	}
	fmt.Println(rendered)
	return err
}
