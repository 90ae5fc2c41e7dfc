// Package config holds the deploy run configuration. Values come from
// command-line flags, an optional YAML config file, FS_INGEST_* environment
// variables and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults mirror the pipeline's own parameter defaults.
const (
	DefaultPipelineName        = "s3-fs-ingest-pipeline"
	DefaultPipelineDescription = "automated ingestion from s3 to feature store"
	DefaultInstanceType        = "ml.m5.4xlarge"
	DefaultInstanceCount       = 1
	DefaultVolumeSizeGB        = 50
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "console"
)

// Config holds all configuration for one deploy run.
type Config struct {
	PipelineName        string `mapstructure:"pipeline_name" validate:"required,max=256"`
	PipelineDescription string `mapstructure:"pipeline_description" validate:"max=3072"`
	ProjectID           string `mapstructure:"project_id"`
	ProjectName         string `mapstructure:"project_name"`

	FlowS3URI        string `mapstructure:"flow_uri" validate:"required,s3uri"`       // Data Wrangler .flow document
	FlowOutputName   string `mapstructure:"flow_output_name" validate:"required"`     // "{node_id}.{output}"
	InputDataS3URI   string `mapstructure:"input_uri" validate:"required,s3uri"`      // raw dataset prefix
	FeatureGroupName string `mapstructure:"feature_group" validate:"required,max=64"` // target feature group

	Region        string `mapstructure:"region"` // empty: SDK default chain
	ImageURI      string `mapstructure:"image_uri"`
	ImageVersion  string `mapstructure:"image_version"`
	InstanceType  string `mapstructure:"instance_type" validate:"required,startswith=ml."`
	InstanceCount int    `mapstructure:"instance_count" validate:"min=1"`
	VolumeSizeGB  int    `mapstructure:"volume_size" validate:"min=1,max=16384"`

	MaxRuntime time.Duration `mapstructure:"max_runtime" validate:"min=0,max=216h"` // 0 leaves the platform default

	CheckFlow   bool   `mapstructure:"check_flow"`
	Preflight   bool   `mapstructure:"preflight"`
	DryRun      bool   `mapstructure:"dry_run"`
	LedgerTable string `mapstructure:"ledger_table"`
	LedgerFile  string `mapstructure:"ledger_file" validate:"omitempty,fileuri"`

	LogLevel  string        `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat string        `mapstructure:"log_format" validate:"omitempty,oneof=console json"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// Default returns a Config with every optional field at its default.
func Default() *Config {
	return &Config{
		PipelineName:        DefaultPipelineName,
		PipelineDescription: DefaultPipelineDescription,
		InstanceType:        DefaultInstanceType,
		InstanceCount:       DefaultInstanceCount,
		VolumeSizeGB:        DefaultVolumeSizeGB,
		LogLevel:            DefaultLogLevel,
		LogFormat:           DefaultLogFormat,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("s3uri", func(fl validator.FieldLevel) bool {
			return isS3URI(fl.Field().String())
		})
		_ = validate.RegisterValidation("fileuri", func(fl validator.FieldLevel) bool {
			u, err := url.Parse(fl.Field().String())
			return err == nil && u.Scheme == "file" && strings.HasPrefix(u.Path, "/")
		})
	})
	return validate
}

// Validate checks every field against its constraints and reports all
// violations in one error.
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validation failed: %w", err)
	}

	messages := make([]string, 0, len(verrs))
	for _, e := range verrs {
		messages = append(messages, fmt.Sprintf("%s %s", e.Field(), describe(e)))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "s3uri":
		return "must be an s3://bucket/key URI"
	case "fileuri":
		return "must be an absolute file:// URI"
	case "startswith":
		return "must start with " + e.Param()
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "failed " + e.Tag() + " validation"
	}
}

// isS3URI reports whether uri is s3://bucket with a non-empty bucket.
func isS3URI(uri string) bool {
	if !strings.HasPrefix(uri, "s3://") {
		return false
	}
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return u.Scheme == "s3" && u.Host != ""
}
