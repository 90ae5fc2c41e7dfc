package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read into a Config.
const EnvPrefix = "FS_INGEST"

// RegisterFlags declares the command-line flags on fs. Flag names use dashes;
// the matching config keys and environment variables use underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "YAML config file")
	fs.String("env-file", "", ".env file loaded before reading environment variables")

	fs.String("pipeline-name", d.PipelineName, "Pipeline name")
	fs.String("pipeline-description", d.PipelineDescription, "Pipeline description")
	fs.String("project-id", "", "SageMaker project id tag")
	fs.String("project-name", "", "SageMaker project name tag")
	fs.String("flow-uri", "", "S3 URI of the Data Wrangler .flow file")
	fs.String("flow-output-name", "", "Flow output to process, as {node_id}.{output}")
	fs.String("input-uri", "", "S3 URI of the input dataset prefix")
	fs.String("feature-group", "", "Target feature group name")
	fs.String("region", "", "AWS region (defaults to the SDK region chain)")
	fs.String("image-uri", "", "Processing image URI (defaults to the Data Wrangler image for the region)")
	fs.String("image-version", "", "Data Wrangler image version")
	fs.String("instance-type", d.InstanceType, "Default processing instance type")
	fs.Int("instance-count", d.InstanceCount, "Default processing instance count")
	fs.Int("volume-size", d.VolumeSizeGB, "Default processing volume size in GB")
	fs.Duration("max-runtime", 0, "Processing job stopping condition (0 keeps the platform default)")
	fs.Bool("check-flow", false, "Verify the flow output exists in the flow file before deploying")
	fs.Bool("preflight", false, "Check S3 inputs and IAM permissions before deploying")
	fs.Bool("dry-run", false, "Build and print the definition without deploying")
	fs.String("ledger-table", "", "DynamoDB table recording deployments")
	fs.String("ledger-file", "", "Local file:// URI recording deployments")
	fs.String("log-level", d.LogLevel, "Log level (trace|debug|info|warn|error)")
	fs.String("log-format", d.LogFormat, "Log format (console|json)")
	fs.Duration("timeout", 0, "Overall timeout for the run (0 disables)")
}

// Load parses args with the registered flags and merges file, environment
// and flag values into a Config. The result is not validated.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("fs-ingest-pipeline", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	return LoadFlagSet(fs)
}

// LoadFlagSet merges an already parsed flag set with file and environment
// values.
func LoadFlagSet(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if envFile, _ := fs.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	if file, _ := fs.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "env-file" {
			return
		}
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return cfg, nil
}
