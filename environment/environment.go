// Package environment resolves deployment environment metadata from the
// caller's SageMaker domain and from SSM Parameter Store.
//
// A resolved Record merges, in order:
//   - every field of the domain description except response metadata and
//     timestamps,
//   - the domain's default user settings, flattened into the top level,
//   - the EnvironmentName and EnvironmentType domain tags,
//   - one value per requested parameter, read from the key
//     "{EnvironmentName}-{EnvironmentType}-{ParameterName}".
//
// Example:
//
//	r := environment.NewResolver(smClient, ssmClient, "eu-west-1")
//	rec, err := r.Resolve(ctx, []environment.ParameterSpec{
//	    {VariableName: "DataBucketName", ParameterName: "data-bucket-name"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(rec.String("DataBucketName"))
package environment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	json "github.com/goccy/go-json"
	"github.com/gurre/fs-ingest/aws"
	"github.com/gurre/fs-ingest/logging"
	"github.com/gurre/fs-ingest/metrics"
	"github.com/rs/zerolog"
)

// Keys with a fixed meaning in a Record.
const (
	KeyDomainArn           = "DomainArn"
	KeyDefaultUserSettings = "DefaultUserSettings"
	KeyEnvironmentName     = "EnvironmentName"
	KeyEnvironmentType     = "EnvironmentType"
	KeyExecutionRole       = "ExecutionRole"
	KeySecurityGroups      = "SecurityGroups"
	KeySubnetIDs           = "SubnetIds"
)

// droppedKeys never appear in a Record.
var droppedKeys = []string{"ResultMetadata", "ResponseMetadata", "CreationTime", "LastModifiedTime"}

// tagAllowList holds the only domain tags copied into a Record.
var tagAllowList = map[string]struct{}{
	KeyEnvironmentName: {},
	KeyEnvironmentType: {},
}

// ErrDomainNotFound is returned when no domain ARN contains the resolver's region.
var ErrDomainNotFound = errors.New("no SageMaker domain found in region")

// ParameterSpec names one parameter-store value to add to a Record.
type ParameterSpec struct {
	VariableName  string // Key the value is stored under in the Record
	ParameterName string // Suffix of the parameter-store name
}

// Record is a resolved environment. Values are strings, numbers, booleans,
// lists and nested objects as produced by the domain description.
type Record map[string]any

// String returns the value at key as a string, or "" when it is absent or
// not a string.
func (r Record) String(key string) string {
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// Strings returns the value at key as a list of strings. A single string is
// returned as a one-element list; anything else yields nil.
func (r Record) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// ParameterName returns the parameter-store key for name under this
// record's environment.
func (r Record) ParameterName(name string) string {
	return fmt.Sprintf("%s-%s-%s", r.String(KeyEnvironmentName), r.String(KeyEnvironmentType), name)
}

// Resolver builds Records. It holds no state between calls.
type Resolver struct {
	domains    aws.DomainClient
	parameters aws.ParameterClient
	region     string
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for warnings and debug output.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = logging.Component(l, "environment") }
}

// WithMetrics sets the collector that counts control-plane calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver for the domain in region.
func NewResolver(domains aws.DomainClient, parameters aws.ParameterClient, region string, opts ...Option) *Resolver {
	r := &Resolver{
		domains:    domains,
		parameters: parameters,
		region:     region,
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve issues one ListDomains, one DescribeDomain, one ListTags and one
// GetParameter per spec. Errors from the domain calls are returned; a failed
// parameter lookup stores "" under its VariableName instead.
func (r *Resolver) Resolve(ctx context.Context, specs []ParameterSpec) (Record, error) {
	domainID, err := r.findDomain(ctx)
	if err != nil {
		return nil, err
	}

	r.metrics.RecordCall(metrics.CallDescribeDomain)
	desc, err := r.domains.DescribeDomain(ctx, &sagemaker.DescribeDomainInput{
		DomainId: &domainID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe domain %s: %w", domainID, err)
	}

	rec, err := recordFromDescription(desc)
	if err != nil {
		return nil, err
	}

	r.metrics.RecordCall(metrics.CallListTags)
	tags, err := r.domains.ListTags(ctx, &sagemaker.ListTagsInput{
		ResourceArn: awssdk.String(rec.String(KeyDomainArn)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags for domain %s: %w", domainID, err)
	}
	for _, tag := range tags.Tags {
		key := awssdk.ToString(tag.Key)
		if _, ok := tagAllowList[key]; ok {
			rec[key] = awssdk.ToString(tag.Value)
		}
	}

	for _, spec := range specs {
		rec[spec.VariableName] = r.lookup(ctx, rec, spec)
	}

	return rec, nil
}

// findDomain returns the id of the first listed domain whose ARN mentions the
// resolver's region.
func (r *Resolver) findDomain(ctx context.Context) (string, error) {
	r.metrics.RecordCall(metrics.CallListDomains)
	out, err := r.domains.ListDomains(ctx, &sagemaker.ListDomainsInput{})
	if err != nil {
		return "", fmt.Errorf("failed to list domains: %w", err)
	}

	var matches []string
	for _, d := range out.Domains {
		if strings.Contains(awssdk.ToString(d.DomainArn), r.region) {
			matches = append(matches, awssdk.ToString(d.DomainId))
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrDomainNotFound, r.region)
	case 1:
	default:
		r.logger.Warn().
			Int("matches", len(matches)).
			Str("region", r.region).
			Str("domainId", matches[0]).
			Msg("multiple domains match region, using the first listed")
	}

	return matches[0], nil
}

// lookup reads one parameter; every failure mode yields "".
func (r *Resolver) lookup(ctx context.Context, rec Record, spec ParameterSpec) string {
	if rec.String(KeyEnvironmentName) == "" || rec.String(KeyEnvironmentType) == "" {
		r.metrics.RecordFailedLookup()
		r.logger.Debug().Str("variable", spec.VariableName).Msg("environment tags missing, parameter left empty")
		return ""
	}

	name := rec.ParameterName(spec.ParameterName)
	r.metrics.RecordCall(metrics.CallGetParameter)
	out, err := r.parameters.GetParameter(ctx, &ssm.GetParameterInput{Name: &name})
	if err != nil || out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		r.metrics.RecordFailedLookup()
		r.logger.Debug().Str("parameter", name).Msg("parameter lookup failed, left empty")
		return ""
	}
	return *out.Parameter.Value
}

// recordFromDescription converts a DescribeDomain response into a Record,
// dropping metadata and timestamps and flattening the default user settings.
func recordFromDescription(desc *sagemaker.DescribeDomainOutput) (Record, error) {
	data, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode domain description: %w", err)
	}

	rec := Record{}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode domain description: %w", err)
	}

	for _, key := range droppedKeys {
		delete(rec, key)
	}

	if settings, ok := rec[KeyDefaultUserSettings].(map[string]any); ok {
		for k, v := range settings {
			rec[k] = v
		}
	}
	delete(rec, KeyDefaultUserSettings)

	// Unset optional fields marshal as null; drop them so lookups see absence.
	for k, v := range rec {
		if v == nil {
			delete(rec, k)
		}
	}

	return rec, nil
}
