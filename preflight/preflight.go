// Package preflight checks, before a pipeline is deployed, that its S3
// inputs exist and that the roles it runs under hold the permissions the
// processing job needs.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gurre/fs-ingest/aws"
	"github.com/gurre/fs-ingest/metrics"
)

// Preflight failures.
var (
	ErrMissingInput = errors.New("input not found")
	ErrDenied       = errors.New("permission denied")
)

// Permission is a set of actions a principal must be allowed on resources.
type Permission struct {
	PrincipalARN string
	Actions      []string
	Resources    []string // empty means "*"
}

// Plan lists everything one preflight run checks.
type Plan struct {
	Objects     []string // s3:// URIs that must exist as objects
	Prefixes    []string // s3:// URIs that must contain at least one object
	Permissions []Permission
}

// Checker runs preflight plans.
type Checker struct {
	s3      aws.S3Client
	iam     aws.IAMClient
	metrics *metrics.Metrics
}

// NewChecker creates a Checker. m may be nil.
func NewChecker(s3Client aws.S3Client, iamClient aws.IAMClient, m *metrics.Metrics) *Checker {
	return &Checker{s3: s3Client, iam: iamClient, metrics: m}
}

// Run executes every check in plan and reports all failures together.
func (c *Checker) Run(ctx context.Context, plan Plan) error {
	var errs []error

	for _, uri := range plan.Objects {
		if err := c.checkObject(ctx, uri); err != nil {
			errs = append(errs, err)
		}
	}
	for _, uri := range plan.Prefixes {
		if err := c.checkPrefix(ctx, uri); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range plan.Permissions {
		if err := c.checkPermission(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (c *Checker) checkObject(ctx context.Context, uri string) error {
	bucket, key, err := aws.ParseS3URI(uri)
	if err != nil {
		return err
	}
	c.metrics.RecordCall(metrics.CallHeadObject)
	if _, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &bucket, Key: &key}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMissingInput, uri, err)
	}
	return nil
}

func (c *Checker) checkPrefix(ctx context.Context, uri string) error {
	bucket, prefix, err := aws.ParseS3URI(uri)
	if err != nil {
		return err
	}
	c.metrics.RecordCall(metrics.CallListObjects)
	out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &bucket,
		Prefix:  &prefix,
		MaxKeys: awssdk.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", uri, err)
	}
	if len(out.Contents) == 0 {
		return fmt.Errorf("%w: no objects under %s", ErrMissingInput, uri)
	}
	return nil
}

func (c *Checker) checkPermission(ctx context.Context, p Permission) error {
	if p.PrincipalARN == "" {
		return fmt.Errorf("%w: no principal to check for %s", ErrDenied, strings.Join(p.Actions, ", "))
	}

	input := &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: awssdk.String(p.PrincipalARN),
		ActionNames:     p.Actions,
		ResourceArns:    p.Resources,
	}

	var denied []string
	paginator := iam.NewSimulatePrincipalPolicyPaginator(c.iam, input)
	for paginator.HasMorePages() {
		c.metrics.RecordCall(metrics.CallSimulatePolicy)
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to simulate policy for %s: %w", p.PrincipalARN, err)
		}
		for _, r := range out.EvaluationResults {
			if r.EvalDecision != iamtypes.PolicyEvaluationDecisionTypeAllowed {
				denied = append(denied, fmt.Sprintf("%s (%s)", awssdk.ToString(r.EvalActionName), r.EvalDecision))
			}
		}
	}

	if len(denied) > 0 {
		return fmt.Errorf("%w: %s cannot perform %s", ErrDenied, p.PrincipalARN, strings.Join(denied, ", "))
	}
	return nil
}
