package preflight

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gurre/fs-ingest/integration/mock"
	"github.com/gurre/fs-ingest/metrics"
)

const execRole = "arn:aws:iam::111122223333:role/exec"

func newChecker() (*Checker, *mock.S3Client, *mock.IAMClient, *metrics.Metrics) {
	s3 := mock.NewS3Client()
	s3.Put("bucket", "flows/ingest.flow", []byte("{}"))
	s3.Put("bucket", "raw/part-0.csv", []byte("a,b\n"))
	iam := mock.NewIAMClient()
	iam.Allow(execRole, "s3:GetObject", "s3:ListBucket")
	m := metrics.NewMetrics()
	return NewChecker(s3, iam, m), s3, iam, m
}

func TestRunPasses(t *testing.T) {
	c, _, _, m := newChecker()
	err := c.Run(context.Background(), Plan{
		Objects:  []string{"s3://bucket/flows/ingest.flow"},
		Prefixes: []string{"s3://bucket/raw/"},
		Permissions: []Permission{
			{PrincipalARN: execRole, Actions: []string{"s3:GetObject", "s3:ListBucket"}},
		},
	})
	if err != nil {
		t.Fatalf("expected preflight to pass, got %v", err)
	}
	if m.Calls(metrics.CallHeadObject) != 1 || m.Calls(metrics.CallListObjects) != 1 || m.Calls(metrics.CallSimulatePolicy) != 1 {
		t.Error("unexpected call counts")
	}
}

func TestRunReportsAllFailures(t *testing.T) {
	c, _, _, _ := newChecker()
	err := c.Run(context.Background(), Plan{
		Objects:  []string{"s3://bucket/flows/missing.flow"},
		Prefixes: []string{"s3://bucket/empty/"},
		Permissions: []Permission{
			{PrincipalARN: execRole, Actions: []string{"s3:GetObject", "sagemaker:PutRecord"}},
		},
	})
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
	if !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"missing.flow", "empty/", "sagemaker:PutRecord"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in error, got %q", want, msg)
		}
	}
	if strings.Contains(msg, "s3:GetObject (") {
		t.Errorf("allowed action reported as denied: %q", msg)
	}
}

func TestRunMissingPrincipal(t *testing.T) {
	c, _, _, _ := newChecker()
	err := c.Run(context.Background(), Plan{
		Permissions: []Permission{{Actions: []string{"iam:PassRole"}}},
	})
	if !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied for empty principal, got %v", err)
	}
}

func TestRunInvalidURI(t *testing.T) {
	c, _, _, _ := newChecker()
	if err := c.Run(context.Background(), Plan{Objects: []string{"not-a-uri"}}); err == nil {
		t.Error("expected error for invalid URI")
	}
}
