package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/gurre/fs-ingest/integration/mock"
)

const sampleFlow = `{
  "metadata": {"version": 1, "disable_limits": false},
  "nodes": [
    {
      "node_id": "a1b2",
      "type": "SOURCE",
      "operator": "sagemaker.s3_source_0.1",
      "parameters": {
        "dataset_definition": {
          "name": "customers.csv",
          "s3ExecutionContext": {"s3Uri": "s3://bucket/raw/customers.csv"}
        }
      },
      "outputs": [{"name": "default"}]
    },
    {
      "node_id": "c3d4",
      "type": "TRANSFORM",
      "operator": "sagemaker.spark.infer_and_cast_type_0.1",
      "outputs": [{"name": "default"}]
    }
  ]
}`

func TestInspectorLoad(t *testing.T) {
	s3 := mock.NewS3Client()
	s3.Put("bucket", "flows/ingest.flow", []byte(sampleFlow))

	doc, err := NewInspector(s3).Load(context.Background(), "s3://bucket/flows/ingest.flow")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(doc.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(doc.Nodes))
	}
	if !doc.HasOutput("c3d4.default") {
		t.Error("expected c3d4.default output")
	}
	if doc.HasOutput("c3d4.other") {
		t.Error("unexpected c3d4.other output")
	}
	if got := doc.SourceURIs(); len(got) != 1 || got[0] != "s3://bucket/raw/customers.csv" {
		t.Errorf("unexpected source URIs: %v", got)
	}
}

func TestRequireOutput(t *testing.T) {
	doc, err := Decode([]byte(sampleFlow))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if err := doc.RequireOutput("a1b2.default"); err != nil {
		t.Errorf("expected output to exist, got %v", err)
	}
	if err := doc.RequireOutput("zzzz.default"); !errors.Is(err, ErrOutputNotFound) {
		t.Errorf("expected ErrOutputNotFound, got %v", err)
	}
}

func TestInspectorErrors(t *testing.T) {
	s3 := mock.NewS3Client()
	s3.Put("bucket", "broken.flow", []byte("{not json"))
	s3.Put("bucket", "empty.flow", []byte(`{"nodes": []}`))
	inspector := NewInspector(s3)

	testCases := []struct {
		name string
		uri  string
	}{
		{"missing object", "s3://bucket/missing.flow"},
		{"invalid json", "s3://bucket/broken.flow"},
		{"no nodes", "s3://bucket/empty.flow"},
		{"bucket only", "s3://bucket"},
		{"not s3", "https://bucket/x.flow"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := inspector.Load(context.Background(), tc.uri); err == nil {
				t.Errorf("expected error for %s", tc.uri)
			}
		})
	}
}
