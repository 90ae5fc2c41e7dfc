// Package flow reads Data Wrangler flow documents from S3 and answers
// questions about their nodes, chiefly whether a configured flow output
// exists.
package flow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gurre/fs-ingest/aws"
	"github.com/gurre/s3streamer"
)

// ErrOutputNotFound is returned when a flow output name matches no node output.
var ErrOutputNotFound = errors.New("flow output not found")

// Node is one transformation, source or destination in a flow.
type Node struct {
	NodeID     string         `json:"node_id"`
	Type       string         `json:"type"`
	Operator   string         `json:"operator"`
	Parameters map[string]any `json:"parameters"`
	Outputs    []Output       `json:"outputs"`
}

// Output is a named output of a node.
type Output struct {
	Name string `json:"name"`
}

// Document is a decoded .flow file.
type Document struct {
	Metadata map[string]any `json:"metadata"`
	Nodes    []Node         `json:"nodes"`
}

// OutputNames returns every "{node_id}.{output}" in node order.
func (d *Document) OutputNames() []string {
	var names []string
	for _, n := range d.Nodes {
		for _, o := range n.Outputs {
			names = append(names, n.NodeID+"."+o.Name)
		}
	}
	return names
}

// HasOutput reports whether name, in the "{node_id}.{output}" form, exists.
func (d *Document) HasOutput(name string) bool {
	for _, n := range d.OutputNames() {
		if n == name {
			return true
		}
	}
	return false
}

// RequireOutput returns ErrOutputNotFound, listing the available outputs,
// when name does not exist.
func (d *Document) RequireOutput(name string) error {
	if d.HasOutput(name) {
		return nil
	}
	return fmt.Errorf("%w: %q (available: %s)", ErrOutputNotFound, name, strings.Join(d.OutputNames(), ", "))
}

// SourceURIs returns the S3 URIs read by the flow's S3 source nodes.
func (d *Document) SourceURIs() []string {
	var uris []string
	for _, n := range d.Nodes {
		if n.Type != "SOURCE" {
			continue
		}
		def, _ := n.Parameters["dataset_definition"].(map[string]any)
		ctx, _ := def["s3ExecutionContext"].(map[string]any)
		if uri, ok := ctx["s3Uri"].(string); ok && uri != "" {
			uris = append(uris, uri)
		}
	}
	return uris
}

// Inspector loads flow documents through a line streamer.
type Inspector struct {
	streamer s3streamer.Streamer
}

// NewInspector creates an Inspector.
func NewInspector(streamer s3streamer.Streamer) *Inspector {
	return &Inspector{streamer: streamer}
}

// Load streams the object at uri and decodes it as a flow document.
func (i *Inspector) Load(ctx context.Context, uri string) (*Document, error) {
	bucket, key, err := aws.ParseS3URI(uri)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("flow URI %s has no object key", uri)
	}

	var buf bytes.Buffer
	err = i.streamer.Stream(ctx, bucket, key, 0, func(line []byte, _ int64) error {
		buf.Write(line)
		buf.WriteByte('\n')
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read flow %s: %w", uri, err)
	}

	return Decode(buf.Bytes())
}

// Decode parses a flow document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode flow: %w", err)
	}
	if len(doc.Nodes) == 0 {
		return nil, fmt.Errorf("failed to decode flow: no nodes")
	}
	return &doc, nil
}
