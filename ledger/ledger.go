// Package ledger records pipeline deployments so later runs can tell whether
// a definition changed since it was last deployed.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry describes one upsert.
// Example:
//
//	store := ledger.NewMemoryStore()
//	err := store.Append(ctx, ledger.Entry{
//	    PipelineName:     "s3-fs-ingest-pipeline",
//	    Action:           "created",
//	    DefinitionDigest: ledger.Digest(body),
//	    DeployedAt:       time.Now(),
//	})
type Entry struct {
	PipelineName     string    `json:"pipelineName"`
	PipelineARN      string    `json:"pipelineArn"`
	Action           string    `json:"action"`
	DefinitionDigest string    `json:"definitionDigest"` // sha256 hex of the definition body
	EnvironmentName  string    `json:"environmentName"`
	EnvironmentType  string    `json:"environmentType"`
	ClientToken      string    `json:"clientToken"`
	DeployedAt       time.Time `json:"deployedAt"`
}

// Store persists entries and returns the latest entry per pipeline.
// Example:
//
//	var store ledger.Store
//	last, ok, err := store.Latest(ctx, "s3-fs-ingest-pipeline")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if ok && last.DefinitionDigest == ledger.Digest(body) {
//	    fmt.Println("definition unchanged")
//	}
type Store interface {
	Append(ctx context.Context, e Entry) error
	Latest(ctx context.Context, pipelineName string) (Entry, bool, error)
}

// Digest returns the hex sha256 of a definition body.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// sortKeyLayout keeps timestamps lexicographically ordered.
const sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

func sortKey(t time.Time) string {
	return t.UTC().Format(sortKeyLayout)
}
