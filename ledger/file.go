package ledger

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// FileStore implements Store as a JSON-lines file on the local filesystem.
// Example:
//
//	store, err := ledger.NewFileStore("file:///var/lib/fs-ingest/ledger.jsonl")
//	if err != nil {
//	    log.Fatal(err)
//	}
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore from a file URI.
// The path must be absolute and is cleaned to prevent path traversal attacks.
func NewFileStore(uri string) (*FileStore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid file URI: %w", err)
	}
	if u.Scheme != "file" {
		return nil, fmt.Errorf("invalid file URI scheme: %s", u.Scheme)
	}

	cleanPath := filepath.Clean(u.Path)
	if !filepath.IsAbs(cleanPath) {
		return nil, fmt.Errorf("ledger path must be absolute: %s", cleanPath)
	}

	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &FileStore{path: cleanPath}, nil
}

// Append adds one line to the ledger file.
func (f *FileStore) Append(ctx context.Context, e Entry) (err error) {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close ledger file: %w", cerr)
		}
	}()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	return nil
}

// Latest scans the file and returns the newest entry for pipelineName.
func (f *FileStore) Latest(ctx context.Context, pipelineName string) (Entry, bool, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to read ledger file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var (
		latest Entry
		found  bool
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return Entry{}, false, fmt.Errorf("failed to decode ledger entry: %w", err)
		}
		if e.PipelineName != pipelineName {
			continue
		}
		if !found || !e.DeployedAt.Before(latest.DeployedAt) {
			latest, found = e, true
		}
	}
	if err := scanner.Err(); err != nil {
		return Entry{}, false, fmt.Errorf("failed to scan ledger file: %w", err)
	}

	return latest, found, nil
}
