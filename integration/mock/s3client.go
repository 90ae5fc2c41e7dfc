package mock

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Client is a mock implementation of the S3 operations used by the
// deployer, plus the line Stream used in place of s3streamer.
type S3Client struct {
	mu sync.Mutex
	// Maps bucket/key to file content
	Files map[string][]byte
}

// NewS3Client creates a new mock S3 client
func NewS3Client() *S3Client {
	return &S3Client{Files: make(map[string][]byte)}
}

// Put stores content at bucket/key.
func (m *S3Client) Put(bucket, key string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[bucket+"/"+key] = content
}

// Get returns the content stored at bucket/key.
func (m *S3Client) Get(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.Files[bucket+"/"+key]
	return content, ok
}

// HeadObject returns the size of a stored object or NotFound.
func (m *S3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	content, ok := m.Get(aws.ToString(params.Bucket), aws.ToString(params.Key))
	if !ok {
		return nil, &types.NotFound{Message: aws.String("not found: " + aws.ToString(params.Key))}
	}
	size := int64(len(content))
	return &s3.HeadObjectOutput{ContentLength: &size, ETag: aws.String(fmt.Sprintf("\"%x\"", size))}, nil
}

// PutObject stores the request body.
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, fmt.Errorf("mock S3: failed to read body: %w", err)
	}
	m.Put(aws.ToString(params.Bucket), aws.ToString(params.Key), data)
	return &s3.PutObjectOutput{}, nil
}

// ListObjectsV2 lists keys under a prefix, sorted, up to MaxKeys.
func (m *S3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := aws.ToString(params.Bucket) + "/"
	prefix := aws.ToString(params.Prefix)

	var keys []string
	for k := range m.Files {
		if strings.HasPrefix(k, bucket) && strings.HasPrefix(strings.TrimPrefix(k, bucket), prefix) {
			keys = append(keys, strings.TrimPrefix(k, bucket))
		}
	}
	sort.Strings(keys)

	if limit := aws.ToInt32(params.MaxKeys); limit > 0 && int(limit) < len(keys) {
		keys = keys[:limit]
	}

	out := &s3.ListObjectsV2Output{KeyCount: aws.Int32(int32(len(keys)))}
	for _, k := range keys {
		size := int64(len(m.Files[bucket+k]))
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: &size})
	}
	return out, nil
}

// Stream reads an object line by line, mirroring s3streamer.Streamer.
func (m *S3Client) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	content, ok := m.Get(bucket, key)
	if !ok {
		return fmt.Errorf("mock S3: key not found: %s/%s", bucket, key)
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var pos int64
	for scanner.Scan() {
		line := scanner.Bytes()
		next := pos + int64(len(line)) + 1
		if pos >= offset {
			if err := fn(line, pos); err != nil {
				return err
			}
		}
		pos = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning lines: %w", err)
	}
	return nil
}
