package aws

import (
	"fmt"
	"regexp"
)

// s3URIPattern is compiled once at package level to avoid recompilation per call.
var s3URIPattern = regexp.MustCompile(`^s3://([^/]+)/?(.*)$`)

// ParseS3URI splits an s3://bucket/key URI. The key may be empty for a
// bare bucket URI.
func ParseS3URI(uri string) (bucket, key string, err error) {
	matches := s3URIPattern.FindStringSubmatch(uri)
	if len(matches) != 3 {
		return "", "", fmt.Errorf("invalid S3 URI format: %s (must be s3://bucket/key)", uri)
	}
	return matches[1], matches[2], nil
}
