package common

import (
	"fmt"
	"net/url"
	"strings"
)

type SourceKind string

const (
	SourceKindLocal SourceKind = "local"
	SourceKindStdin SourceKind = "stdin"
	SourceKindS3    SourceKind = "s3"
	SourceKindHTTP  SourceKind = "http"
)

// S3Location describes where an archive object lives in S3 (or an S3 compatible store).
type S3Location struct {
	Bucket         string
	Key            string
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

// SourceKindOf classifies an archive argument by its scheme.
func SourceKindOf(archive string) SourceKind {
	switch {
	case archive == "-":
		return SourceKindStdin
	case strings.HasPrefix(archive, "s3://"):
		return SourceKindS3
	case strings.HasPrefix(archive, "http://"), strings.HasPrefix(archive, "https://"):
		return SourceKindHTTP
	default:
		return SourceKindLocal
	}
}

// ParseS3URI splits s3://bucket/path/to/key into its bucket and key.
func ParseS3URI(uri string) (S3Location, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return S3Location{}, fmt.Errorf("invalid s3 uri <%s>: %w", uri, err)
	}

	if u.Scheme != "s3" || u.Host == "" {
		return S3Location{}, fmt.Errorf("invalid s3 uri <%s>: expected s3://bucket/key", uri)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return S3Location{}, fmt.Errorf("invalid s3 uri <%s>: missing object key", uri)
	}

	return S3Location{Bucket: u.Host, Key: key}, nil
}
