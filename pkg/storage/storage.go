package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/beam-cloud/untar/pkg/common"
)

// ArchiveSource opens the byte stream of a tar archive.
type ArchiveSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Kind() common.SourceKind
	String() string
}

type S3Credentials struct {
	AccessKey string
	SecretKey string
}

type ArchiveSourceOpts struct {
	// Archive is a local path, "-" for stdin, an s3://bucket/key URI or an
	// http(s) URL.
	Archive string

	// CachePath, when set, makes remote sources download the whole archive
	// to this path first and extract from the local copy.
	CachePath string

	Region         string
	Endpoint       string
	ForcePathStyle bool
	Credentials    S3Credentials

	HTTPClient *http.Client
	Stdin      io.Reader
}

func NewArchiveSource(opts ArchiveSourceOpts) (ArchiveSource, error) {
	if opts.Archive == "" {
		return nil, fmt.Errorf("%w: empty archive path", common.ErrUnknownSource)
	}

	switch common.SourceKindOf(opts.Archive) {
	case common.SourceKindStdin:
		stdin := opts.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return &StdinSource{r: stdin}, nil
	case common.SourceKindS3:
		loc, err := common.ParseS3URI(opts.Archive)
		if err != nil {
			return nil, err
		}
		loc.Region = opts.Region
		loc.Endpoint = opts.Endpoint
		loc.ForcePathStyle = opts.ForcePathStyle

		return NewS3Source(loc, S3SourceOpts{
			CachePath: opts.CachePath,
			AccessKey: opts.Credentials.AccessKey,
			SecretKey: opts.Credentials.SecretKey,
		})
	case common.SourceKindHTTP:
		return NewHTTPSource(HTTPSourceOpts{
			URL:    opts.Archive,
			Client: opts.HTTPClient,
		}), nil
	case common.SourceKindLocal:
		return NewLocalSource(LocalSourceOpts{ArchivePath: opts.Archive}), nil
	default:
		return nil, common.ErrUnknownSource
	}
}
