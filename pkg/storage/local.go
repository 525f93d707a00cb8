package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/beam-cloud/untar/pkg/common"
)

type LocalSource struct {
	archivePath string
}

type LocalSourceOpts struct {
	ArchivePath string
}

func NewLocalSource(opts LocalSourceOpts) *LocalSource {
	return &LocalSource{archivePath: opts.ArchivePath}
}

func (s *LocalSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.archivePath)
	if err != nil {
		return nil, fmt.Errorf("unable to open archive: %w", err)
	}
	return f, nil
}

func (s *LocalSource) Kind() common.SourceKind {
	return common.SourceKindLocal
}

func (s *LocalSource) String() string {
	return s.archivePath
}

type StdinSource struct {
	r io.Reader
}

func (s *StdinSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(s.r), nil
}

func (s *StdinSource) Kind() common.SourceKind {
	return common.SourceKindStdin
}

func (s *StdinSource) String() string {
	return "-"
}
