package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beam-cloud/untar/pkg/common"
	"github.com/beam-cloud/untar/pkg/metrics"
)

type HTTPSource struct {
	url    string
	client *http.Client
}

type HTTPSourceOpts struct {
	URL    string
	Client *http.Client
}

func NewHTTPSource(opts HTTPSourceOpts) *HTTPSource {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSource{url: opts.URL, client: client}
}

// Open issues a GET for the archive and returns the response body as the stream.
func (s *HTTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch archive <%s>: %w", s.url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch archive <%s>: unexpected status %s", s.url, resp.Status)
	}

	return &countingReader{rc: resp.Body, kind: string(common.SourceKindHTTP), start: time.Now()}, nil
}

func (s *HTTPSource) Kind() common.SourceKind {
	return common.SourceKindHTTP
}

func (s *HTTPSource) String() string {
	return s.url
}

// countingReader records how many bytes were pulled from a remote body once it
// is closed.
type countingReader struct {
	rc    io.ReadCloser
	kind  string
	read  int64
	start time.Time
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.rc.Read(p)
	cr.read += int64(n)
	return n, err
}

func (cr *countingReader) Close() error {
	metrics.RecordSourceFetch(cr.kind, cr.read, time.Since(cr.start))
	return cr.rc.Close()
}
