package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/beam-cloud/untar/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// mockS3 serves a single in-memory object, honouring Range requests.
type mockS3 struct {
	mu       sync.Mutex
	data     []byte
	getCalls int
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	m.getCalls++
	m.mu.Unlock()

	start, end := int64(0), int64(len(m.data))-1
	if params.Range != nil {
		if _, err := fmt.Sscanf(aws.ToString(params.Range), "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
		if end >= int64(len(m.data)) {
			end = int64(len(m.data)) - 1
		}
	}

	body := m.data[start : end+1]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", start, end, len(m.data))),
	}, nil
}

func (m *mockS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(m.data)))}, nil
}

func TestS3SourceStreamsObject(t *testing.T) {
	svc := &mockS3{data: []byte("streamed archive")}
	src := NewS3SourceWithClient(svc, common.S3Location{Bucket: "b", Key: "k.tar"}, S3SourceOpts{})

	assert.Equal(t, "s3://b/k.tar", src.String())
	assert.Equal(t, common.SourceKindS3, src.Kind())

	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "streamed archive", string(data))
}

func TestS3SourceDownloadsToCache(t *testing.T) {
	svc := &mockS3{data: bytes.Repeat([]byte("0123456789"), 1000)}
	cachePath := filepath.Join(t.TempDir(), "archive.tar")
	src := NewS3SourceWithClient(svc, common.S3Location{Bucket: "b", Key: "k.tar"}, S3SourceOpts{CachePath: cachePath})

	for i := 0; i < 2; i++ {
		rc, err := src.Open(context.Background())
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		require.Equal(t, svc.data, data)
	}

	// The second open is served from the complete cached copy.
	assert.Equal(t, 1, svc.getCalls)

	entries, err := os.ReadDir(filepath.Dir(cachePath))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "archive.tar.") && !strings.HasSuffix(e.Name(), ".lock"), "leftover temp file %s", e.Name())
	}
}

func TestS3SourceLocalstack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping localstack test in short mode")
	}

	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "localstack/localstack:3",
		ExposedPorts: []string{"4566/tcp"},
		WaitingFor:   wait.ForListeningPort("4566/tcp").WithStartupTimeout(2 * time.Minute),
	}
	localstackContainer, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start localstack container")
	defer func() {
		if err := localstackContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate localstack container: %s", err)
		}
	}()

	hostPort, err := localstackContainer.MappedPort(ctx, "4566/tcp")
	require.NoError(t, err)
	hostIP, err := localstackContainer.Host(ctx)
	require.NoError(t, err)
	endpoint := "http://" + hostIP + ":" + hostPort.Port()

	loc := common.S3Location{
		Bucket:         "test-untar-bucket",
		Key:            "archives/test.tar",
		Region:         "us-east-1",
		Endpoint:       endpoint,
		ForcePathStyle: true,
	}
	opts := S3SourceOpts{AccessKey: "test", SecretKey: "test"}

	src, err := NewS3Source(loc, opts)
	require.NoError(t, err)

	client := src.svc.(*s3.Client)
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(loc.Bucket)})
	require.NoError(t, err)

	payload := []byte("Hello from untar test!")
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Body:   bytes.NewReader(payload),
	})
	require.NoError(t, err)

	rc, err := src.Open(ctx)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, payload, data)
}
