package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/beam-cloud/untar/pkg/common"
	"github.com/beam-cloud/untar/pkg/metrics"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// S3API is the subset of the S3 client used to read archives.
type S3API interface {
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type S3Source struct {
	svc            S3API
	bucket         string
	key            string
	localCachePath string
}

type S3SourceOpts struct {
	CachePath string
	AccessKey string
	SecretKey string
}

func NewS3Source(loc common.S3Location, opts S3SourceOpts) (*S3Source, error) {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if opts.AccessKey != "" && opts.SecretKey != "" {
		accessKey = opts.AccessKey
		secretKey = opts.SecretKey
	}

	cfg, err := getAWSConfig(accessKey, secretKey, loc.Region, loc.Endpoint)
	if err != nil {
		return nil, err
	}

	svc := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if loc.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return NewS3SourceWithClient(svc, loc, opts), nil
}

func NewS3SourceWithClient(svc S3API, loc common.S3Location, opts S3SourceOpts) *S3Source {
	return &S3Source{
		svc:            svc,
		bucket:         loc.Bucket,
		key:            loc.Key,
		localCachePath: opts.CachePath,
	}
}

func getAWSConfig(accessKey string, secretKey string, region string, endpoint string) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if endpoint != "" {
		endpointResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           endpoint,
				SigningRegion: region,
			}, nil
		})
		optFns = append(optFns, config.WithEndpointResolverWithOptions(endpointResolver))
	}

	if accessKey != "" && secretKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	return config.LoadDefaultConfig(context.TODO(), optFns...)
}

// Open streams the object body, or extracts from a local copy when a cache
// path is configured.
func (s3c *S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	if s3c.localCachePath != "" {
		if err := s3c.downloadToCache(ctx); err != nil {
			return nil, err
		}
		return os.Open(s3c.localCachePath)
	}

	resp, err := s3c.svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s3c.bucket),
		Key:    aws.String(s3c.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get archive <%s>: %w", s3c, err)
	}

	return &countingReader{rc: resp.Body, kind: string(common.SourceKindS3), start: time.Now()}, nil
}

func (s3c *S3Source) Kind() common.SourceKind {
	return common.SourceKindS3
}

func (s3c *S3Source) String() string {
	return fmt.Sprintf("s3://%s/%s", s3c.bucket, s3c.key)
}

func (s3c *S3Source) getFileSize(ctx context.Context) (int64, error) {
	resp, err := s3c.svc.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s3c.bucket),
		Key:    aws.String(s3c.key),
	})
	if err != nil {
		return 0, err
	}

	return aws.ToInt64(resp.ContentLength), nil
}

// downloadToCache fetches the object into the cache path unless a complete
// copy is already there. Concurrent callers serialize on a lock file next to
// the cache path.
func (s3c *S3Source) downloadToCache(ctx context.Context) error {
	totalSize, err := s3c.getFileSize(ctx)
	if err != nil {
		return fmt.Errorf("unable to get size of <%s>: %w", s3c, err)
	}

	lockFilePath := fmt.Sprintf("%s.lock", s3c.localCachePath)
	fileLock := flock.New(lockFilePath)
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("unable to lock cache <%s>: %w", s3c.localCachePath, err)
	}
	defer fileLock.Unlock()

	if fi, err := os.Stat(s3c.localCachePath); err == nil && fi.Size() == totalSize {
		log.Info().Msgf("cache file <%s> exists", s3c.localCachePath)
		return nil
	}

	log.Info().Msgf("caching <%s> to <%s>", s3c, s3c.localCachePath)
	startTime := time.Now()

	tmpCacheFile := fmt.Sprintf("%s.%s", s3c.localCachePath, uuid.New().String()[:6])
	f, err := os.Create(tmpCacheFile)
	if err != nil {
		return fmt.Errorf("failed to create file <%s>: %w", tmpCacheFile, err)
	}
	defer f.Close()

	downloader := manager.NewDownloader(s3c.svc, func(d *manager.Downloader) {
		d.Concurrency = 32
	})

	n, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s3c.bucket),
		Key:    aws.String(s3c.key),
	})
	if err != nil {
		os.Remove(tmpCacheFile)
		return fmt.Errorf("failed to download object: %w", err)
	}

	if err := os.Rename(tmpCacheFile, s3c.localCachePath); err != nil {
		os.Remove(tmpCacheFile)
		return fmt.Errorf("failed to move downloaded file to cache path <%s>: %w", s3c.localCachePath, err)
	}

	metrics.RecordSourceFetch(string(common.SourceKindS3), n, time.Since(startTime))
	log.Info().Msgf("archive <%s> cached in %v", s3c.localCachePath, time.Since(startTime))
	return nil
}
