// Package blob implements the S3 blob store client used by the storage
// pipeline: signed uploads (single PUT or multipart), downloads, listing and
// deletion against any S3-compatible endpoint.
//
// Request signing (SigV4) is handled by the AWS SDK. The client itself never
// retries whole operations; callers decide. Individual multipart part uploads
// are the one exception: they retry independently so a transient part failure
// does not force re-reading the whole file.
package blob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/p8fs/p8fs/internal/bytesize"
)

const (
	// DefaultMultipartThreshold is the size at or above which uploads switch
	// to the multipart path.
	DefaultMultipartThreshold = 8 * bytesize.MiB

	// DefaultPartSize is the multipart part size.
	DefaultPartSize = 8 * bytesize.MiB

	// DefaultMaxConcurrentParts bounds parallel part uploads.
	DefaultMaxConcurrentParts = 10

	// uploadPrefix is prepended (with the UTC date) to every stored object.
	uploadPrefix = "uploads"
)

// Metrics is the optional metrics hook for blob operations.
type Metrics interface {
	ObserveOperation(op string, d time.Duration, err error)
	RecordBytes(op string, n int64)
}

// Config holds blob client configuration.
type Config struct {
	// Endpoint is the S3-compatible endpoint URL. Empty means AWS.
	Endpoint string

	// Region for signing. Default: "us-east-1".
	Region string

	// AccessKeyID / SecretAccessKey are static credentials.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle uses path-style addressing (MinIO, SeaweedFS).
	ForcePathStyle bool

	// BucketPrefix is prepended to the tenant to form the bucket name.
	BucketPrefix string

	// MultipartThreshold: objects at or above this size upload multipart.
	MultipartThreshold bytesize.ByteSize

	// PartSize is the multipart part size.
	PartSize bytesize.ByteSize

	// MaxConcurrentParts bounds parallel part uploads.
	MaxConcurrentParts int

	// DisableContentMD5 skips the Content-MD5 header on single PUTs. Some
	// S3-compatible servers return 500 when the header is present.
	DisableContentMD5 bool

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

// Client is the blob store client. Safe for concurrent use.
type Client struct {
	s3           *s3.Client
	bucketPrefix string
	threshold    uint64
	partSize     uint64
	maxParts     int
	withMD5      bool
	metrics      Metrics
}

// NewS3Client builds a configured AWS SDK S3 client.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = cfg.ForcePathStyle
		// Default flexible checksums use aws-chunked encoding, which many
		// S3-compatible servers reject. Content-MD5 covers integrity here.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return client, nil
}

// New creates a blob client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	s3c, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithS3(s3c, cfg)
}

// NewWithS3 wraps an existing S3 client; used by tests with a stub endpoint.
func NewWithS3(s3c *s3.Client, cfg Config) (*Client, error) {
	threshold := cfg.MultipartThreshold
	if threshold == 0 {
		threshold = DefaultMultipartThreshold
	}
	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = DefaultPartSize
	}
	if partSize < 5*bytesize.MiB {
		return nil, fmt.Errorf("part size must be at least 5MiB, got %s", partSize)
	}
	maxParts := cfg.MaxConcurrentParts
	if maxParts <= 0 {
		maxParts = DefaultMaxConcurrentParts
	}

	return &Client{
		s3:           s3c,
		bucketPrefix: cfg.BucketPrefix,
		threshold:    threshold.Uint64(),
		partSize:     partSize.Uint64(),
		maxParts:     maxParts,
		withMD5:      !cfg.DisableContentMD5,
		metrics:      cfg.Metrics,
	}, nil
}

// Bucket returns the bucket name for a tenant.
func (c *Client) Bucket(tenant string) string {
	return c.bucketPrefix + tenant
}

// DatedKey derives the durable object key for an upload: the filename
// component of name is placed under uploads/YYYY/MM/DD using the current
// UTC date.
func DatedKey(name string, now time.Time) string {
	base := name
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	return fmt.Sprintf("%s/%s/%s", uploadPrefix, now.UTC().Format("2006/01/02"), base)
}

// NormalizeKey maps the path forms accepted on events onto the object key
// the store expects:
//
//	/buckets/{tenant}/{key}  ->  {key}
//	buckets/{tenant}/{key}   ->  {key}
//	{key}                    ->  {key}           (already fully qualified)
//	{file}                   ->  uploads/{file}  (bare filename)
func NormalizeKey(p, tenant string) string {
	p = strings.TrimPrefix(p, "/")
	if rest, ok := strings.CutPrefix(p, "buckets/"); ok {
		if key, ok := strings.CutPrefix(rest, tenant+"/"); ok {
			p = key
		} else {
			// Foreign tenant prefix; keep everything after buckets/<x>/.
			if i := strings.Index(rest, "/"); i >= 0 {
				p = rest[i+1:]
			}
		}
	}
	if !strings.Contains(p, "/") {
		return uploadPrefix + "/" + p
	}
	return p
}

func (c *Client) observe(op string, start time.Time, err error) {
	if c.metrics != nil {
		c.metrics.ObserveOperation(op, time.Since(start), err)
	}
}
