package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/p8fs/p8fs/internal/telemetry"
)

// DownloadResult is a fetched object with its metadata.
type DownloadResult struct {
	Content      []byte
	ContentType  string
	Size         int64
	LastModified time.Time
	Metadata     map[string]string
}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Download fetches an object. A missing object returns (nil, nil) so callers
// can treat deletion races as completed work rather than failures.
func (c *Client) Download(ctx context.Context, tenant, key string) (*DownloadResult, error) {
	ctx, span := telemetry.StartBlobSpan(ctx, "download", key, telemetry.Tenant(tenant))
	defer span.End()

	start := time.Now()
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.Bucket(tenant)),
		Key:    aws.String(key),
	})
	c.observe("GetObject", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	if c.metrics != nil {
		c.metrics.RecordBytes("Download", int64(len(content)))
	}

	result := &DownloadResult{
		Content:     content,
		ContentType: aws.ToString(out.ContentType),
		Size:        int64(len(content)),
		Metadata:    out.Metadata,
	}
	if out.LastModified != nil {
		result.LastModified = *out.LastModified
	}
	return result, nil
}

// Head returns object metadata without the body, or nil if the object does
// not exist.
func (c *Client) Head(ctx context.Context, tenant, key string) (*ObjectInfo, error) {
	start := time.Now()
	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.Bucket(tenant)),
		Key:    aws.String(key),
	})
	c.observe("HeadObject", start, err)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to head object %s: %w", key, err)
	}

	info := &ObjectInfo{
		Key:  key,
		Size: aws.ToInt64(out.ContentLength),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

// List returns objects under prefix, at most limit entries (0 means no
// limit). Non-recursive listings stop at the next "/" delimiter.
func (c *Client) List(ctx context.Context, tenant, prefix string, recursive bool, limit int) ([]ObjectInfo, error) {
	ctx, span := telemetry.StartBlobSpan(ctx, "list", prefix, telemetry.Tenant(tenant))
	defer span.End()

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.Bucket(tenant)),
		Prefix: aws.String(prefix),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(c.s3, input)
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		c.observe("ListObjectsV2", start, err)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			objects = append(objects, info)
			if limit > 0 && len(objects) >= limit {
				return objects, nil
			}
		}
	}
	return objects, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (c *Client) Delete(ctx context.Context, tenant, key string) error {
	ctx, span := telemetry.StartBlobSpan(ctx, "delete", key, telemetry.Tenant(tenant))
	defer span.End()

	start := time.Now()
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.Bucket(tenant)),
		Key:    aws.String(key),
	})
	c.observe("DeleteObject", start, err)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// isNotFound reports whether err is a missing-object error from any
// S3-compatible server.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "NoSuchBucket"
	}
	return strings.Contains(err.Error(), "StatusCode: 404")
}
