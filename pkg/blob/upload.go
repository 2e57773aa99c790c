package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/internal/telemetry"
)

// UploadResult describes a completed upload.
type UploadResult struct {
	// FinalPath is the object key the blob was stored under
	// (uploads/YYYY/MM/DD/<file>).
	FinalPath   string
	Size        int64
	ContentType string
	Tenant      string
	UploadedAt  time.Time

	// MD5 is set on the single-PUT path when Content-MD5 is enabled.
	MD5 string

	// SHA256 is set on the multipart path (whole-file hash, one pass).
	SHA256 string
}

// UploadOptions tunes a single upload.
type UploadOptions struct {
	// Key overrides the derived dated key.
	Key string

	// Metadata is attached to the object as user metadata.
	Metadata map[string]string
}

// Upload stores the local file under a dated key in the tenant's bucket.
// Objects smaller than the multipart threshold go up in one signed PUT;
// larger objects use multipart upload with bounded part parallelism. On any
// part failure the multipart upload is aborted before returning.
func (c *Client) Upload(ctx context.Context, localPath, remoteName, tenant, contentType string, opts UploadOptions) (*UploadResult, error) {
	key := opts.Key
	if key == "" {
		key = DatedKey(remoteName, time.Now())
	}

	ctx, span := telemetry.StartBlobSpan(ctx, "upload", key, telemetry.Tenant(tenant))
	defer span.End()

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	size := info.Size()

	result := &UploadResult{
		FinalPath:   key,
		Size:        size,
		ContentType: contentType,
		Tenant:      tenant,
		UploadedAt:  time.Now().UTC(),
	}

	if uint64(size) < c.threshold {
		if err := c.putObject(ctx, f, size, tenant, key, contentType, opts.Metadata, result); err != nil {
			telemetry.RecordError(ctx, err)
			return nil, err
		}
	} else {
		if err := c.multipartUpload(ctx, f, size, tenant, key, contentType, opts.Metadata, result); err != nil {
			telemetry.RecordError(ctx, err)
			return nil, err
		}
	}

	if c.metrics != nil {
		c.metrics.RecordBytes("Upload", size)
	}
	logger.InfoCtx(ctx, "Uploaded blob",
		logger.KeyTenant, tenant,
		logger.KeyKey, key,
		logger.KeySize, size,
		logger.KeyContentType, contentType)
	return result, nil
}

// putObject uploads small objects with a single signed PUT.
func (c *Client) putObject(ctx context.Context, f *os.File, size int64, tenant, key, contentType string, meta map[string]string, result *UploadResult) error {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return fmt.Errorf("failed to read upload payload: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:   aws.String(c.Bucket(tenant)),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: meta,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if c.withMD5 {
		sum := md5.Sum(data)
		input.ContentMD5 = aws.String(base64.StdEncoding.EncodeToString(sum[:]))
		result.MD5 = hex.EncodeToString(sum[:])
	}

	start := time.Now()
	_, err := c.s3.PutObject(ctx, input)
	c.observe("PutObject", start, err)
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// multipartUpload streams the file once, hashing it while parts upload in
// parallel. Part uploads retry independently; completion does not.
func (c *Client) multipartUpload(ctx context.Context, f *os.File, size int64, tenant, key, contentType string, meta map[string]string, result *UploadResult) error {
	bucket := c.Bucket(tenant)

	createInput := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Metadata: meta,
	}
	if contentType != "" {
		createInput.ContentType = aws.String(contentType)
	}

	start := time.Now()
	created, err := c.s3.CreateMultipartUpload(ctx, createInput)
	c.observe("CreateMultipartUpload", start, err)
	if err != nil {
		return fmt.Errorf("failed to create multipart upload: %w", err)
	}
	uploadID := aws.ToString(created.UploadId)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed []types.CompletedPart
		firstErr  error
	)
	sem := make(chan struct{}, c.maxParts)
	hash := sha256.New()

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	partNumber := int32(0)
	for offset := int64(0); offset < size; offset += int64(c.partSize) {
		partNumber++
		n := min(int64(c.partSize), size-offset)

		buf := make([]byte, n)
		if _, err := io.ReadFull(f, buf); err != nil {
			fail(fmt.Errorf("failed to read part %d: %w", partNumber, err))
			break
		}
		hash.Write(buf)

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			fail(ctx.Err())
		}
		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()
		if failed {
			break
		}

		wg.Add(1)
		go func(pn int32, data []byte) {
			defer wg.Done()
			defer func() { <-sem }()

			etag, err := c.uploadPart(ctx, bucket, key, uploadID, pn, data)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			completed = append(completed, types.CompletedPart{
				ETag:       etag,
				PartNumber: aws.Int32(pn),
			})
			mu.Unlock()
		}(partNumber, buf)
	}

	wg.Wait()

	if firstErr != nil {
		c.abortMultipart(bucket, key, uploadID)
		return firstErr
	}

	sort.Slice(completed, func(i, j int) bool {
		return aws.ToInt32(completed[i].PartNumber) < aws.ToInt32(completed[j].PartNumber)
	})

	start = time.Now()
	_, err = c.s3.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	c.observe("CompleteMultipartUpload", start, err)
	if err != nil {
		c.abortMultipart(bucket, key, uploadID)
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	result.SHA256 = hex.EncodeToString(hash.Sum(nil))
	return nil
}

// uploadPart uploads a single part with independent retry.
func (c *Client) uploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, data []byte) (*string, error) {
	var etag *string
	err := retryWithBackoff(ctx, defaultPartRetry, func() error {
		start := time.Now()
		out, err := c.s3.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(data),
		})
		c.observe("UploadPart", start, err)
		if err != nil {
			return err
		}
		etag = out.ETag
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload part %d: %w", partNumber, err)
	}
	return etag, nil
}

// abortMultipart makes a best-effort attempt to discard an in-flight upload.
// Uses a fresh context: the operation context is typically already cancelled.
func (c *Client) abortMultipart(bucket, key, uploadID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := c.s3.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		logger.Warn("Failed to abort multipart upload",
			logger.KeyKey, key,
			logger.KeyUploadID, uploadID,
			logger.KeyError, err.Error())
	}
}
