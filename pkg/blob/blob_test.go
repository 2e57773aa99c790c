package blob

import (
	"context"
	"crypto/rand"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p8fs/p8fs/internal/bytesize"
)

// fakeS3 is a minimal in-memory S3 server covering the operations the client
// uses: PutObject, GetObject, HeadObject, DeleteObject, ListObjectsV2 and the
// multipart lifecycle.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte // "bucket/key" -> content
	parts   map[string]map[string][]byte
	aborted []string
	puts    int
	partOps int

	failParts int // fail this many UploadPart calls before succeeding
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string][]byte),
		parts:   make(map[string]map[string][]byte),
	}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	q := r.URL.Query()

	switch {
	case r.Method == http.MethodPost && q.Has("uploads"):
		fmt.Fprintf(w, `<InitiateMultipartUploadResult><UploadId>test-upload-1</UploadId></InitiateMultipartUploadResult>`)

	case r.Method == http.MethodPut && q.Has("partNumber"):
		f.partOps++
		if f.failParts > 0 {
			f.failParts--
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if f.parts[path] == nil {
			f.parts[path] = make(map[string][]byte)
		}
		f.parts[path][q.Get("partNumber")] = body
		w.Header().Set("ETag", `"etag-`+q.Get("partNumber")+`"`)

	case r.Method == http.MethodPost && q.Has("uploadId"):
		var req struct {
			Parts []struct {
				PartNumber int `xml:"PartNumber"`
			} `xml:"Part"`
		}
		body, _ := io.ReadAll(r.Body)
		_ = xml.Unmarshal(body, &req)
		var assembled []byte
		for _, p := range req.Parts {
			assembled = append(assembled, f.parts[path][fmt.Sprint(p.PartNumber)]...)
		}
		f.objects[path] = assembled
		fmt.Fprintf(w, `<CompleteMultipartUploadResult><Key>%s</Key></CompleteMultipartUploadResult>`, path)

	case r.Method == http.MethodDelete && q.Has("uploadId"):
		f.aborted = append(f.aborted, path)
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodPut:
		f.puts++
		body, _ := io.ReadAll(r.Body)
		f.objects[path] = body
		w.Header().Set("ETag", `"etag-single"`)

	case r.Method == http.MethodGet && q.Has("list-type"):
		bucket := strings.SplitN(path, "/", 2)[0]
		prefix := q.Get("prefix")
		var b strings.Builder
		b.WriteString(`<ListBucketResult><IsTruncated>false</IsTruncated>`)
		for k, v := range f.objects {
			rest := strings.TrimPrefix(k, bucket+"/")
			if rest != k && strings.HasPrefix(rest, prefix) {
				fmt.Fprintf(&b, `<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>`, rest, len(v))
			}
		}
		b.WriteString(`</ListBucketResult>`)
		io.WriteString(w, b.String())

	case r.Method == http.MethodGet:
		content, ok := f.objects[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<Error><Code>NoSuchKey</Code></Error>`)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write(content)

	case r.Method == http.MethodHead:
		content, ok := f.objects[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(content)))
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodDelete:
		delete(f.objects, path)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func testClient(t *testing.T, fake *fakeS3, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg.Endpoint = srv.URL
	cfg.AccessKeyID = "test"
	cfg.SecretAccessKey = "test"
	cfg.ForcePathStyle = true

	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return c
}

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestUploadSinglePut(t *testing.T) {
	fake := newFakeS3()
	c := testClient(t, fake, Config{BucketPrefix: "p8fs-"})

	path := writeTempFile(t, 1024)
	res, err := c.Upload(context.Background(), path, "notes.txt", "t1", "text/plain", UploadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, fake.puts)
	assert.Equal(t, 0, fake.partOps)
	assert.Equal(t, int64(1024), res.Size)
	assert.NotEmpty(t, res.MD5)
	assert.True(t, strings.HasPrefix(res.FinalPath, "uploads/"))
	assert.True(t, strings.HasSuffix(res.FinalPath, "/notes.txt"))

	stored, ok := fake.objects["p8fs-t1/"+res.FinalPath]
	require.True(t, ok)
	assert.Len(t, stored, 1024)
}

func TestUploadMultipartPartCount(t *testing.T) {
	fake := newFakeS3()
	c := testClient(t, fake, Config{
		MultipartThreshold: 8 * bytesize.MiB,
		PartSize:           8 * bytesize.MiB,
	})

	// 20 MiB at 8 MiB parts: 8 + 8 + 4.
	path := writeTempFile(t, int(20*bytesize.MiB))
	res, err := c.Upload(context.Background(), path, "big.bin", "t1", "application/octet-stream", UploadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, fake.partOps)
	assert.Equal(t, 0, fake.puts)
	assert.NotEmpty(t, res.SHA256)

	stored := fake.objects["t1/"+res.FinalPath]
	assert.Len(t, stored, int(20*bytesize.MiB))
}

func TestUploadMultipartRetriesParts(t *testing.T) {
	fake := newFakeS3()
	fake.failParts = 1
	c := testClient(t, fake, Config{
		MultipartThreshold: 8 * bytesize.MiB,
		PartSize:           8 * bytesize.MiB,
	})

	path := writeTempFile(t, int(9*bytesize.MiB))
	_, err := c.Upload(context.Background(), path, "big.bin", "t1", "", UploadOptions{})
	require.NoError(t, err)
	assert.Empty(t, fake.aborted)
}

func TestUploadMultipartAbortsOnFailure(t *testing.T) {
	fake := newFakeS3()
	fake.failParts = 100 // exceed every retry budget
	c := testClient(t, fake, Config{
		MultipartThreshold: 8 * bytesize.MiB,
		PartSize:           8 * bytesize.MiB,
	})

	path := writeTempFile(t, int(9*bytesize.MiB))
	_, err := c.Upload(context.Background(), path, "big.bin", "t1", "", UploadOptions{})
	require.Error(t, err)
	assert.NotEmpty(t, fake.aborted)
}

func TestDownloadMissingObjectReturnsNil(t *testing.T) {
	fake := newFakeS3()
	c := testClient(t, fake, Config{})

	res, err := c.Download(context.Background(), "t1", "uploads/missing.txt")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestDownloadRoundTrip(t *testing.T) {
	fake := newFakeS3()
	fake.objects["t1/uploads/hello.txt"] = []byte("hello world")
	c := testClient(t, fake, Config{})

	res, err := c.Download(context.Background(), "t1", "uploads/hello.txt")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []byte("hello world"), res.Content)
	assert.Equal(t, int64(11), res.Size)
}

func TestHeadMissingObjectReturnsNil(t *testing.T) {
	fake := newFakeS3()
	c := testClient(t, fake, Config{})

	info, err := c.Head(context.Background(), "t1", "uploads/missing.txt")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestListWithLimit(t *testing.T) {
	fake := newFakeS3()
	for i := range 5 {
		fake.objects[fmt.Sprintf("t1/uploads/f%d.txt", i)] = []byte("x")
	}
	c := testClient(t, fake, Config{})

	objects, err := c.List(context.Background(), "t1", "uploads/", true, 3)
	require.NoError(t, err)
	assert.Len(t, objects, 3)
}

func TestDelete(t *testing.T) {
	fake := newFakeS3()
	fake.objects["t1/uploads/gone.txt"] = []byte("x")
	c := testClient(t, fake, Config{})

	require.NoError(t, c.Delete(context.Background(), "t1", "uploads/gone.txt"))
	_, ok := fake.objects["t1/uploads/gone.txt"]
	assert.False(t, ok)
}

func TestPartSizeValidation(t *testing.T) {
	_, err := NewWithS3(nil, Config{PartSize: 1 * bytesize.MiB})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5MiB")
}

func TestDatedKey(t *testing.T) {
	now := time.Date(2026, 3, 7, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "uploads/2026/03/07/report.pdf", DatedKey("report.pdf", now))
	assert.Equal(t, "uploads/2026/03/07/report.pdf", DatedKey("/tmp/in/report.pdf", now))
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		tenant string
		want   string
	}{
		{"bucket qualified", "/buckets/t1/uploads/2026/01/01/a.txt", "t1", "uploads/2026/01/01/a.txt"},
		{"bucket qualified no slash", "buckets/t1/uploads/a.txt", "t1", "uploads/a.txt"},
		{"already qualified", "uploads/2026/01/01/a.txt", "t1", "uploads/2026/01/01/a.txt"},
		{"bare filename", "a.txt", "t1", "uploads/a.txt"},
		{"foreign tenant", "/buckets/t2/uploads/a.txt", "t1", "uploads/a.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.path, tt.tenant))
		})
	}
}

func TestUploadSinglePutWithoutMD5(t *testing.T) {
	fake := newFakeS3()
	c := testClient(t, fake, Config{DisableContentMD5: true})

	path := writeTempFile(t, 64)
	res, err := c.Upload(context.Background(), path, "x.bin", "t1", "", UploadOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.MD5)
}
