package commands

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/pkg/blob"
	"github.com/p8fs/p8fs/pkg/broker"
	"github.com/p8fs/p8fs/pkg/events"
)

var (
	ingestTenant      string
	ingestContentType string
	ingestKey         string
	ingestNoPublish   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Upload a file and publish its storage event",
	Long: `Upload a local file to the tenant's bucket under a dated key and publish
a create event on the ingress subject so the pipeline picks it up.

Examples:
  # Upload and publish for the default tenant
  p8fs ingest notes.md --tenant acme

  # Upload under an explicit key
  p8fs ingest report.txt --tenant acme --key uploads/2026/08/24/report.txt

  # Upload only, without publishing the event
  p8fs ingest backup.tar --tenant acme --no-publish`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "Tenant that owns the upload")
	ingestCmd.Flags().StringVar(&ingestContentType, "content-type", "", "MIME type (default: derived from the extension)")
	ingestCmd.Flags().StringVar(&ingestKey, "key", "", "Object key (default: dated uploads/ key)")
	ingestCmd.Flags().BoolVar(&ingestNoPublish, "no-publish", false, "Upload without publishing a storage event")
	_ = ingestCmd.MarkFlagRequired("tenant")
}

func runIngest(cmd *cobra.Command, args []string) error {
	localPath := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(context.Background())
	defer stop()

	blobs, err := newBlobClient(ctx, cfg, nil)
	if err != nil {
		return err
	}

	contentType := ingestContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(localPath))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := blobs.Upload(ctx, localPath, filepath.Base(localPath), ingestTenant, contentType, blob.UploadOptions{
		Key: ingestKey,
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	fmt.Printf("Uploaded %s (%d bytes) to %s\n", localPath, result.Size, result.FinalPath)

	if ingestNoPublish {
		return nil
	}

	ev := events.StorageEvent{
		EventType:   events.EventCreate,
		Path:        fmt.Sprintf("/buckets/%s/%s", ingestTenant, result.FinalPath),
		TenantID:    ingestTenant,
		Size:        result.Size,
		ContentType: contentType,
		Timestamp:   float64(time.Now().Unix()),
		Source:      "p8fs-cli",
	}
	payload, err := ev.Encode()
	if err != nil {
		return err
	}

	client, err := connectBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("Broker close error", "error", err)
		}
	}()

	if err := client.Publish(ctx, broker.SubjectIngress, payload); err != nil {
		return fmt.Errorf("failed to publish storage event: %w", err)
	}

	fmt.Printf("Published %s event for tier %s\n", ev.EventType, ev.Tier())
	return nil
}
