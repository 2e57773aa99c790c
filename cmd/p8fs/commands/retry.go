package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/pkg/blob"
	"github.com/p8fs/p8fs/pkg/broker"
	"github.com/p8fs/p8fs/pkg/events"
)

var (
	retryTenant      string
	retryContentType string
)

var retryCmd = &cobra.Command{
	Use:   "retry <key>",
	Short: "Re-publish the storage event for an existing blob",
	Long: `Look up an object already in the blob store and publish a fresh create
event for it on the ingress subject. Useful after a processing failure was
recorded and the cause has been fixed.

The object's current size drives tier selection, so a blob that was replaced
with a larger version routes to the right tier.

Examples:
  # Re-process a blob by its object key
  p8fs retry uploads/2026/08/24/report.txt --tenant acme

  # Full blob paths work too
  p8fs retry /buckets/acme/uploads/2026/08/24/report.txt --tenant acme`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func init() {
	retryCmd.Flags().StringVar(&retryTenant, "tenant", "", "Tenant that owns the blob")
	retryCmd.Flags().StringVar(&retryContentType, "content-type", "", "MIME type to declare on the event")
	_ = retryCmd.MarkFlagRequired("tenant")
}

func runRetry(cmd *cobra.Command, args []string) error {
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

	key := blob.NormalizeKey(args[0], retryTenant)
	info, err := blobs.Head(ctx, retryTenant, key)
	if err != nil {
		return fmt.Errorf("failed to stat blob: %w", err)
	}
	if info == nil {
		return fmt.Errorf("blob not found: %s (tenant %s)", key, retryTenant)
	}

	ev := events.StorageEvent{
		EventType:   events.EventCreate,
		Path:        fmt.Sprintf("/buckets/%s/%s", retryTenant, key),
		TenantID:    retryTenant,
		Size:        info.Size,
		ContentType: retryContentType,
		Timestamp:   float64(time.Now().Unix()),
		Source:      "p8fs-retry",
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

	fmt.Printf("Re-published event for %s (%d bytes, tier %s)\n", key, info.Size, ev.Tier())
	return nil
}
