// Package worker implements the per-tier storage worker: it pulls tier
// events serially, downloads the blob, extracts chunks and persists the file
// row plus its chunks through the dual-indexing repository.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/internal/telemetry"
	"github.com/p8fs/p8fs/pkg/blob"
	"github.com/p8fs/p8fs/pkg/broker"
	"github.com/p8fs/p8fs/pkg/events"
	"github.com/p8fs/p8fs/pkg/models"
	"github.com/p8fs/p8fs/pkg/processor"
	"github.com/p8fs/p8fs/pkg/repository"
)

// DefaultFetchTimeout is the production pull wait. Tests use a shorter one.
const DefaultFetchTimeout = 30 * time.Second

// Failure stages recorded on processing error rows.
const (
	StageDownload = "download"
	StageExtract  = "extract"
	StagePersist  = "persist"
	StageEmbed    = "embed"
)

// Downloader is the blob surface the worker needs. *blob.Client implements
// it; tests substitute a stub.
type Downloader interface {
	Download(ctx context.Context, tenant, key string) (*blob.DownloadResult, error)
}

// Metrics is the optional metrics hook for processed events.
type Metrics interface {
	EventProcessed(tier, outcome string)
	ChunksPersisted(tier string, n int)
}

// Config holds worker construction parameters. The (stream, consumer,
// subject) triple is explicit so tests can bind an isolated topology instead
// of the production tier streams.
type Config struct {
	Tier     string
	Stream   string
	Consumer string
	Subject  string

	// FetchTimeout is the pull wait. Default: 30s.
	FetchTimeout time.Duration

	// ChunkSize overrides the processor chunk budget (characters).
	ChunkSize int

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

// ForTier builds the production config for a tier.
func ForTier(tier string) (Config, error) {
	stream, consumer, subject, ok := broker.TierBinding(tier)
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return Config{Tier: tier, Stream: stream, Consumer: consumer, Subject: subject}, nil
}

// Worker processes one tier's events serially. Horizontal scaling is by
// running more instances against the same durable consumer.
type Worker struct {
	cfg        Config
	queue      broker.Queue
	blobs      Downloader
	processors *processor.Registry
	repo       *repository.Repository
}

// New creates a worker.
func New(cfg Config, queue broker.Queue, blobs Downloader, processors *processor.Registry, repo *repository.Repository) *Worker {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if processors == nil {
		processors = processor.NewRegistry()
	}
	return &Worker{
		cfg:        cfg,
		queue:      queue,
		blobs:      blobs,
		processors: processors,
		repo:       repo,
	}
}

// Run pulls and processes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	logger.Info("Storage worker started",
		logger.Tier(w.cfg.Tier),
		logger.KeyStream, w.cfg.Stream,
		logger.KeyConsumer, w.cfg.Consumer)

	for {
		if err := ctx.Err(); err != nil {
			logger.Info("Storage worker stopped", logger.Tier(w.cfg.Tier))
			return nil
		}
		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("Storage worker stopped", logger.Tier(w.cfg.Tier))
				return nil
			}
			logger.Warn("Worker fetch failed", logger.Tier(w.cfg.Tier), logger.Err(err))
		}
	}
}

// RunOnce fetches and handles at most one message. Returns the number of
// messages handled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	msgs, err := w.queue.Fetch(ctx, w.cfg.Stream, w.cfg.Consumer, 1, w.cfg.FetchTimeout)
	if err != nil {
		return 0, err
	}
	for _, msg := range msgs {
		w.handle(ctx, msg)
	}
	return len(msgs), nil
}

// handle runs the full per-message procedure and settles the message.
// Parse and transient failures NAK; stale and poisoned events ACK so they
// never loop past max deliver.
func (w *Worker) handle(ctx context.Context, msg broker.Msg) {
	ctx, span := telemetry.StartBrokerSpan(ctx, "process", msg.Subject(), telemetry.Tier(w.cfg.Tier))
	defer span.End()
	start := time.Now()

	ev, err := events.ParseEvent(msg.Data())
	if err != nil {
		logger.WarnCtx(ctx, "Dropping malformed event for redelivery",
			logger.Tier(w.cfg.Tier),
			logger.KeyDelivered, msg.Delivered(),
			logger.Err(err))
		w.settle(msg, false, "parse")
		return
	}

	err = w.process(ctx, ev)
	outcome := "ok"
	switch events.Classify(err) {
	case events.KindUnknown:
		if err != nil {
			// Unclassified errors retry until max deliver.
			outcome = "transient"
			w.settle(msg, false, outcome)
			logger.ErrorCtx(ctx, "Event processing failed",
				logger.Tier(w.cfg.Tier),
				logger.Path(ev.Path),
				logger.Err(err))
			return
		}
		w.settle(msg, true, outcome)
	case events.KindTransient:
		outcome = "transient"
		w.settle(msg, false, outcome)
		logger.WarnCtx(ctx, "Transient failure, requeueing",
			logger.Tier(w.cfg.Tier),
			logger.Path(ev.Path),
			logger.KeyDelivered, msg.Delivered(),
			logger.Err(err))
		return
	case events.KindNotFound:
		// The blob is gone; the event is stale.
		outcome = "stale"
		w.settle(msg, true, outcome)
		logger.InfoCtx(ctx, "Blob missing, acking stale event",
			logger.Tier(w.cfg.Tier),
			logger.Path(ev.Path))
		return
	case events.KindFatal:
		w.settle(msg, false, "fatal")
		logger.ErrorCtx(ctx, "Fatal processing error",
			logger.Tier(w.cfg.Tier),
			logger.Path(ev.Path),
			logger.Err(err))
		return
	default:
		// Validation and indexing errors ack with an error row so the event
		// does not loop forever.
		outcome = "error_recorded"
		stage := StageExtract
		if events.Classify(err) == events.KindIndexing {
			stage = StageEmbed
		}
		if rerr := w.repo.RecordProcessingError(ctx, ev.TenantID, ev.Path, stage, err); rerr != nil {
			logger.WarnCtx(ctx, "Failed to record processing error", logger.Err(rerr))
		}
		w.settle(msg, true, outcome)
		logger.WarnCtx(ctx, "Unrecoverable event error recorded",
			logger.Tier(w.cfg.Tier),
			logger.Path(ev.Path),
			logger.Err(err))
		return
	}

	logger.InfoCtx(ctx, "Processed event",
		logger.Tier(w.cfg.Tier),
		logger.Tenant(ev.TenantID),
		logger.Path(ev.Path),
		logger.DurationMs(float64(time.Since(start).Milliseconds())))
}

func (w *Worker) settle(msg broker.Msg, ack bool, outcome string) {
	var err error
	if ack {
		err = msg.Ack()
	} else {
		err = msg.Nak()
	}
	if err != nil {
		logger.Warn("Message settle failed", logger.Err(err))
	}
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.EventProcessed(w.cfg.Tier, outcome)
	}
}

// process runs download, extraction and persistence for one parsed event.
func (w *Worker) process(ctx context.Context, ev *events.StorageEvent) error {
	if ev.EventType == events.EventDelete {
		return w.processDelete(ctx, ev)
	}

	key := blob.NormalizeKey(ev.Path, ev.TenantID)

	res, err := w.blobs.Download(ctx, ev.TenantID, key)
	if err != nil {
		return fmt.Errorf("%w: download %s: %v", events.ErrTransient, key, err)
	}
	if res == nil {
		return fmt.Errorf("%w: blob %s", events.ErrNotFound, key)
	}

	contentType := ev.ContentType
	if contentType == "" {
		contentType = res.ContentType
	}

	proc := w.processors.Select(key, contentType)
	chunks, meta, err := proc.Process(ctx, res.Content, key, contentType, processor.Options{
		ChunkSize: w.cfg.ChunkSize,
	})
	if err != nil {
		return fmt.Errorf("%w: extract %s: %v", events.ErrValidation, key, err)
	}

	// Identity comes from the path as published, not the normalized object
	// key, so producers and consumers agree on the UUID without sharing the
	// normalization rules.
	fileID := models.FileID(ev.TenantID, ev.Path)
	stem := models.FileStem(key)
	hash := sha256.Sum256(res.Content)

	file := &models.File{
		ID:          fileID,
		TenantID:    ev.TenantID,
		Name:        stem,
		BlobURI:     key,
		Size:        res.Size,
		ContentType: contentType,
		ContentHash: hex.EncodeToString(hash[:]),
		UploadedAt:  time.Now().UTC(),
		Metadata: map[string]any{
			"title":             meta.Title,
			"word_count":        meta.WordCount,
			"confidence":        meta.Confidence,
			"extraction_method": meta.ExtractionMethod,
		},
	}
	if _, err := w.repo.Upsert(ctx, ev.TenantID, file); err != nil {
		return fmt.Errorf("persist file %s: %w", key, err)
	}

	entities := make([]models.Entity, 0, len(chunks))
	for _, chunk := range chunks {
		entities = append(entities, &models.Resource{
			ID:                models.ChunkID(fileID, meta.ExtractionMethod, chunk.Ordinal),
			TenantID:          ev.TenantID,
			Name:              stem,
			Category:          chunk.Category,
			Content:           chunk.Content,
			URI:               key,
			Ordinal:           chunk.Ordinal,
			ResourceTimestamp: time.Now().UTC(),
			Metadata:          map[string]any{"file_id": fileID.String()},
		})
	}
	results, err := w.repo.UpsertBatch(ctx, ev.TenantID, entities)
	if err != nil {
		return fmt.Errorf("persist chunks of %s: %w", key, err)
	}
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.ChunksPersisted(w.cfg.Tier, len(results))
	}

	// The file's UUID joins its chunks under the stem label so a label
	// lookup resolves both the file and its content.
	if err := w.repo.AppendIndexEntry(ctx, ev.TenantID, stem, "resources", fileID, "file"); err != nil {
		logger.WarnCtx(ctx, "File index append failed",
			logger.Path(key),
			logger.Err(err))
	}
	return nil
}

// processDelete removes the file row derived from the event path. Chunk
// rows keep their history; only the file identity goes away.
func (w *Worker) processDelete(ctx context.Context, ev *events.StorageEvent) error {
	key := blob.NormalizeKey(ev.Path, ev.TenantID)
	fileID := models.FileID(ev.TenantID, ev.Path)

	if err := w.repo.Delete(ctx, ev.TenantID, &models.File{}, fileID); err != nil {
		return fmt.Errorf("delete file %s: %w", key, err)
	}
	logger.InfoCtx(ctx, "Deleted file for delete event",
		logger.Tenant(ev.TenantID),
		logger.Path(key),
		logger.EntityID(fileID.String()))
	return nil
}

// ErrUnknownTier is returned by ForTier for unrecognized tier names.
var ErrUnknownTier = errors.New("unknown tier")

// ParseFileID re-derives the deterministic file id for an event path,
// exposed for the retry and files CLI commands.
func ParseFileID(tenant, path string) uuid.UUID {
	return models.FileID(tenant, path)
}
