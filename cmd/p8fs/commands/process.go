package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/p8fs/p8fs/pkg/models"
	"github.com/p8fs/p8fs/pkg/processor"
)

var (
	processTenant string
	processDryRun bool
)

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Chunk and index a local file without the broker",
	Long: `Run the worker's extraction and indexing path on a local file: select a
processor, chunk the content and upsert the file and chunk rows directly into
the repository. The blob store and the broker are not involved.

Useful for debugging chunking behavior and for indexing files that never went
through an upload.

Examples:
  p8fs process notes.md --tenant acme
  p8fs process notes.md --tenant acme --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processTenant, "tenant", "", "Tenant to index under")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Print chunks without persisting")
	_ = processCmd.MarkFlagRequired("tenant")
}

func runProcess(cmd *cobra.Command, args []string) error {
	localPath := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}

	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	registry := processor.NewRegistry()
	proc := registry.Select(localPath, contentType)

	ctx := context.Background()
	chunks, meta, err := proc.Process(ctx, content, localPath, contentType, processor.Options{
		ChunkSize: cfg.Worker.ChunkSize,
	})
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	fmt.Printf("Processor: %s  chunks: %d  words: %d  confidence: %.2f\n",
		meta.ExtractionMethod, len(chunks), meta.WordCount, meta.Confidence)

	if processDryRun {
		for _, c := range chunks {
			preview := c.Content
			if len(preview) > 80 {
				preview = preview[:80] + "..."
			}
			fmt.Printf("  [%d] %q\n", c.Ordinal, preview)
		}
		return nil
	}

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	key := "local/" + filepath.Base(localPath)
	hash := sha256.Sum256(content)
	stem := models.FileStem(localPath)

	file := &models.File{
		ID:          models.FileID(processTenant, key),
		Name:        stem,
		BlobURI:     key,
		Size:        int64(len(content)),
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

	entities := make([]models.Entity, 0, len(chunks)+1)
	entities = append(entities, file)
	for _, c := range chunks {
		entities = append(entities, &models.Resource{
			ID:                models.ChunkID(file.ID, meta.ExtractionMethod, c.Ordinal),
			Name:              stem,
			Category:          c.Category,
			Content:           c.Content,
			URI:               key,
			Ordinal:           c.Ordinal,
			ResourceTimestamp: file.UploadedAt,
			Metadata:          map[string]any{"file_id": file.ID.String()},
		})
	}

	results, err := repo.UpsertBatch(ctx, processTenant, entities)
	if err != nil {
		return fmt.Errorf("indexing failed after %d rows: %w", len(results), err)
	}

	var indexingErrors int
	for _, r := range results {
		indexingErrors += len(r.IndexingErrors)
	}
	fmt.Printf("Indexed file %s with %d chunks", file.ID, len(chunks))
	if indexingErrors > 0 {
		fmt.Printf(" (%d best-effort indexing errors, see logs)", indexingErrors)
	}
	fmt.Println()

	if err := repo.AppendIndexEntry(ctx, processTenant, stem, "resources", file.ID, "file"); err != nil {
		return fmt.Errorf("failed to write file index entry: %w", err)
	}
	return nil
}
