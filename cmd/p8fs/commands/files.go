package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/p8fs/p8fs/pkg/models"
)

var (
	filesTenant string
	filesLimit  int
	filesJSON   bool
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect indexed files",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed files for a tenant",
	Long: `List file rows recorded by the workers, newest first.

Examples:
  p8fs files list --tenant acme
  p8fs files list --tenant acme --limit 5 --json`,
	RunE: runFilesList,
}

var filesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one file and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesGet,
}

var (
	filesObjectsPrefix string
	filesObjectsLimit  int
)

var filesObjectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "List raw objects in the tenant's blob bucket",
	Long: `List objects straight from the blob store, independent of what the
workers have indexed. Useful for spotting uploads that never produced a file
row.

Examples:
  p8fs files objects --tenant acme
  p8fs files objects --tenant acme --prefix uploads/2026/08/`,
	RunE: runFilesObjects,
}

func init() {
	filesCmd.PersistentFlags().StringVar(&filesTenant, "tenant", "", "Tenant to query")
	_ = filesCmd.MarkPersistentFlagRequired("tenant")

	filesListCmd.Flags().IntVar(&filesLimit, "limit", 50, "Maximum rows to return")
	filesListCmd.Flags().BoolVar(&filesJSON, "json", false, "Print raw JSON rows")

	filesObjectsCmd.Flags().StringVar(&filesObjectsPrefix, "prefix", "uploads/", "Key prefix to list under")
	filesObjectsCmd.Flags().IntVar(&filesObjectsLimit, "limit", 100, "Maximum objects to return")

	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesGetCmd)
	filesCmd.AddCommand(filesObjectsCmd)
}

func runFilesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	rows, err := repo.Select(ctx, filesTenant, &models.File{}, nil, []string{"-uploaded_at"}, filesLimit)
	if err != nil {
		return err
	}

	if filesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIZE\tCONTENT TYPE\tUPLOADED")
	for _, row := range rows {
		var f models.File
		if err := f.ScanRow(row); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			f.ID, f.Name, f.Size, f.ContentType, f.UploadedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runFilesGet(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid file id %q: %w", args[0], err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	var f models.File
	found, err := repo.Get(ctx, filesTenant, &f, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("file %s not found (tenant %s)", id, filesTenant)
	}

	fmt.Printf("ID:           %s\n", f.ID)
	fmt.Printf("Name:         %s\n", f.Name)
	fmt.Printf("Blob URI:     %s\n", f.BlobURI)
	fmt.Printf("Size:         %d\n", f.Size)
	fmt.Printf("Content type: %s\n", f.ContentType)
	fmt.Printf("Content hash: %s\n", f.ContentHash)
	fmt.Printf("Uploaded:     %s\n", f.UploadedAt.Format("2006-01-02 15:04:05"))

	chunks, err := repo.Select(ctx, filesTenant, &models.Resource{},
		map[string]any{"uri": f.BlobURI}, []string{"ordinal"}, 0)
	if err != nil {
		return err
	}

	fmt.Printf("Chunks:       %d\n", len(chunks))
	for _, row := range chunks {
		var r models.Resource
		if err := r.ScanRow(row); err != nil {
			return err
		}
		content := r.Content
		if len(content) > 60 {
			content = content[:60] + "..."
		}
		fmt.Printf("  [%d] %s  %q\n", r.Ordinal, r.ID, content)
	}
	return nil
}

func runFilesObjects(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	blobs, err := newBlobClient(ctx, cfg, nil)
	if err != nil {
		return err
	}

	objects, err := blobs.List(ctx, filesTenant, filesObjectsPrefix, true, filesObjectsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE\tLAST MODIFIED")
	for _, obj := range objects {
		fmt.Fprintf(w, "%s\t%d\t%s\n", obj.Key, obj.Size, obj.LastModified.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
