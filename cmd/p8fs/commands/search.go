package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p8fs/p8fs/pkg/models"
	"github.com/p8fs/p8fs/pkg/repository/provider"
)

var (
	searchTenant    string
	searchLimit     int
	searchMetric    string
	searchThreshold float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search over indexed chunks",
	Long: `Embed the query text and return the nearest chunks by vector distance.

Requires embeddings to be enabled in the configuration, since the query is
embedded with the same provider the workers used at index time.

Examples:
  p8fs search "quarterly revenue" --tenant acme
  p8fs search "error budget" --tenant acme --limit 5 --metric l2`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchTenant, "tenant", "", "Tenant to query")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum hits to return")
	searchCmd.Flags().StringVar(&searchMetric, "metric", "cosine", "Distance metric: cosine, l2 or inner_product")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "Maximum distance (0 disables the cut-off)")
	_ = searchCmd.MarkFlagRequired("tenant")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Embeddings.Enabled {
		return fmt.Errorf("semantic search requires embeddings.enabled: true")
	}

	ctx := context.Background()
	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	results, err := repo.SemanticSearch(ctx, searchTenant, &models.Resource{}, args[0], provider.SearchOptions{
		Limit:     searchLimit,
		Threshold: searchThreshold,
		Metric:    searchMetric,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, res := range results {
		var r models.Resource
		if err := r.ScanRow(res.Row); err != nil {
			return err
		}
		content := r.Content
		if len(content) > 100 {
			content = content[:100] + "..."
		}
		fmt.Printf("%2d. %.4f  %s [%d]\n    %s\n", i+1, res.SimilarityScore, r.Name, r.Ordinal, content)
	}
	return nil
}
