// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-sync/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the local search catalog (ingest, query, runs, export)",
	Long: `Catalog maintains a local SQLite full-text index over the mirrored
articles. Use subcommands to ingest mirrored content, query it, inspect
the sync run journal, or export the article index.`,
}

// --- ingest subcommand ---

var catalogIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index mirrored articles into the search catalog",
	Long: `Ingest walks the content store, indexes each article's metadata and
Markdown body with FTS5, and refreshes the export file. Articles whose
content hash is unchanged are skipped on subsequent runs.`,
	RunE: runCatalogIngest,
}

func runCatalogIngest(cmd *cobra.Command, args []string) error {
	store, err := catalog.NewStore(catalogConfigFromCmd(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	contentDir := stringSetting(cmd, "content-dir", "store.content_dir")
	summary, err := store.Ingest(context.Background(), contentDir, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d article(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- query subcommand ---

var catalogQueryCmd = &cobra.Command{
	Use:   "query [query]",
	Short: "Search the catalog with full-text search",
	Long: `Query searches indexed articles using FTS5 full-text search and prints
matches with a highlighted snippet. Without a query it lists the most
recently modified articles.`,
	RunE: runCatalogQuery,
}

func runCatalogQuery(cmd *cobra.Command, args []string) error {
	store, err := catalog.NewStore(catalogConfigFromCmd(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	opts := catalog.QueryOptions{
		Query:      strings.Join(args, " "),
		MaxResults: limit,
	}

	results, err := store.Search(context.Background(), opts)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatSearchOutput(results, jsonOutput)
}

func formatSearchOutput(results []catalog.SearchResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-10s  %-20s  %-40s  %s\n", "ID", "Modified", "Title", "Snippet")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))

	for _, r := range results {
		title := r.Title
		if len(title) > 40 {
			title = title[:37] + "..."
		}
		snippet := strings.ReplaceAll(r.Snippet, "\n", " ")
		if len(snippet) > 60 {
			snippet = snippet[:57] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-10s  %-20s  %-40s  %s\n", r.ID, r.LastModified, title, snippet)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- runs subcommand ---

var catalogRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the sync run journal, newest first",
	RunE:  runCatalogRuns,
}

func runCatalogRuns(cmd *cobra.Command, args []string) error {
	store, err := catalog.NewStore(catalogConfigFromCmd(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.Runs(context.Background(), limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-20s  %7s  %5s  %7s  %7s  %6s  %6s  %7s\n",
		"Run", "Fetched", "New", "Updated", "Skipped", "Failed", "Files", "Chunks")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 80))
	for _, r := range runs {
		fmt.Fprintf(os.Stdout, "%-20s  %7d  %5d  %7d  %7d  %6d  %6d  %7d\n",
			r.RunAt, r.Fetched, r.New, r.Updated, r.Skipped, r.Failed, r.UploadedFiles, r.UploadedChunks)
	}
	return nil
}

// --- export subcommand ---

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the article index to YAML or JSON",
	RunE:  runCatalogExport,
}

func runCatalogExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg := catalogConfigFromCmd(cmd)
	store, err := catalog.NewStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(context.Background()); err != nil {
			return err
		}
		fmt.Println("Exported to", filepath.Join(cfg.CatalogDir, "export.yaml"))
	case "json":
		if err := store.ExportJSON(context.Background()); err != nil {
			return err
		}
		fmt.Println("Exported to", filepath.Join(cfg.CatalogDir, "export.json"))
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	return nil
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	catalogCmd.PersistentFlags().String("catalog-dir", "catalog", "base directory for the search catalog")
	catalogCmd.PersistentFlags().String("content-dir", "articles", "content root for mirrored articles")
	catalogCmd.PersistentFlags().Int("max-results", 20, "default maximum number of query results")

	catalogQueryCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	catalogQueryCmd.Flags().Bool("json", false, "output results as JSON")

	catalogRunsCmd.Flags().Int("limit", 0, "maximum runs to show (0 = use default)")

	catalogExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	// Wire subcommands.
	catalogCmd.AddCommand(catalogIngestCmd)
	catalogCmd.AddCommand(catalogQueryCmd)
	catalogCmd.AddCommand(catalogRunsCmd)
	catalogCmd.AddCommand(catalogExportCmd)

	rootCmd.AddCommand(catalogCmd)
}
