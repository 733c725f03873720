package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-sync/internal/convert"
	"github.com/pdiddy/kb-sync/internal/fetch"
	"github.com/pdiddy/kb-sync/internal/mirror"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Fetch articles and mirror changed ones into local Markdown",
	Long: `Mirror fetches every article from the source knowledge base, converts
new and updated ones to clean Markdown, and writes them into the content
store together with per-article metadata. A change ledger tracks content
hashes, so unchanged articles are skipped on subsequent runs.`,
	RunE: runMirror,
}

func init() {
	addHTTPFlags(mirrorCmd)
	addFetchFlags(mirrorCmd)
	addStoreFlag(mirrorCmd)

	rootCmd.AddCommand(mirrorCmd)
}

func runMirror(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := fetchConfigFromCmd(cmd)
	if err != nil {
		return err
	}
	store, err := mirror.NewStore(stringSetting(cmd, "content-dir", "store.content_dir"))
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: cfg.Timeout}
	articles, err := fetch.NewClient(client, cfg).FetchAll(ctx, os.Stdout)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "fetched %d article(s)\n", len(articles))

	ledger, err := store.LoadLedger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; treating all articles as new\n", err)
	}

	result := mirror.Run(articles, ledger, store, convert.NewHTMLRenderer(), os.Stdout)
	if err := store.SaveLedger(ledger); err != nil {
		return err
	}

	if result.HasFailures() {
		return fmt.Errorf("%d article(s) failed to mirror", result.Failed)
	}
	return nil
}
