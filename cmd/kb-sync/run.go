package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-sync/internal/catalog"
	"github.com/pdiddy/kb-sync/internal/convert"
	"github.com/pdiddy/kb-sync/internal/fetch"
	"github.com/pdiddy/kb-sync/internal/mirror"
	"github.com/pdiddy/kb-sync/internal/secrets"
	"github.com/pdiddy/kb-sync/internal/upload"
	"github.com/pdiddy/kb-sync/internal/vecstore"
	"github.com/pdiddy/kb-sync/pkg/types"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultUserAgent    = "kb-sync/0.1"
	defaultPageSize     = 10
	defaultPauseEvery   = 20
	defaultPause        = 1 * time.Second
	defaultMaxRetries   = 3
	defaultBaseURL      = "https://api.openai.com/v1"
	defaultStoreName    = "kb-sync-articles"
	defaultChunkSize    = 600
	defaultChunkOverlap = 200
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 5 * time.Minute
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one full sync: fetch, mirror, upload, catalog",
	Long: `Run executes one end-to-end sync. It fetches every article from the
source, mirrors new and updated ones into the local content store, uploads
exactly those files to the vector store, and refreshes the local search
catalog. Unchanged articles are skipped at every stage, so a run over an
unchanged source uploads nothing.`,
	RunE: runPipeline,
}

func init() {
	addHTTPFlags(runCmd)
	addFetchFlags(runCmd)
	addStoreFlag(runCmd)
	addUploadFlags(runCmd)
	addCatalogFlags(runCmd)
	runCmd.Flags().Bool("skip-upload", false, "skip the vector store upload stage (push later with the upload command)")
	runCmd.Flags().Bool("skip-catalog", false, "skip the local search catalog refresh")

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	fetchCfg, err := fetchConfigFromCmd(cmd)
	if err != nil {
		return err
	}
	store, err := mirror.NewStore(stringSetting(cmd, "content-dir", "store.content_dir"))
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: fetchCfg.Timeout}
	articles, err := fetch.NewClient(client, fetchCfg).FetchAll(ctx, os.Stdout)
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

	var uploadRes upload.Result
	if skip, _ := cmd.Flags().GetBool("skip-upload"); !skip {
		uploadCfg, err := uploadConfigFromCmd(cmd)
		if err != nil {
			return err
		}
		svc := vecstore.NewClient(&http.Client{Timeout: uploadCfg.Timeout}, uploadCfg)

		fmt.Fprintln(os.Stdout)
		uploadRes, err = upload.Run(ctx, svc, store, ledger, result.Delta, uploadCfg.BatchSize, os.Stdout)
		if err != nil {
			return err
		}
	}

	if skip, _ := cmd.Flags().GetBool("skip-catalog"); !skip {
		cat, err := catalog.NewStore(catalogConfigFromCmd(cmd))
		if err != nil {
			return err
		}
		defer cat.Close()

		fmt.Fprintln(os.Stdout)
		if _, err := cat.Ingest(ctx, store.Root(), os.Stdout); err != nil {
			return err
		}
		rec := catalog.RunRecord{
			RunAt:          time.Now().UTC().Format(time.RFC3339),
			Fetched:        len(articles),
			New:            result.New,
			Updated:        result.Updated,
			Skipped:        result.Skipped,
			Failed:         result.Failed,
			UploadedFiles:  uploadRes.FilesUploaded,
			UploadedChunks: uploadRes.ChunksEmbedded,
			FailedBatches:  uploadRes.FailedBatches,
		}
		if err := cat.RecordRun(ctx, rec); err != nil {
			return err
		}
	}

	if result.Failed > 0 || uploadRes.FailedBatches > 0 {
		return fmt.Errorf("sync finished with failures: %d article(s), %d batch(es)",
			result.Failed, uploadRes.FailedBatches)
	}
	return nil
}

// --- shared flags ---

func addHTTPFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", defaultTimeout, "HTTP request timeout")
}

func addFetchFlags(cmd *cobra.Command) {
	cmd.Flags().String("source-url", "", "articles endpoint of the source knowledge base (required)")
	cmd.Flags().String("source-token", "", "source API token (or KB_SYNC_SOURCE_API_TOKEN, or .secrets/source-api-token)")
	cmd.Flags().Int("page-size", defaultPageSize, "articles requested per page")
	cmd.Flags().Int("max-articles", 0, "cap on fetched articles (0 = all)")
	cmd.Flags().Int("pause-every", defaultPauseEvery, "documents per throttle window (0 disables)")
	cmd.Flags().Duration("pause", defaultPause, "pause accumulated per throttle window")
	cmd.Flags().Int("max-retries", defaultMaxRetries, "per-page retry budget for transient failures")
}

func addStoreFlag(cmd *cobra.Command) {
	cmd.Flags().String("content-dir", "articles", "content root for mirrored articles and the ledger")
}

func addUploadFlags(cmd *cobra.Command) {
	cmd.Flags().String("base-url", defaultBaseURL, "index service API root")
	cmd.Flags().String("api-key", "", "index API key (or KB_SYNC_INDEX_API_KEY, or .secrets/index-api-key)")
	cmd.Flags().String("store-name", defaultStoreName, "vector store name (looked up, created on first use)")
	cmd.Flags().Int("batch-size", upload.DefaultBatchSize, "files per bulk upload")
	cmd.Flags().Int("chunk-size", defaultChunkSize, "chunk window in tokens")
	cmd.Flags().Int("chunk-overlap", defaultChunkOverlap, "chunk overlap in tokens")
	cmd.Flags().Duration("poll-interval", defaultPollInterval, "delay between batch status polls")
	cmd.Flags().Duration("poll-timeout", defaultPollTimeout, "bound on how long one batch may stay in progress")
}

func addCatalogFlags(cmd *cobra.Command) {
	cmd.Flags().String("catalog-dir", "catalog", "base directory for the search catalog")
	cmd.Flags().Int("max-results", 20, "default maximum number of query results")
}

// --- config assembly ---

func fetchConfigFromCmd(cmd *cobra.Command) (types.FetchConfig, error) {
	cfg := types.FetchConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   durationSetting(cmd, "timeout", "fetch.timeout"),
			UserAgent: defaultUserAgent,
		},
		SourceURL: stringSetting(cmd, "source-url", "fetch.source_url"),
		APIToken: secrets.Resolve(
			stringSetting(cmd, "source-token", "fetch.api_token"),
			loadedSecrets, "source-api-token", "KB_SYNC_SOURCE_API_TOKEN"),
		PageSize:    intSetting(cmd, "page-size", "fetch.page_size"),
		MaxArticles: intSetting(cmd, "max-articles", "fetch.max_articles"),
		PauseEvery:  intSetting(cmd, "pause-every", "fetch.pause_every"),
		Pause:       durationSetting(cmd, "pause", "fetch.pause"),
		MaxRetries:  intSetting(cmd, "max-retries", "fetch.max_retries"),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("fetch config: %w", err)
	}
	return cfg, nil
}

func uploadConfigFromCmd(cmd *cobra.Command) (types.UploadConfig, error) {
	cfg := types.UploadConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   durationSetting(cmd, "timeout", "upload.timeout"),
			UserAgent: defaultUserAgent,
		},
		BaseURL: stringSetting(cmd, "base-url", "upload.base_url"),
		APIKey: secrets.Resolve(
			stringSetting(cmd, "api-key", "upload.api_key"),
			loadedSecrets, "index-api-key", "KB_SYNC_INDEX_API_KEY", "OPENAI_API_KEY"),
		StoreName:          stringSetting(cmd, "store-name", "upload.store_name"),
		BatchSize:          intSetting(cmd, "batch-size", "upload.batch_size"),
		MaxChunkSizeTokens: intSetting(cmd, "chunk-size", "upload.max_chunk_size_tokens"),
		ChunkOverlapTokens: intSetting(cmd, "chunk-overlap", "upload.chunk_overlap_tokens"),
		PollInterval:       durationSetting(cmd, "poll-interval", "upload.poll_interval"),
		PollTimeout:        durationSetting(cmd, "poll-timeout", "upload.poll_timeout"),
	}
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("index API key required: set --api-key, KB_SYNC_INDEX_API_KEY, or .secrets/index-api-key")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("upload config: %w", err)
	}
	return cfg, nil
}

func catalogConfigFromCmd(cmd *cobra.Command) types.CatalogConfig {
	return types.CatalogConfig{
		CatalogDir: stringSetting(cmd, "catalog-dir", "catalog.catalog_dir"),
		MaxResults: intSetting(cmd, "max-results", "catalog.max_results"),
	}
}
