package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kb-sync/internal/mirror"
	"github.com/pdiddy/kb-sync/pkg/types"
)

// --- test helpers ---

func testCatalog(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir := t.TempDir()

	contentDir := filepath.Join(tmpDir, "articles")
	if err := os.MkdirAll(contentDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := types.CatalogConfig{
		CatalogDir: filepath.Join(tmpDir, "catalog"),
		MaxResults: 20,
	}
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return store, contentDir
}

func writeArticle(t *testing.T, contentDir string, meta types.ArticleMeta, body string) {
	t.Helper()
	dir := filepath.Join(contentDir, meta.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	slug := mirror.Slug(meta.Title)
	if err := os.WriteFile(filepath.Join(dir, slug+".md"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sampleMeta(id, title, hash string) types.ArticleMeta {
	return types.ArticleMeta{
		ID:           id,
		Title:        title,
		SourceURL:    "https://support.example.com/articles/" + id,
		ContentHash:  hash,
		LastModified: "2026-03-0" + id[len(id)-1:] + "T00:00:00Z",
	}
}

func seedThree(t *testing.T, contentDir string) {
	t.Helper()
	writeArticle(t, contentDir, sampleMeta("101", "Resetting Your Password", "hash-a"),
		"# Resetting Your Password\n\nOpen settings and choose reset password.\n")
	writeArticle(t, contentDir, sampleMeta("102", "Billing Overview", "hash-b"),
		"# Billing Overview\n\nInvoices are issued monthly.\n")
	writeArticle(t, contentDir, sampleMeta("103", "API Quickstart", "hash-c"),
		"# API Quickstart\n\nAuthenticate with your token and call the endpoint.\n")
}

// --- tests ---

func TestIngestAndSearch(t *testing.T) {
	store, contentDir := testCatalog(t)
	seedThree(t, contentDir)

	// The top-level ledger file must not confuse the walk.
	if err := os.WriteFile(filepath.Join(contentDir, "articles_metadata.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	summary, err := store.Ingest(context.Background(), contentDir, &out)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if summary.Indexed != 3 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}

	results, err := store.Search(context.Background(), QueryOptions{Query: "password"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != "101" {
		t.Errorf("result ID = %q, want 101", results[0].ID)
	}
	if !strings.Contains(strings.ToLower(results[0].Snippet), "[password]") {
		t.Errorf("snippet should highlight the match: %q", results[0].Snippet)
	}
}

func TestIngestIncremental(t *testing.T) {
	store, contentDir := testCatalog(t)
	seedThree(t, contentDir)
	ctx := context.Background()

	if _, err := store.Ingest(ctx, contentDir, io.Discard); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	// Unchanged content is skipped wholesale.
	summary, err := store.Ingest(ctx, contentDir, io.Discard)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if summary.Skipped != 3 || summary.Indexed != 0 || summary.Updated != 0 {
		t.Fatalf("second summary = %+v", summary)
	}

	// A changed hash re-indexes just that article.
	writeArticle(t, contentDir, sampleMeta("101", "Resetting Your Password", "hash-a2"),
		"# Resetting Your Password\n\nUse the self-service portal instead.\n")

	summary, err = store.Ingest(ctx, contentDir, io.Discard)
	if err != nil {
		t.Fatalf("third Ingest: %v", err)
	}
	if summary.Updated != 1 || summary.Skipped != 2 {
		t.Fatalf("third summary = %+v", summary)
	}

	// The FTS index follows the update.
	results, err := store.Search(ctx, QueryOptions{Query: "portal"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "101" {
		t.Errorf("results = %+v", results)
	}
	stale, err := store.Search(ctx, QueryOptions{Query: "\"choose reset\""})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("stale content still indexed: %+v", stale)
	}
}

func TestIngestReportsBrokenArticles(t *testing.T) {
	store, contentDir := testCatalog(t)

	// Metadata without its Markdown file.
	dir := filepath.Join(contentDir, "201")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(sampleMeta("201", "Ghost Article", "hash-x"))
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	// Corrupt metadata.
	dir2 := filepath.Join(contentDir, "202")
	if err := os.MkdirAll(dir2, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir2, "metadata.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	summary, err := store.Ingest(context.Background(), contentDir, &out)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if summary.Failed != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if !strings.Contains(out.String(), "failed") {
		t.Errorf("failures not reported:\n%s", out.String())
	}
}

func TestSearchEmptyQueryListsRecent(t *testing.T) {
	store, contentDir := testCatalog(t)
	seedThree(t, contentDir)
	ctx := context.Background()

	if _, err := store.Ingest(ctx, contentDir, io.Discard); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	results, err := store.Search(ctx, QueryOptions{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	// Newest last_modified first.
	if results[0].ID != "103" {
		t.Errorf("first result = %q, want 103", results[0].ID)
	}

	limited, err := store.Search(ctx, QueryOptions{MaxResults: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d results, want 2", len(limited))
	}
}

func TestRunsJournal(t *testing.T) {
	store, _ := testCatalog(t)
	ctx := context.Background()

	first := RunRecord{
		RunAt: "2026-03-01T10:00:00Z", Fetched: 12, New: 12,
		UploadedFiles: 12, UploadedChunks: 40,
	}
	second := RunRecord{
		RunAt: "2026-03-02T10:00:00Z", Fetched: 12, Skipped: 12,
	}
	if err := store.RecordRun(ctx, first); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := store.RecordRun(ctx, second); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := store.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0] != second || runs[1] != first {
		t.Errorf("runs out of order: %+v", runs)
	}
}

func TestExport(t *testing.T) {
	store, contentDir := testCatalog(t)
	seedThree(t, contentDir)
	ctx := context.Background()

	if _, err := store.Ingest(ctx, contentDir, io.Discard); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// Ingest already refreshed export.yaml.
	yamlPath := filepath.Join(store.catalogDir, "export.yaml")
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		t.Fatalf("reading export.yaml: %v", err)
	}
	var yamlEntries []ExportEntry
	if err := yaml.Unmarshal(data, &yamlEntries); err != nil {
		t.Fatalf("parsing export.yaml: %v", err)
	}
	if len(yamlEntries) != 3 {
		t.Fatalf("export.yaml has %d entries, want 3", len(yamlEntries))
	}
	if yamlEntries[0].ID != "101" || yamlEntries[0].Slug != "resetting-your-password" {
		t.Errorf("first entry = %+v", yamlEntries[0])
	}

	if err := store.ExportJSON(ctx); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	jsonData, err := os.ReadFile(filepath.Join(store.catalogDir, "export.json"))
	if err != nil {
		t.Fatalf("reading export.json: %v", err)
	}
	var jsonEntries []ExportEntry
	if err := json.Unmarshal(jsonData, &jsonEntries); err != nil {
		t.Fatalf("parsing export.json: %v", err)
	}
	if len(jsonEntries) != 3 {
		t.Errorf("export.json has %d entries, want 3", len(jsonEntries))
	}
}
