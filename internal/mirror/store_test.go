package mirror

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/kb-sync/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "articles"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestNewStoreCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "deeply", "nested", "articles")
	if _, err := NewStore(root); err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("content root not created: %v", err)
	}
}

func TestSaveArticle(t *testing.T) {
	store := newTestStore(t)
	a := types.Article{
		ID:        "100",
		Title:     "Resetting Your Password",
		Body:      "<p>raw body</p>",
		SourceURL: "https://support.example.com/articles/100",
		UpdatedAt: "2026-02-01T09:30:00Z",
	}
	hash := Fingerprint(a.Body)

	entry, err := store.SaveArticle(a, "# Resetting Your Password\n\nrendered\n", hash)
	if err != nil {
		t.Fatalf("SaveArticle: %v", err)
	}

	if entry.Slug != "resetting-your-password" {
		t.Errorf("Slug = %q", entry.Slug)
	}
	if entry.ContentHash != hash {
		t.Errorf("ContentHash = %q, want %q", entry.ContentHash, hash)
	}
	if entry.LastModified != "2026-02-01T09:30:00Z" {
		t.Errorf("LastModified = %q", entry.LastModified)
	}

	mdPath := store.ArticlePath("100", entry)
	data, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("reading markdown: %v", err)
	}
	if !strings.Contains(string(data), "rendered") {
		t.Errorf("markdown content = %q", data)
	}

	metaData, err := os.ReadFile(filepath.Join(store.Root(), "100", "metadata.json"))
	if err != nil {
		t.Fatalf("reading metadata: %v", err)
	}
	var meta types.ArticleMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		t.Fatalf("parsing metadata: %v", err)
	}
	if meta.ID != "100" || meta.Title != "Resetting Your Password" {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.SourceURL != a.SourceURL || meta.ContentHash != hash {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestSaveArticleFallbacks(t *testing.T) {
	store := newTestStore(t)
	a := types.Article{ID: "7", Body: "<p>x</p>"}

	entry, err := store.SaveArticle(a, "content", Fingerprint(a.Body))
	if err != nil {
		t.Fatalf("SaveArticle: %v", err)
	}
	// The slug follows the recorded fallback title.
	if entry.Slug != "no-title" {
		t.Errorf("Slug = %q, want %q", entry.Slug, "no-title")
	}
	if entry.LastModified == "" {
		t.Error("LastModified should fall back to the current time")
	}

	metaData, err := os.ReadFile(filepath.Join(store.Root(), "7", "metadata.json"))
	if err != nil {
		t.Fatalf("reading metadata: %v", err)
	}
	if !strings.Contains(string(metaData), "No Title") {
		t.Errorf("metadata should carry the title fallback: %s", metaData)
	}
}

func TestSaveArticleOverwrite(t *testing.T) {
	store := newTestStore(t)
	a := types.Article{ID: "5", Title: "Guide", Body: "v1", UpdatedAt: "t1"}

	if _, err := store.SaveArticle(a, "first", Fingerprint(a.Body)); err != nil {
		t.Fatalf("SaveArticle: %v", err)
	}

	a.Body = "v2"
	entry, err := store.SaveArticle(a, "second", Fingerprint(a.Body))
	if err != nil {
		t.Fatalf("SaveArticle: %v", err)
	}

	data, err := os.ReadFile(store.ArticlePath("5", entry))
	if err != nil {
		t.Fatalf("reading markdown: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want %q", data, "second")
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	store := newTestStore(t)

	// A fresh store has no ledger yet.
	ledger, err := store.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger on fresh store: %v", err)
	}
	if len(ledger) != 0 {
		t.Fatalf("fresh ledger has %d entries", len(ledger))
	}

	ledger["100"] = types.LedgerEntry{ContentHash: "abc", LastModified: "t", Slug: "guide"}
	ledger["200"] = types.LedgerEntry{ContentHash: "def", LastModified: "t2", Slug: "other"}
	if err := store.SaveLedger(ledger); err != nil {
		t.Fatalf("SaveLedger: %v", err)
	}

	reloaded, err := store.LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger: %v", err)
	}
	if len(reloaded) != 2 {
		t.Fatalf("reloaded ledger has %d entries, want 2", len(reloaded))
	}
	if reloaded["100"] != ledger["100"] {
		t.Errorf("entry 100 = %+v, want %+v", reloaded["100"], ledger["100"])
	}
}

func TestLoadLedgerCorrupt(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.LedgerPath(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	ledger, err := store.LoadLedger()
	if err == nil {
		t.Fatal("corrupt ledger should report an error")
	}
	if ledger == nil || len(ledger) != 0 {
		t.Errorf("corrupt ledger should yield an empty usable ledger, got %v", ledger)
	}

	// The run proceeds with the empty ledger as if there were no prior state.
	ledger["1"] = types.LedgerEntry{ContentHash: "h"}
	if err := store.SaveLedger(ledger); err != nil {
		t.Fatalf("SaveLedger after corruption: %v", err)
	}
}
