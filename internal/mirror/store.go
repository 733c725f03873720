// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mirror

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/kb-sync/pkg/types"
)

// LedgerFile is the fingerprint ledger at the top of the content root.
const LedgerFile = "articles_metadata.json"

// metadataFile sits beside each article's Markdown file.
const metadataFile = "metadata.json"

// Store persists normalized articles under a content root directory, one
// subdirectory per article id holding <slug>.md and metadata.json.
type Store struct {
	root string
}

// NewStore creates the content root if needed. Failure here is the one
// unrecoverable error in a run: with no content root there is nowhere to
// mirror into.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating content root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the content root directory.
func (s *Store) Root() string {
	return s.root
}

// LedgerPath returns the location of the fingerprint ledger file.
func (s *Store) LedgerPath() string {
	return filepath.Join(s.root, LedgerFile)
}

// ArticlePath returns the Markdown file location for a ledger entry.
func (s *Store) ArticlePath(id string, e types.LedgerEntry) string {
	return filepath.Join(s.root, id, e.Slug+".md")
}

// LoadLedger reads the fingerprint ledger. A missing file yields an empty
// ledger. An unreadable or corrupt file also yields an empty usable ledger,
// with a non-nil error so the caller can warn that prior state was dropped.
func (s *Store) LoadLedger() (types.Ledger, error) {
	data, err := os.ReadFile(s.LedgerPath())
	if os.IsNotExist(err) {
		return types.Ledger{}, nil
	}
	if err != nil {
		return types.Ledger{}, fmt.Errorf("reading ledger: %w", err)
	}

	var ledger types.Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return types.Ledger{}, fmt.Errorf("parsing ledger: %w", err)
	}
	return ledger, nil
}

// SaveLedger rewrites the full ledger. Called once per run, after all
// article writes, so a crash mid-run never leaves a half-written entry.
func (s *Store) SaveLedger(ledger types.Ledger) error {
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}
	if err := writeAtomic(s.LedgerPath(), data); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	return nil
}

// SaveArticle writes the Markdown file and its metadata sidecar for one
// article and returns the ledger entry to record. The entry is returned
// rather than applied so callers only mutate the ledger once both writes
// have succeeded.
func (s *Store) SaveArticle(a types.Article, markdown, contentHash string) (types.LedgerEntry, error) {
	// The slug derives from the recorded title, so tooling reading
	// metadata.json can rebuild the file name.
	title := a.Title
	if title == "" {
		title = "No Title"
	}
	slug := Slug(title)

	dir := filepath.Join(s.root, a.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.LedgerEntry{}, fmt.Errorf("creating article directory: %w", err)
	}

	if err := writeAtomic(filepath.Join(dir, slug+".md"), []byte(markdown)); err != nil {
		return types.LedgerEntry{}, fmt.Errorf("writing markdown: %w", err)
	}

	lastModified := a.UpdatedAt
	if lastModified == "" {
		lastModified = time.Now().UTC().Format(time.RFC3339)
	}

	meta := types.ArticleMeta{
		ID:           a.ID,
		Title:        title,
		SourceURL:    a.SourceURL,
		ContentHash:  contentHash,
		LastModified: lastModified,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return types.LedgerEntry{}, fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, metadataFile), data); err != nil {
		return types.LedgerEntry{}, fmt.Errorf("writing metadata: %w", err)
	}

	return types.LedgerEntry{
		ContentHash:  contentHash,
		LastModified: lastModified,
		Slug:         slug,
	}, nil
}

// writeAtomic writes data to a temp file in the destination directory and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".mirror-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
