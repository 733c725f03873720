// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog indexes mirrored articles in SQLite for local full-text
// search and keeps a journal of sync runs.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/kb-sync/internal/mirror"
	"github.com/pdiddy/kb-sync/pkg/types"
)

const dbFile = "catalog.db"

// Store manages the article catalog SQLite database.
type Store struct {
	db         *sql.DB
	catalogDir string
	maxResults int
}

// NewStore opens or creates the catalog database at catalogDir/catalog.db,
// creating the schema if it does not exist.
func NewStore(cfg types.CatalogConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.CatalogDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	dbPath := filepath.Join(cfg.CatalogDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{db: db, catalogDir: cfg.CatalogDir, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			title TEXT,
			source_url TEXT,
			content_hash TEXT,
			last_modified TEXT,
			slug TEXT,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_last_modified ON articles(last_modified)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_at TEXT NOT NULL,
			fetched INTEGER,
			new_count INTEGER,
			updated_count INTEGER,
			skipped_count INTEGER,
			failed_count INTEGER,
			uploaded_files INTEGER,
			uploaded_chunks INTEGER,
			failed_batches INTEGER
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='articles_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE articles_fts USING fts5(title, body, content=articles, content_rowid=rowid)`,
			`CREATE TRIGGER articles_ai AFTER INSERT ON articles BEGIN
				INSERT INTO articles_fts(rowid, title, body) VALUES (new.rowid, new.title, new.body);
			END`,
			`CREATE TRIGGER articles_ad AFTER DELETE ON articles BEGIN
				INSERT INTO articles_fts(articles_fts, rowid, title, body) VALUES('delete', old.rowid, old.title, old.body);
			END`,
			`CREATE TRIGGER articles_au AFTER UPDATE ON articles BEGIN
				INSERT INTO articles_fts(articles_fts, rowid, title, body) VALUES('delete', old.rowid, old.title, old.body);
				INSERT INTO articles_fts(rowid, title, body) VALUES (new.rowid, new.title, new.body);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IngestSummary holds counts from a catalog indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of articles processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Ingest walks the per-article directories under contentDir and indexes
// each article's metadata and Markdown body. The stored content hash makes
// the walk incremental: unchanged articles are skipped, changed ones
// re-indexed. On success it refreshes export.yaml.
func (s *Store) Ingest(ctx context.Context, contentDir string, w io.Writer) (IngestSummary, error) {
	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading content directory %s: %w", contentDir, err)
	}

	var summary IngestSummary

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		id := entry.Name()
		meta, err := readArticleMeta(filepath.Join(contentDir, id, "metadata.json"))
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}

		slug := mirror.Slug(meta.Title)
		body, err := os.ReadFile(filepath.Join(contentDir, id, slug+".md"))
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}

		var storedHash string
		err = s.db.QueryRowContext(ctx,
			`SELECT content_hash FROM articles WHERE id = ?`, id,
		).Scan(&storedHash)

		if err == nil && storedHash == meta.ContentHash {
			fmt.Fprintf(w, "skipped %s\n", id)
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		if err := s.upsertArticle(ctx, meta, slug, string(body)); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", id, err)
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s\n", id)
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%s)\n", id, slug)
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	// Refresh the export after changes.
	if summary.Indexed > 0 || summary.Updated > 0 {
		if err := s.ExportYAML(ctx); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}

	return summary, nil
}

func (s *Store) upsertArticle(ctx context.Context, meta types.ArticleMeta, slug, body string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles (id, title, source_url, content_hash, last_modified, slug, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, source_url=excluded.source_url,
			content_hash=excluded.content_hash, last_modified=excluded.last_modified,
			slug=excluded.slug, body=excluded.body`,
		meta.ID, meta.Title, meta.SourceURL, meta.ContentHash, meta.LastModified, slug, body,
	)
	if err != nil {
		return fmt.Errorf("upserting article: %w", err)
	}
	return nil
}

// readArticleMeta reads an article's metadata sidecar.
func readArticleMeta(path string) (types.ArticleMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ArticleMeta{}, err
	}
	var meta types.ArticleMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return types.ArticleMeta{}, fmt.Errorf("parsing metadata: %w", err)
	}
	return meta, nil
}
