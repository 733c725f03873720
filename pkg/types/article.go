// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Article is one document fetched from the source knowledge base. It is
// owned by a single run: fetched, classified, persisted, then discarded.
type Article struct {
	// ID is the source-assigned identifier, opaque and string-comparable.
	ID string `json:"id" yaml:"id"`

	// Title is the human-readable article title.
	Title string `json:"title" yaml:"title"`

	// Body is the raw HTML body exactly as the source returned it. Content
	// fingerprints are computed over this field, never the rendered form.
	Body string `json:"body" yaml:"body"`

	// SourceURL links back to the article on the source site.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// UpdatedAt is the source's last-modification timestamp, carried as an
	// opaque string.
	UpdatedAt string `json:"updated_at" yaml:"updated_at"`
}

// ChangeStatus classifies an article against the ledger.
type ChangeStatus string

const (
	ChangeNew       ChangeStatus = "new"
	ChangeUpdated   ChangeStatus = "updated"
	ChangeUnchanged ChangeStatus = "unchanged"
)

// Change pairs an article id with its classification outcome. The ordered
// change list produced by a mirror run is the sole contract between the
// write path and the upload path.
type Change struct {
	ID     string       `json:"id" yaml:"id"`
	Status ChangeStatus `json:"status" yaml:"status"`
}

// LedgerEntry records the last successfully persisted state of one article.
type LedgerEntry struct {
	// ContentHash is the SHA-256 hex digest of the raw article body.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	// LastModified mirrors the article's updated_at at persist time.
	LastModified string `json:"last_modified" yaml:"last_modified"`

	// Slug is the filename stem derived from the title at persist time.
	Slug string `json:"slug" yaml:"slug"`
}

// Ledger maps article id to its last persisted state. An entry exists if
// and only if the article has been written to the local store at least
// once; the ledger is the single source of truth for change detection.
// It is loaded once at run start and rewritten in full once at run end.
type Ledger map[string]LedgerEntry

// ArticleMeta is the sidecar metadata written next to each rendered article.
type ArticleMeta struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	SourceURL    string `json:"source_url" yaml:"source_url"`
	ContentHash  string `json:"content_hash" yaml:"content_hash"`
	LastModified string `json:"last_modified" yaml:"last_modified"`
}

// FileCounts breaks one submitted batch's files down by outcome, as
// reported by the index service.
type FileCounts struct {
	Completed  int `json:"completed" yaml:"completed"`
	Failed     int `json:"failed" yaml:"failed"`
	InProgress int `json:"in_progress" yaml:"in_progress"`
	Total      int `json:"total" yaml:"total"`
}

// BatchStatus is the index service's terminal report for one batch.
type BatchStatus struct {
	// Status is the service's terminal state; "completed" on full success.
	Status string `json:"status" yaml:"status"`

	// Counts holds the per-file outcome counts.
	Counts FileCounts `json:"counts" yaml:"counts"`
}
