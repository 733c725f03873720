// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mirror maintains the local Markdown copy of the knowledge base
// and the fingerprint ledger that tracks content changes across runs.
package mirror

import (
	"fmt"
	"io"

	"github.com/pdiddy/kb-sync/internal/convert"
	"github.com/pdiddy/kb-sync/pkg/types"
)

// Result holds the outcome of one mirror run.
type Result struct {
	New     int
	Updated int
	Skipped int
	Failed  int
	// Delta lists the new and updated articles in fetch order. It is the
	// contract between the write path and the upload path.
	Delta []types.Change
}

// Total returns the total number of articles processed.
func (r Result) Total() int {
	return r.New + r.Updated + r.Skipped + r.Failed
}

// HasFailures reports whether any article failed to persist.
func (r Result) HasFailures() bool {
	return r.Failed > 0
}

// Run classifies each fetched article against the ledger, normalizes and
// persists the new and updated ones, and prints per-article status to w.
// Classification reads a snapshot of the ledger taken at entry; the live
// ledger gains an entry only after both files for an article are written.
// The caller persists the ledger once after the run.
func Run(articles []types.Article, ledger types.Ledger, store *Store, r convert.Renderer, w io.Writer) Result {
	snapshot := make(types.Ledger, len(ledger))
	for id, e := range ledger {
		snapshot[id] = e
	}

	var result Result
	for _, a := range articles {
		if a.ID == "" {
			fmt.Fprintf(w, "skipped: %q (no id)\n", a.Title)
			result.Skipped++
			continue
		}

		status, hash := Classify(a, snapshot)
		if status == types.ChangeUnchanged {
			fmt.Fprintf(w, "skipped: %s (unchanged)\n", a.ID)
			result.Skipped++
			continue
		}

		markdown := convert.Normalize(r, a)
		entry, err := store.SaveArticle(a, markdown, hash)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", a.ID, err)
			result.Failed++
			continue
		}
		ledger[a.ID] = entry

		switch status {
		case types.ChangeNew:
			fmt.Fprintf(w, "new: %s (%s)\n", a.ID, entry.Slug)
			result.New++
		case types.ChangeUpdated:
			fmt.Fprintf(w, "updated: %s (%s)\n", a.ID, entry.Slug)
			result.Updated++
		}
		result.Delta = append(result.Delta, types.Change{ID: a.ID, Status: status})
	}

	fmt.Fprintf(w, "\nMirror summary: %d new, %d updated, %d skipped, %d failed (total: %d)\n",
		result.New, result.Updated, result.Skipped, result.Failed, result.Total())
	return result
}
