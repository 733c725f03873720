// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package upload pushes changed articles to the semantic index service in
// bounded batches, tolerating individual batch failures.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdiddy/kb-sync/internal/mirror"
	"github.com/pdiddy/kb-sync/pkg/types"
)

// DefaultBatchSize bounds how many files go into one bulk submission.
const DefaultBatchSize = 10

// batchCompleted is the service status for a fully processed batch.
const batchCompleted = "completed"

// ErrInconsistentStore reports ledger entries whose local files are gone.
// Uploading around the gap would leave the index partially stale, so the
// whole upload stage fails closed instead.
var ErrInconsistentStore = errors.New("local store inconsistent with ledger")

// Service is the narrow contract the orchestrator needs from the index
// backend. *vecstore.Client is the production implementation.
type Service interface {
	EnsureStore(ctx context.Context) (id string, created bool, err error)
	UploadBatch(ctx context.Context, storeID string, paths []string) (types.BatchStatus, error)
}

// BatchResult records the outcome of one submitted batch.
type BatchResult struct {
	Index         int
	FileCount     int
	EmbeddedCount int
	FailedCount   int
	Status        string
}

// Result aggregates one upload run.
type Result struct {
	StoreID           string
	FilesUploaded     int
	ChunksEmbedded    int
	SuccessfulBatches int
	FailedBatches     int
	Batches           []BatchResult
}

// HasFailures reports whether any batch failed.
func (r Result) HasFailures() bool {
	return r.FailedBatches > 0
}

// Run resolves the vector store, validates that every changed article has
// its file on disk, and submits the files in order in fixed-size batches.
// Store resolution and path validation failures are terminal; a failed
// batch is logged and skipped while the remaining batches proceed.
func Run(ctx context.Context, svc Service, store *mirror.Store, ledger types.Ledger, delta []types.Change, batchSize int, w io.Writer) (Result, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	storeID, created, err := svc.EnsureStore(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolving vector store: %w", err)
	}
	if created {
		fmt.Fprintf(w, "index: %s (created)\n", storeID)
	} else {
		fmt.Fprintf(w, "index: %s\n", storeID)
	}
	result := Result{StoreID: storeID}

	paths, err := validatePaths(store, ledger, delta, w)
	if err != nil {
		return result, err
	}
	if len(paths) == 0 {
		fmt.Fprintln(w, "nothing to upload")
		return result, nil
	}

	batches := partition(paths, batchSize)
	fmt.Fprintf(w, "uploading %d file(s) in %d batch(es)\n", len(paths), len(batches))

	for i, batch := range batches {
		fmt.Fprintf(w, "batch %d/%d: %d file(s)\n", i+1, len(batches), len(batch))

		status, err := svc.UploadBatch(ctx, storeID, batch)
		if err != nil {
			fmt.Fprintf(w, "failed:  batch %d (%v)\n", i+1, err)
			fmt.Fprintf(w, "  skipped files: %s\n", strings.Join(batch, ", "))
			result.FailedBatches++
			result.Batches = append(result.Batches, BatchResult{
				Index:     i + 1,
				FileCount: len(batch),
				Status:    "failed",
			})
			continue
		}

		result.FilesUploaded += len(batch)
		result.ChunksEmbedded += status.Counts.Completed
		if status.Status == batchCompleted {
			result.SuccessfulBatches++
		} else {
			fmt.Fprintf(w, "warning: batch %d finished with status %q\n", i+1, status.Status)
			result.FailedBatches++
		}
		result.Batches = append(result.Batches, BatchResult{
			Index:         i + 1,
			FileCount:     len(batch),
			EmbeddedCount: status.Counts.Completed,
			FailedCount:   status.Counts.Failed,
			Status:        status.Status,
		})
	}

	fmt.Fprintf(w, "\nUpload summary: %d file(s), %d chunk(s), %d successful batch(es), %d failed batch(es)\n",
		result.FilesUploaded, result.ChunksEmbedded, result.SuccessfulBatches, result.FailedBatches)
	return result, nil
}

// validatePaths resolves each changed article to its Markdown file through
// the ledger slug and confirms the file exists. Any gap fails the whole
// upload stage before a single batch is submitted.
func validatePaths(store *mirror.Store, ledger types.Ledger, delta []types.Change, w io.Writer) ([]string, error) {
	var paths, missing []string
	for _, ch := range delta {
		entry, ok := ledger[ch.ID]
		if !ok {
			missing = append(missing, ch.ID+" (no ledger entry)")
			continue
		}
		path := store.ArticlePath(ch.ID, entry)
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
			continue
		}
		paths = append(paths, path)
	}

	if len(missing) > 0 {
		for _, m := range missing {
			fmt.Fprintf(w, "missing: %s\n", m)
		}
		return nil, fmt.Errorf("%w: %d file(s) missing", ErrInconsistentStore, len(missing))
	}
	return paths, nil
}

// partition splits paths into consecutive chunks of at most n entries,
// preserving order.
func partition(paths []string, n int) [][]string {
	var batches [][]string
	for n < len(paths) {
		batches = append(batches, paths[:n:n])
		paths = paths[n:]
	}
	if len(paths) > 0 {
		batches = append(batches, paths)
	}
	return batches
}
