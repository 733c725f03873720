// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdiddy/kb-sync/internal/mirror"
	"github.com/pdiddy/kb-sync/pkg/types"
)

// fakeService implements Service for testing. It records batch calls and
// reports three embedded chunks per file unless told to fail.
type fakeService struct {
	storeID   string
	created   bool
	ensureErr error
	failCall  int // 1-based batch call to fail, 0 = never
	status    string
	calls     [][]string
}

func (f *fakeService) EnsureStore(ctx context.Context) (string, bool, error) {
	if f.ensureErr != nil {
		return "", false, f.ensureErr
	}
	return f.storeID, f.created, nil
}

func (f *fakeService) UploadBatch(ctx context.Context, storeID string, paths []string) (types.BatchStatus, error) {
	f.calls = append(f.calls, append([]string(nil), paths...))
	if f.failCall == len(f.calls) {
		return types.BatchStatus{}, errors.New("bulk call exploded")
	}
	status := f.status
	if status == "" {
		status = "completed"
	}
	return types.BatchStatus{
		Status: status,
		Counts: types.FileCounts{Completed: len(paths) * 3, Total: len(paths)},
	}, nil
}

// seedStore persists n articles and returns the store, ledger, and delta
// in insertion order.
func seedStore(t *testing.T, n int) (*mirror.Store, types.Ledger, []types.Change) {
	t.Helper()
	store, err := mirror.NewStore(filepath.Join(t.TempDir(), "articles"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	ledger := types.Ledger{}
	var delta []types.Change
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("%d", 100+i)
		a := types.Article{
			ID:        id,
			Title:     fmt.Sprintf("Guide %d", i),
			Body:      fmt.Sprintf("<p>body %d</p>", i),
			UpdatedAt: "2026-01-01T00:00:00Z",
		}
		entry, err := store.SaveArticle(a, "# Guide\n\ncontent\n", mirror.Fingerprint(a.Body))
		if err != nil {
			t.Fatalf("SaveArticle: %v", err)
		}
		ledger[id] = entry
		delta = append(delta, types.Change{ID: id, Status: types.ChangeNew})
	}
	return store, ledger, delta
}

func TestRunUploadsInOrderedBatches(t *testing.T) {
	store, ledger, delta := seedStore(t, 12)
	svc := &fakeService{storeID: "vs_123"}
	var out bytes.Buffer

	result, err := Run(context.Background(), svc, store, ledger, delta, 10, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(svc.calls) != 2 {
		t.Fatalf("batch calls = %d, want 2", len(svc.calls))
	}
	if len(svc.calls[0]) != 10 || len(svc.calls[1]) != 2 {
		t.Errorf("batch sizes = %d, %d; want 10, 2", len(svc.calls[0]), len(svc.calls[1]))
	}

	// Concatenated batches reproduce the delta order.
	var all []string
	for _, call := range svc.calls {
		all = append(all, call...)
	}
	for i, ch := range delta {
		want := store.ArticlePath(ch.ID, ledger[ch.ID])
		if all[i] != want {
			t.Errorf("path[%d] = %q, want %q", i, all[i], want)
		}
	}

	if result.StoreID != "vs_123" {
		t.Errorf("StoreID = %q", result.StoreID)
	}
	if result.FilesUploaded != 12 {
		t.Errorf("FilesUploaded = %d, want 12", result.FilesUploaded)
	}
	if result.ChunksEmbedded != 36 {
		t.Errorf("ChunksEmbedded = %d, want 36", result.ChunksEmbedded)
	}
	if result.SuccessfulBatches != 2 || result.FailedBatches != 0 {
		t.Errorf("batches = %d successful, %d failed", result.SuccessfulBatches, result.FailedBatches)
	}
	if result.HasFailures() {
		t.Error("HasFailures should be false")
	}
	if !strings.Contains(out.String(), "Upload summary: 12 file(s), 36 chunk(s), 2 successful batch(es), 0 failed batch(es)") {
		t.Errorf("summary missing:\n%s", out.String())
	}
}

func TestRunStoreResolutionFatal(t *testing.T) {
	store, ledger, delta := seedStore(t, 3)
	svc := &fakeService{ensureErr: errors.New("auth rejected")}

	_, err := Run(context.Background(), svc, store, ledger, delta, 10, io.Discard)
	if err == nil {
		t.Fatal("expected an error when store resolution fails")
	}
	if len(svc.calls) != 0 {
		t.Errorf("no batch should be submitted, got %d calls", len(svc.calls))
	}
}

func TestRunEmptyDelta(t *testing.T) {
	store, ledger, _ := seedStore(t, 3)
	svc := &fakeService{storeID: "vs_123"}
	var out bytes.Buffer

	result, err := Run(context.Background(), svc, store, ledger, nil, 10, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(svc.calls) != 0 {
		t.Errorf("no batch should be submitted, got %d calls", len(svc.calls))
	}
	if result.FilesUploaded != 0 || result.HasFailures() {
		t.Errorf("result = %+v", result)
	}
	if !strings.Contains(out.String(), "nothing to upload") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunMissingFileFailsClosed(t *testing.T) {
	store, ledger, delta := seedStore(t, 5)

	// Remove one article file out of five.
	victim := delta[2].ID
	if err := os.Remove(store.ArticlePath(victim, ledger[victim])); err != nil {
		t.Fatal(err)
	}

	svc := &fakeService{storeID: "vs_123"}
	var out bytes.Buffer

	_, err := Run(context.Background(), svc, store, ledger, delta, 10, &out)
	if !errors.Is(err, ErrInconsistentStore) {
		t.Fatalf("err = %v, want ErrInconsistentStore", err)
	}
	if len(svc.calls) != 0 {
		t.Errorf("zero batches should be submitted, got %d", len(svc.calls))
	}
	if !strings.Contains(out.String(), "missing:") {
		t.Errorf("missing file not reported:\n%s", out.String())
	}
}

func TestRunBatchFailureIsolated(t *testing.T) {
	store, ledger, delta := seedStore(t, 3)
	svc := &fakeService{storeID: "vs_123", failCall: 2}
	var out bytes.Buffer

	result, err := Run(context.Background(), svc, store, ledger, delta, 1, &out)
	if err != nil {
		t.Fatalf("Run should not error on a batch failure: %v", err)
	}

	if len(svc.calls) != 3 {
		t.Fatalf("all 3 batches should be attempted, got %d", len(svc.calls))
	}
	if result.SuccessfulBatches != 2 || result.FailedBatches != 1 {
		t.Errorf("batches = %d successful, %d failed; want 2, 1", result.SuccessfulBatches, result.FailedBatches)
	}
	if result.FilesUploaded != 2 {
		t.Errorf("FilesUploaded = %d, want 2", result.FilesUploaded)
	}
	if !result.HasFailures() {
		t.Error("HasFailures should be true")
	}
	if !strings.Contains(out.String(), "skipped files:") {
		t.Errorf("failed batch should list its files:\n%s", out.String())
	}
}

func TestRunNonCompletedStatusCountsAsFailed(t *testing.T) {
	store, ledger, delta := seedStore(t, 2)
	svc := &fakeService{storeID: "vs_123", status: "cancelled"}
	var out bytes.Buffer

	result, err := Run(context.Background(), svc, store, ledger, delta, 10, &out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FailedBatches != 1 || result.SuccessfulBatches != 0 {
		t.Errorf("batches = %d successful, %d failed", result.SuccessfulBatches, result.FailedBatches)
	}
	if !strings.Contains(out.String(), "warning:") {
		t.Errorf("non-completed status should warn:\n%s", out.String())
	}
}

func TestPartition(t *testing.T) {
	paths := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("p%d", i)
		}
		return out
	}

	tests := []struct {
		n, size   int
		wantSizes []int
	}{
		{0, 10, nil},
		{1, 10, []int{1}},
		{10, 10, []int{10}},
		{12, 10, []int{10, 2}},
		{30, 10, []int{10, 10, 10}},
		{5, 2, []int{2, 2, 1}},
	}

	for _, tt := range tests {
		in := paths(tt.n)
		batches := partition(in, tt.size)
		if len(batches) != len(tt.wantSizes) {
			t.Errorf("partition(%d, %d) produced %d batches, want %d", tt.n, tt.size, len(batches), len(tt.wantSizes))
			continue
		}
		var flat []string
		for i, b := range batches {
			if len(b) != tt.wantSizes[i] {
				t.Errorf("partition(%d, %d) batch %d has %d paths, want %d", tt.n, tt.size, i, len(b), tt.wantSizes[i])
			}
			flat = append(flat, b...)
		}
		for i := range in {
			if flat[i] != in[i] {
				t.Errorf("partition(%d, %d) reordered paths", tt.n, tt.size)
				break
			}
		}
	}
}
