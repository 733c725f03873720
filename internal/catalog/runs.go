// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"fmt"
)

// RunRecord summarizes one sync run for the journal.
type RunRecord struct {
	RunAt          string
	Fetched        int
	New            int
	Updated        int
	Skipped        int
	Failed         int
	UploadedFiles  int
	UploadedChunks int
	FailedBatches  int
}

// RecordRun appends a run to the journal.
func (s *Store) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_at, fetched, new_count, updated_count, skipped_count,
			failed_count, uploaded_files, uploaded_chunks, failed_batches)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunAt, r.Fetched, r.New, r.Updated, r.Skipped,
		r.Failed, r.UploadedFiles, r.UploadedChunks, r.FailedBatches,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Runs returns the most recent journal entries, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = s.maxResults
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_at, fetched, new_count, updated_count, skipped_count,
			failed_count, uploaded_files, uploaded_chunks, failed_batches
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunAt, &r.Fetched, &r.New, &r.Updated, &r.Skipped,
			&r.Failed, &r.UploadedFiles, &r.UploadedChunks, &r.FailedBatches); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
