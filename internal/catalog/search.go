// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"context"
	"fmt"
	"strings"
)

// QueryOptions holds parameters for catalog queries.
type QueryOptions struct {
	// Query is the FTS5 full-text search string. Empty lists the most
	// recently modified articles instead.
	Query string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// SearchResult is one catalog hit.
type SearchResult struct {
	ID           string
	Title        string
	SourceURL    string
	LastModified string
	// Snippet is a highlighted body excerpt for full-text hits, empty
	// for listings.
	Snippet string
}

// Search queries the catalog. Full-text queries rank by relevance and
// return a highlighted snippet; an empty query lists articles by most
// recent modification.
func (s *Store) Search(ctx context.Context, opts QueryOptions) ([]SearchResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)

	if opts.Query != "" {
		qb.WriteString(
			`SELECT a.id, a.title, a.source_url, a.last_modified,
				snippet(articles_fts, 1, '[', ']', '...', 12)
			FROM articles_fts
			JOIN articles a ON a.rowid = articles_fts.rowid
			WHERE articles_fts MATCH ?
			ORDER BY articles_fts.rank`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT a.id, a.title, a.source_url, a.last_modified, ''
			FROM articles a
			ORDER BY a.last_modified DESC, a.id`)
	}

	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.SourceURL, &r.LastModified, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Count returns the number of indexed articles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM articles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting articles: %w", err)
	}
	return n, nil
}
