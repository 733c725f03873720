// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch pages through the source knowledge base and returns its
// articles as an in-memory ordered sequence.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/pdiddy/kb-sync/internal/httputil"
	"github.com/pdiddy/kb-sync/pkg/types"
)

// Client fetches the paginated article collection from the source API.
type Client struct {
	http    *http.Client
	cfg     types.FetchConfig
	limiter *rate.Limiter
}

// NewClient builds a fetch client. When both PauseEvery and Pause are set,
// retrieval is throttled by a token bucket holding one token per document:
// the bucket bursts PauseEvery documents and refills that many over one
// Pause interval, so sustained throughput matches a pause after every
// PauseEvery documents.
func NewClient(client *http.Client, cfg types.FetchConfig) *Client {
	c := &Client{http: client, cfg: cfg}
	if cfg.PauseEvery > 0 && cfg.Pause > 0 {
		refill := rate.Limit(float64(cfg.PauseEvery) / cfg.Pause.Seconds())
		c.limiter = rate.NewLimiter(refill, cfg.PauseEvery)
	}
	return c
}

// articlesPage mirrors one page of the source API response.
type articlesPage struct {
	Articles []sourceArticle `json:"articles"`
	NextPage string          `json:"next_page"`
}

// sourceArticle mirrors the per-article fields we consume.
type sourceArticle struct {
	ID        flexID `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	HTMLURL   string `json:"html_url"`
	UpdatedAt string `json:"updated_at"`
}

func (a sourceArticle) toArticle() types.Article {
	return types.Article{
		ID:        string(a.ID),
		Title:     a.Title,
		Body:      a.Body,
		SourceURL: a.HTMLURL,
		UpdatedAt: a.UpdatedAt,
	}
}

// flexID decodes a JSON number or string id into its string form. The
// source serves numeric ids; the pipeline treats them as opaque strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("article id must be a string or number, got %s", data)
	}
	*f = flexID(s)
	return nil
}

// FetchAll follows the next-page cursor until the collection is exhausted
// and returns every article in source order. There is no upper bound
// unless MaxArticles is set. A page failure (after retries) is reported on
// w and ends pagination early: the accumulated prefix is returned with a
// nil error, so callers always get whatever was retrieved. Only context
// cancellation returns an error, alongside the partial result.
func (c *Client) FetchAll(ctx context.Context, w io.Writer) ([]types.Article, error) {
	pageURL, err := firstPageURL(c.cfg.SourceURL, c.cfg.PageSize)
	if err != nil {
		return nil, err
	}

	var articles []types.Article
	for pageURL != "" {
		page, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return articles, ctx.Err()
			}
			fmt.Fprintf(w, "warning: page fetch failed, stopping with %d article(s): %v\n", len(articles), err)
			return articles, nil
		}

		for _, a := range page.Articles {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return articles, err
				}
			}
			articles = append(articles, a.toArticle())
			if c.cfg.MaxArticles > 0 && len(articles) >= c.cfg.MaxArticles {
				return articles, nil
			}
		}

		pageURL = page.NextPage
	}
	return articles, nil
}

// fetchPage retrieves and decodes one page.
func (c *Client) fetchPage(ctx context.Context, pageURL string) (articlesPage, error) {
	var page articlesPage

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return page, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		return page, fmt.Errorf("requesting page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return page, fmt.Errorf("source returned HTTP %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return page, fmt.Errorf("parsing page: %w", err)
	}
	return page, nil
}

// firstPageURL appends the page size parameter to the configured endpoint,
// preserving any query parameters already present.
func firstPageURL(sourceURL string, pageSize int) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("parsing source URL: %w", err)
	}
	q := u.Query()
	q.Set("per_page", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
