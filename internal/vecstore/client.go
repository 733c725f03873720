// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vecstore is a thin client for the semantic index service. It
// covers the three calls the pipeline needs: look up or create a named
// vector store, upload files, and attach them as a processed batch.
package vecstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pdiddy/kb-sync/pkg/types"
)

// listPageLimit is the page size for vector store listing.
const listPageLimit = 100

// batchInProgress is the one non-terminal batch status; polling continues
// while the service reports it.
const batchInProgress = "in_progress"

// Client talks to an OpenAI-compatible vector store API.
type Client struct {
	http *http.Client
	cfg  types.UploadConfig
}

// NewClient returns a client for the service at cfg.BaseURL.
func NewClient(client *http.Client, cfg types.UploadConfig) *Client {
	return &Client{http: client, cfg: cfg}
}

// Wire format structs.

type storeObject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type storePage struct {
	Data    []storeObject `json:"data"`
	HasMore bool          `json:"has_more"`
	LastID  string        `json:"last_id"`
}

type createStoreRequest struct {
	Name string `json:"name"`
}

type fileObject struct {
	ID string `json:"id"`
}

type staticChunks struct {
	MaxChunkSizeTokens int `json:"max_chunk_size_tokens"`
	ChunkOverlapTokens int `json:"chunk_overlap_tokens"`
}

type chunkingStrategy struct {
	Type   string       `json:"type"`
	Static staticChunks `json:"static"`
}

type batchRequest struct {
	FileIDs          []string         `json:"file_ids"`
	ChunkingStrategy chunkingStrategy `json:"chunking_strategy"`
}

type batchObject struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	FileCounts types.FileCounts `json:"file_counts"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// EnsureStore returns the id of the vector store named cfg.StoreName,
// creating it when no store carries that name. The lookup runs before the
// create so repeated calls converge on one store.
func (c *Client) EnsureStore(ctx context.Context) (id string, created bool, err error) {
	after := ""
	for {
		page, err := c.listStores(ctx, after)
		if err != nil {
			return "", false, fmt.Errorf("listing vector stores: %w", err)
		}
		for _, s := range page.Data {
			if s.Name == c.cfg.StoreName {
				return s.ID, false, nil
			}
		}
		if !page.HasMore {
			break
		}
		after = page.LastID
	}

	store, err := c.createStore(ctx)
	if err != nil {
		return "", false, fmt.Errorf("creating vector store %q: %w", c.cfg.StoreName, err)
	}
	return store.ID, true, nil
}

// UploadBatch uploads the files and attaches them to the store as one
// batch, then waits until the service finishes processing it. The returned
// status carries the per-file outcome counts.
func (c *Client) UploadBatch(ctx context.Context, storeID string, paths []string) (types.BatchStatus, error) {
	fileIDs := make([]string, 0, len(paths))
	for _, path := range paths {
		id, err := c.uploadFile(ctx, path)
		if err != nil {
			return types.BatchStatus{}, fmt.Errorf("uploading %s: %w", path, err)
		}
		fileIDs = append(fileIDs, id)
	}

	batch, err := c.createBatch(ctx, storeID, fileIDs)
	if err != nil {
		return types.BatchStatus{}, fmt.Errorf("creating file batch: %w", err)
	}

	final, err := c.waitForBatch(ctx, storeID, batch.ID)
	if err != nil {
		return types.BatchStatus{}, err
	}
	return types.BatchStatus{Status: final.Status, Counts: final.FileCounts}, nil
}

func (c *Client) listStores(ctx context.Context, after string) (storePage, error) {
	endpoint := fmt.Sprintf("%s/vector_stores?limit=%d", c.cfg.BaseURL, listPageLimit)
	if after != "" {
		endpoint += "&after=" + url.QueryEscape(after)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return storePage{}, err
	}

	var page storePage
	if err := c.do(req, &page); err != nil {
		return storePage{}, err
	}
	return page, nil
}

func (c *Client) createStore(ctx context.Context) (storeObject, error) {
	body, err := json.Marshal(createStoreRequest{Name: c.cfg.StoreName})
	if err != nil {
		return storeObject{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/vector_stores", bytes.NewReader(body))
	if err != nil {
		return storeObject{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var store storeObject
	if err := c.do(req, &store); err != nil {
		return storeObject{}, err
	}
	return store, nil
}

// uploadFile sends one file to the service. The file handle lives only for
// the duration of this call, released on success and failure alike.
func (c *Client) uploadFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", "assistants"); err != nil {
		return "", err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/files", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var file fileObject
	if err := c.do(req, &file); err != nil {
		return "", err
	}
	return file.ID, nil
}

func (c *Client) createBatch(ctx context.Context, storeID string, fileIDs []string) (batchObject, error) {
	body, err := json.Marshal(batchRequest{
		FileIDs: fileIDs,
		ChunkingStrategy: chunkingStrategy{
			Type: "static",
			Static: staticChunks{
				MaxChunkSizeTokens: c.cfg.MaxChunkSizeTokens,
				ChunkOverlapTokens: c.cfg.ChunkOverlapTokens,
			},
		},
	})
	if err != nil {
		return batchObject{}, err
	}

	endpoint := fmt.Sprintf("%s/vector_stores/%s/file_batches", c.cfg.BaseURL, storeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return batchObject{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var batch batchObject
	if err := c.do(req, &batch); err != nil {
		return batchObject{}, err
	}
	return batch, nil
}

func (c *Client) getBatch(ctx context.Context, storeID, batchID string) (batchObject, error) {
	endpoint := fmt.Sprintf("%s/vector_stores/%s/file_batches/%s", c.cfg.BaseURL, storeID, batchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return batchObject{}, err
	}

	var batch batchObject
	if err := c.do(req, &batch); err != nil {
		return batchObject{}, err
	}
	return batch, nil
}

// waitForBatch polls until the batch leaves in_progress or cfg.PollTimeout
// elapses.
func (c *Client) waitForBatch(ctx context.Context, storeID, batchID string) (batchObject, error) {
	var deadline time.Time
	if c.cfg.PollTimeout > 0 {
		deadline = time.Now().Add(c.cfg.PollTimeout)
	}

	for {
		batch, err := c.getBatch(ctx, storeID, batchID)
		if err != nil {
			return batchObject{}, fmt.Errorf("polling batch %s: %w", batchID, err)
		}
		if batch.Status != batchInProgress {
			return batch, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return batchObject{}, fmt.Errorf("batch %s still in progress after %s", batchID, c.cfg.PollTimeout)
		}

		select {
		case <-ctx.Done():
			return batchObject{}, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// do sends the request with auth headers and decodes the JSON response
// into out. Non-2xx responses decode the service error envelope.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e apiError
	if json.Unmarshal(data, &e) == nil && e.Error.Message != "" {
		return fmt.Errorf("index service HTTP %d: %s", resp.StatusCode, e.Error.Message)
	}
	return fmt.Errorf("index service HTTP %d", resp.StatusCode)
}
