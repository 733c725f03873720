package types

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "kb-sync/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// FetchConfig holds settings for the fetch stage.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`

	// SourceURL is the paginated articles endpoint of the source knowledge base.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// APIToken authenticates requests to the source, if it requires auth.
	// Empty for public knowledge bases.
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty"`

	// PageSize is the number of articles requested per page (default 10).
	PageSize int `json:"page_size" yaml:"page_size"`

	// MaxArticles caps the total number of fetched articles. Zero means
	// no cap: the full collection is mirrored.
	MaxArticles int `json:"max_articles" yaml:"max_articles"`

	// PauseEvery is the number of retrieved documents per throttle window
	// (default 20). Zero disables the throttle.
	PauseEvery int `json:"pause_every" yaml:"pause_every"`

	// Pause is the cooperative pause accumulated per throttle window
	// (default 1s). Zero disables the throttle.
	Pause time.Duration `json:"pause" yaml:"pause"`

	// MaxRetries is the per-page retry budget for transient failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// Validate reports the first configuration problem, if any.
func (c FetchConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SourceURL, validation.Required),
		validation.Field(&c.PageSize, validation.Min(1)),
		validation.Field(&c.MaxArticles, validation.Min(0)),
		validation.Field(&c.PauseEvery, validation.Min(0)),
		validation.Field(&c.MaxRetries, validation.Min(0)),
	)
}

// StoreConfig holds settings for the local article store.
type StoreConfig struct {
	// ContentDir is the content root: one subdirectory per article id plus
	// the ledger file at its top level.
	ContentDir string `json:"content_dir" yaml:"content_dir"`
}

// Validate reports the first configuration problem, if any.
func (c StoreConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ContentDir, validation.Required),
	)
}

// UploadConfig holds settings for the upload stage.
type UploadConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the index service API root.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey authenticates requests to the index service.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// StoreName is the logical name of the vector store to sync into. The
	// store is looked up by name and created on first use.
	StoreName string `json:"store_name" yaml:"store_name"`

	// BatchSize is the number of files submitted per bulk upload (default 10).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxChunkSizeTokens is the chunk window passed to the service (default 600).
	MaxChunkSizeTokens int `json:"max_chunk_size_tokens" yaml:"max_chunk_size_tokens"`

	// ChunkOverlapTokens is the chunk overlap passed to the service
	// (default 200). Must stay below MaxChunkSizeTokens.
	ChunkOverlapTokens int `json:"chunk_overlap_tokens" yaml:"chunk_overlap_tokens"`

	// PollInterval is the delay between batch status polls (default 2s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// PollTimeout bounds how long one batch may stay in progress (default 5m).
	PollTimeout time.Duration `json:"poll_timeout" yaml:"poll_timeout"`
}

// Validate reports the first configuration problem, if any.
func (c UploadConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.StoreName, validation.Required),
		validation.Field(&c.BatchSize, validation.Min(1)),
		validation.Field(&c.MaxChunkSizeTokens, validation.Min(1)),
		validation.Field(&c.ChunkOverlapTokens, validation.Min(0), validation.By(func(any) error {
			if c.ChunkOverlapTokens >= c.MaxChunkSizeTokens {
				return errors.New("must be less than max_chunk_size_tokens")
			}
			return nil
		})),
	)
}

// CatalogConfig holds settings for the local search catalog.
type CatalogConfig struct {
	// CatalogDir is the base directory for the catalog database.
	CatalogDir string `json:"catalog_dir" yaml:"catalog_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// Validate reports the first configuration problem, if any.
func (c CatalogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.CatalogDir, validation.Required),
		validation.Field(&c.MaxResults, validation.Min(1)),
	)
}
