package walrus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.BlobStore = (*Client)(nil)

const (
	defaultEpochs  = 5
	defaultTimeout = 60 * time.Second
)

// Client implements BlobStore against a Walrus publisher/aggregator
// pair. Writes go through the publisher, reads through the aggregator.
// Blob IDs are content-derived on the Walrus side, so uploading the
// same bytes twice returns the same ID.
type Client struct {
	publisherURL  string
	aggregatorURL string
	epochs        int
	httpClient    *http.Client
	logger        *slog.Logger
}

// ClientConfig holds Walrus endpoint configuration.
type ClientConfig struct {
	// PublisherURL is the base URL of the Walrus publisher.
	PublisherURL string
	// AggregatorURL is the base URL of the Walrus aggregator.
	AggregatorURL string
	// Epochs is how many storage epochs a blob is paid for.
	Epochs int
	// Timeout bounds each HTTP call.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewClient creates a new Walrus client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.PublisherURL == "" {
		return nil, fmt.Errorf("publisher URL is required")
	}
	if cfg.AggregatorURL == "" {
		return nil, fmt.Errorf("aggregator URL is required")
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = defaultEpochs
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		publisherURL:  cfg.PublisherURL,
		aggregatorURL: cfg.AggregatorURL,
		epochs:        cfg.Epochs,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		logger:        logger,
	}, nil
}

// storeResponse covers both publisher response shapes: a fresh upload
// and a blob that was already certified.
type storeResponse struct {
	NewlyCreated *struct {
		BlobObject blobObject `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobObject *blobObject `json:"blobObject"`
		BlobID     string      `json:"blobId"`
	} `json:"alreadyCertified"`
}

type blobObject struct {
	BlobID         string `json:"blobId"`
	CertifiedEpoch int    `json:"certifiedEpoch"`
}

// Put uploads content through the publisher and returns the blob ID.
func (c *Client) Put(ctx context.Context, content []byte) (string, error) {
	url := fmt.Sprintf("%s/v1/store?epochs=%d", c.publisherURL, c.epochs)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("%w: build store request: %v", domain.ErrStorage, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: store request: %v", domain.ErrStorage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: publisher returned %d: %s", domain.ErrStorage, resp.StatusCode, body)
	}

	var result storeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode store response: %v", domain.ErrStorage, err)
	}

	switch {
	case result.NewlyCreated != nil && result.NewlyCreated.BlobObject.BlobID != "":
		c.logger.Debug("blob stored", "blob_id", result.NewlyCreated.BlobObject.BlobID, "status", "newlyCreated")
		return result.NewlyCreated.BlobObject.BlobID, nil
	case result.AlreadyCertified != nil:
		blobID := result.AlreadyCertified.BlobID
		if blobID == "" && result.AlreadyCertified.BlobObject != nil {
			blobID = result.AlreadyCertified.BlobObject.BlobID
		}
		if blobID != "" {
			c.logger.Debug("blob stored", "blob_id", blobID, "status", "alreadyCertified")
			return blobID, nil
		}
	}
	return "", fmt.Errorf("%w: unexpected publisher response shape", domain.ErrStorage)
}

// Get downloads a blob through the aggregator.
func (c *Client) Get(ctx context.Context, blobID string) ([]byte, error) {
	url := fmt.Sprintf("%s/v1/%s", c.aggregatorURL, blobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build read request: %v", domain.ErrStorage, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: read request: %v", domain.ErrStorage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: aggregator returned %d", domain.ErrStorage, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read blob body: %v", domain.ErrStorage, err)
	}
	return content, nil
}

// Exists checks blob presence with a HEAD request.
func (c *Client) Exists(ctx context.Context, blobID string) (bool, error) {
	url := fmt.Sprintf("%s/v1/%s", c.aggregatorURL, blobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: build head request: %v", domain.ErrStorage, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: head request: %v", domain.ErrStorage, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}
