// Package retrieval fetches lesson material from a hosted Chroma collection.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrRetrievalUnavailable wraps every transport, embedding or upstream
// failure. Callers degrade to an empty lesson context.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("retrieval: k must be positive")

// Embedder turns a query into a vector in the collection's embedding space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures the Chroma client.
type Config struct {
	BaseURL      string
	Token        string
	CollectionID string
	Timeout      time.Duration
}

// Client queries a Chroma collection over its REST API.
type Client struct {
	cfg      Config
	http     *http.Client
	embedder Embedder
	logger   *zap.Logger
}

// NewClient creates a Chroma client. A nil logger disables logging.
func NewClient(cfg Config, embedder Embedder, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("chroma base URL is required")
	}
	if cfg.CollectionID == "" {
		return nil, fmt.Errorf("chroma collection id is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		embedder: embedder,
		logger:   logger,
	}, nil
}

type queryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include"`
}

type queryResponse struct {
	Documents [][]*string `json:"documents"`
}

// Retrieve returns up to k documents most similar to query, most relevant
// first. An empty result is not an error.
func (c *Client) Retrieve(ctx context.Context, query string, filter map[string]any, k int) ([]string, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	start := time.Now()
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrRetrievalUnavailable, err)
	}

	body, err := json.Marshal(queryRequest{
		QueryEmbeddings: [][]float32{vec},
		NResults:        k,
		Where:           filter,
		Include:         []string{"documents"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/query", c.cfg.BaseURL, c.cfg.CollectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("X-Chroma-Token", c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: chroma returned %d: %s", ErrRetrievalUnavailable, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrRetrievalUnavailable, err)
	}

	var docs []string
	if len(out.Documents) > 0 {
		for _, d := range out.Documents[0] {
			if d != nil {
				docs = append(docs, *d)
			}
		}
	}

	c.logger.Debug("retrieved lesson documents",
		zap.Int("k", k),
		zap.Int("count", len(docs)),
		zap.Duration("latency", time.Since(start)),
	)
	return docs, nil
}
