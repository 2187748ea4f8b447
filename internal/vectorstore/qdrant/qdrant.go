// Package qdrant is a minimal REST client to one Qdrant collection.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bandham-manikanta/qa-system/internal/domain"
	"github.com/bandham-manikanta/qa-system/internal/vectorstore"
)

// Config configures the Qdrant backend.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Backend implements vectorstore.Backend against Qdrant's REST API with
// cosine distance.
type Backend struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

var _ vectorstore.Backend = (*Backend)(nil)

// NewBackend creates a Qdrant backend for a single collection.
func NewBackend(cfg Config) *Backend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Backend{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Info reads the collection's declared vector size and point count.
// A 404 means the collection is absent.
func (b *Backend) Info(ctx context.Context) (vectorstore.CollectionInfo, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := b.do(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", b.url, b.collection), nil, &resp)
	if err != nil {
		return vectorstore.CollectionInfo{}, err
	}
	if status == http.StatusNotFound {
		return vectorstore.CollectionInfo{}, nil
	}
	if status >= 300 {
		return vectorstore.CollectionInfo{}, fmt.Errorf("qdrant collection info failed with status %d", status)
	}
	return vectorstore.CollectionInfo{
		Exists:    true,
		Dimension: resp.Result.Config.Params.Vectors.Size,
		Points:    resp.Result.PointsCount,
	}, nil
}

// Create makes the collection with the given dimension and cosine distance.
func (b *Backend) Create(ctx context.Context, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, err := b.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", b.url, b.collection), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("qdrant create collection failed with status %d", status)
	}
	return nil
}

// Drop deletes the collection. A 404 is treated as already gone.
func (b *Backend) Drop(ctx context.Context) error {
	status, err := b.do(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", b.url, b.collection), nil, nil)
	if err != nil {
		return err
	}
	if status >= 300 && status != http.StatusNotFound {
		return fmt.Errorf("qdrant delete collection failed with status %d", status)
	}
	return nil
}

// Count returns the exact point count.
func (b *Backend) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := b.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/count", b.url, b.collection),
		map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, fmt.Errorf("qdrant count failed with status %d", status)
	}
	return resp.Result.Count, nil
}

// Upsert writes one batch of points with full message payloads, waiting for
// the write to be applied.
func (b *Backend) Upsert(ctx context.Context, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	payload := make([]map[string]any, len(points))
	for i, p := range points {
		payload[i] = map[string]any{
			"id":     p.ID,
			"vector": p.Vector,
			"payload": map[string]any{
				"id":        p.Payload.ID,
				"user_id":   p.Payload.UserID,
				"user_name": p.Payload.UserName,
				"timestamp": p.Payload.Timestamp,
				"message":   p.Payload.Message,
			},
		}
	}
	status, err := b.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", b.url, b.collection),
		map[string]any{"points": payload}, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("qdrant upsert failed with status %d", status)
	}
	return nil
}

// Search returns the top matches by cosine similarity with payloads.
func (b *Backend) Search(ctx context.Context, vector []float64, limit int) ([]domain.ScoredPoint, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      uint64          `json:"id"`
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	status, err := b.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", b.url, b.collection), body, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("qdrant search failed with status %d", status)
	}
	hits := make([]domain.ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		var msg domain.Message
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &msg); err != nil {
				return nil, fmt.Errorf("decode payload for point %d: %w", r.ID, err)
			}
		}
		hits = append(hits, domain.ScoredPoint{ID: r.ID, Score: r.Score, Payload: msg})
	}
	return hits, nil
}

// do sends one JSON request and decodes the response into out when non-nil.
// It returns the status code; callers decide which statuses are errors.
func (b *Backend) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode, nil
}
