// Package embedding converts text to fixed-dimension vectors through an
// OpenAI-compatible embeddings endpoint with asymmetric query/passage models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bandham-manikanta/qa-system/internal/domain"
	"github.com/bandham-manikanta/qa-system/internal/retry"
)

// Intent tags. The backing model embeds questions and documents
// asymmetrically; mixing tags silently degrades retrieval quality.
const (
	intentQuery   = "query"
	intentPassage = "passage"
)

var errRateLimited = errors.New("embedding service returned 429")

// Config configures the embedding client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	// Dimension is the model's declared output length. Responses of any
	// other length are rejected.
	Dimension int

	// MaxRetries bounds 429 retries per call (default 5).
	MaxRetries int

	// Concurrency is the default bulk worker count (default 3).
	Concurrency int

	// RequestDelay smooths the request rate inside one worker's sub-batch
	// (default 100ms).
	RequestDelay time.Duration

	// QueryRPS rate-limits the synchronous query path (default 2/s).
	QueryRPS float64

	// Timeout bounds a single embedding request (default 30s).
	Timeout time.Duration
}

// Client calls the embedding service. The query path is rate limited; the
// bulk path bounds concurrency instead.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	dimension    int
	maxRetries   int
	concurrency  int
	requestDelay time.Duration
	httpc        *http.Client
	limiter      *rate.Limiter
	sleep        retry.SleepFunc
	logger       *zap.Logger
}

// NewClient creates an embedding client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("embedding base URL is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("embedding dimension must be positive")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.RequestDelay == 0 {
		cfg.RequestDelay = 100 * time.Millisecond
	}
	if cfg.QueryRPS <= 0 {
		cfg.QueryRPS = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		dimension:    cfg.Dimension,
		maxRetries:   cfg.MaxRetries,
		concurrency:  cfg.Concurrency,
		requestDelay: cfg.RequestDelay,
		httpc:        &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Limit(cfg.QueryRPS), 1),
		sleep:        retry.Sleep,
		logger:       logger,
	}, nil
}

// Dimension returns the model's declared vector length.
func (c *Client) Dimension() int { return c.dimension }

// EmbedQuery embeds a question on the request-serving path.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.embed(ctx, text, intentQuery)
}

// EmbedBatchConcurrent embeds texts under a bounded worker pool. Each worker
// owns a contiguous sub-batch and writes into its slice of the pre-sized
// result, so the output is index-aligned with the input regardless of which
// worker finishes first. Any single failure aborts the whole call; a short
// result would desynchronize point identifiers from corpus positions.
func (c *Client) EmbedBatchConcurrent(ctx context.Context, texts []string, concurrency int) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = c.concurrency
	}
	if concurrency > len(texts) {
		concurrency = len(texts)
	}

	out := make([][]float64, len(texts))
	subBatch := (len(texts) + concurrency - 1) / concurrency

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += subBatch {
		start := start
		end := min(start+subBatch, len(texts))
		g.Go(func() error {
			for i := start; i < end; i++ {
				vec, err := c.embed(ctx, texts[i], intentPassage)
				if err != nil {
					return fmt.Errorf("passage %d: %w", i, err)
				}
				out[i] = vec
				if i+1 < end {
					if err := c.sleep(ctx, c.requestDelay); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embed performs one embedding call with the retry policy: 429 backs off
// exponentially from 1s up to maxRetries times, any other transient failure
// gets a single immediate retry.
func (c *Client) embed(ctx context.Context, text, intent string) ([]float64, error) {
	transientRetried := false
	rateBackoff := retry.Exponential(time.Second, 0)
	policy := retry.Policy{
		MaxAttempts: c.maxRetries + 1,
		Backoff: func(attempt int, err error) time.Duration {
			if errors.Is(err, errRateLimited) {
				return rateBackoff(attempt, err)
			}
			return 0
		},
		Retryable: func(err error) bool {
			if errors.Is(err, errRateLimited) {
				return true
			}
			if transientRetried {
				return false
			}
			transientRetried = true
			return true
		},
		Sleep: c.sleep,
	}

	var vec []float64
	err := policy.Do(ctx, func(ctx context.Context) error {
		var e error
		vec, e = c.doEmbed(ctx, text, intent)
		return e
	})
	if err != nil {
		if errors.Is(err, errRateLimited) {
			return nil, fmt.Errorf("%w: %v", domain.ErrRateLimitExceeded, err)
		}
		return nil, err
	}
	return vec, nil
}

type embedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
	InputType      string   `json:"input_type"`
	Truncate       string   `json:"truncate"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) doEmbed(ctx context.Context, text, intent string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{
		Input:          []string{text},
		Model:          c.model,
		EncodingFormat: "float",
		InputType:      intent,
		Truncate:       "END",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return nil, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding request failed with status %d: %s", resp.StatusCode, payload)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	vec := out.Data[0].Embedding
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("model returned %d-dim vector, want %d", len(vec), c.dimension)
	}
	return vec, nil
}
