// Package source fetches the member-message corpus from the remote HTTP
// source and caches it for the process lifetime.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/bandham-manikanta/qa-system/internal/domain"
	"github.com/bandham-manikanta/qa-system/internal/retry"
)

// Per-page failure kinds. The retry policy backs off differently for each.
var (
	errUnauthorized   = errors.New("source returned 401")
	errQuotaExhausted = errors.New("source quota exhausted")
)

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("source returned status %d", e.status)
}

// Config configures the source client.
type Config struct {
	// BaseURL is the source root; messages are fetched from
	// {BaseURL}/messages/.
	BaseURL string

	// PageSize is the fixed page size (default 100).
	PageSize int

	// MaxRetries bounds per-page attempts (default 3).
	MaxRetries int

	// PageDelay throttles consecutive page requests (default 200ms).
	PageDelay time.Duration

	// Timeout bounds a single page request (default 60s).
	Timeout time.Duration

	// AllowEmptyCorpus selects the "return empty" branch when the very
	// first page keeps failing with a transient status. The default is to
	// raise, so a broken source does not silently degrade into
	// "no information" answers downstream.
	AllowEmptyCorpus bool
}

// Client is the paginated, retrying fetcher for the message corpus.
type Client struct {
	baseURL    string
	pageSize   int
	maxRetries int
	pageDelay  time.Duration
	allowEmpty bool
	httpc      *http.Client
	sleep      retry.SleepFunc
	logger     *zap.Logger
}

// NewClient creates a source client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.PageDelay == 0 {
		cfg.PageDelay = 200 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		pageSize:   cfg.PageSize,
		maxRetries: cfg.MaxRetries,
		pageDelay:  cfg.PageDelay,
		allowEmpty: cfg.AllowEmptyCorpus,
		httpc:      &http.Client{Timeout: cfg.Timeout},
		sleep:      retry.Sleep,
		logger:     logger,
	}
}

type page struct {
	Items []domain.Message `json:"items"`
	Total int              `json:"total"`
}

// FetchAll pages through the full corpus. Once any messages have been
// accumulated, later failures degrade to a partial result rather than an
// error; partiality is visible only as a count below the server-reported
// total, which is logged but not fatal.
func (c *Client) FetchAll(ctx context.Context) ([]domain.Message, error) {
	var all []domain.Message
	seen := make(map[string]struct{})
	skip := 0
	total := -1

	for {
		pg, err := c.fetchPage(ctx, skip)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if len(all) > 0 {
				c.logger.Warn("returning partial corpus",
					zap.Int("fetched", len(all)),
					zap.Int("total", total),
					zap.Error(err))
				return all, nil
			}
			if c.allowEmpty && !errors.Is(err, errQuotaExhausted) {
				c.logger.Warn("source unreachable, configured to return empty corpus", zap.Error(err))
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}

		total = pg.Total
		for _, m := range pg.Items {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			all = append(all, m)
		}

		if len(pg.Items) == 0 || (total >= 0 && len(all) >= total) {
			break
		}
		skip += c.pageSize

		if err := c.sleep(ctx, c.pageDelay); err != nil {
			return nil, err
		}
	}

	if total >= 0 && len(all) < total {
		c.logger.Warn("fetched fewer messages than source reported",
			zap.Int("fetched", len(all)),
			zap.Int("total", total))
	} else {
		c.logger.Info("fetched full corpus", zap.Int("messages", len(all)))
	}
	return all, nil
}

// fetchPage retries a single page per the status-aware policy: 401 backs off
// exponentially (2^attempt seconds) without advancing, 402 aborts retries,
// anything else transient backs off linearly.
func (c *Client) fetchPage(ctx context.Context, skip int) (page, error) {
	authBackoff := retry.Exponential(2*time.Second, 0)
	transientBackoff := retry.Linear(time.Second)
	policy := retry.Policy{
		MaxAttempts: c.maxRetries,
		Backoff: func(attempt int, err error) time.Duration {
			if errors.Is(err, errUnauthorized) {
				return authBackoff(attempt, err)
			}
			return transientBackoff(attempt, err)
		},
		Retryable: func(err error) bool {
			return !errors.Is(err, errQuotaExhausted)
		},
		Sleep: c.sleep,
	}

	var pg page
	err := policy.Do(ctx, func(ctx context.Context) error {
		var e error
		pg, e = c.getPage(ctx, skip)
		return e
	})
	return pg, err
}

func (c *Client) getPage(ctx context.Context, skip int) (page, error) {
	u := fmt.Sprintf("%s/messages/?%s", c.baseURL, url.Values{
		"skip":  {strconv.Itoa(skip)},
		"limit": {strconv.Itoa(c.pageSize)},
	}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return page{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Timeouts and connection errors are transient.
		return page{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return page{}, errUnauthorized
	case resp.StatusCode == http.StatusPaymentRequired:
		return page{}, errQuotaExhausted
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return page{}, &statusError{status: resp.StatusCode}
	}

	var pg page
	if err := json.NewDecoder(resp.Body).Decode(&pg); err != nil {
		return page{}, fmt.Errorf("decode page at skip=%d: %w", skip, err)
	}
	return pg, nil
}
