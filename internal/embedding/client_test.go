package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bandham-manikanta/qa-system/internal/domain"
)

const testDim = 4

// fakeService is an embeddings endpoint that derives a deterministic vector
// from the input text, records input_type tags, and can inject 429s.
type fakeService struct {
	mu         sync.Mutex
	rateLimits int32
	calls      int
	inputTypes map[string]string
}

func newFakeService() *fakeService {
	return &fakeService{inputTypes: make(map[string]string)}
}

func sentinelVector(text string) []float64 {
	vec := make([]float64, testDim)
	for i, r := range text {
		vec[i%testDim] += float64(r)
	}
	return vec
}

func (f *fakeService) handler(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&f.rateLimits) > 0 {
		atomic.AddInt32(&f.rateLimits, -1)
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	var req struct {
		Input     []string `json:"input"`
		InputType string   `json:"input_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Input) != 1 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls++
	f.inputTypes[req.Input[0]] = req.InputType
	f.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": []map[string]any{{"embedding": sentinelVector(req.Input[0])}},
	})
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return nil
}

func newTestClient(t *testing.T, srv *httptest.Server) (*Client, *sleepRecorder) {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:   srv.URL,
		Model:     "test/embedder",
		Dimension: testDim,
		QueryRPS:  1000,
	}, zap.NewNop())
	require.NoError(t, err)
	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	return c, rec
}

func TestEmbedQueryTagsIntent(t *testing.T) {
	svc := newFakeService()
	srv := httptest.NewServer(http.HandlerFunc(svc.handler))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	vec, err := c.EmbedQuery(context.Background(), "who is layla?")
	require.NoError(t, err)
	assert.Equal(t, sentinelVector("who is layla?"), vec)
	assert.Equal(t, "query", svc.inputTypes["who is layla?"])
}

func TestEmbedQueryRecoversFrom429(t *testing.T) {
	svc := newFakeService()
	svc.rateLimits = 2
	srv := httptest.NewServer(http.HandlerFunc(svc.handler))
	defer srv.Close()

	c, rec := newTestClient(t, srv)
	vec, err := c.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, sentinelVector("hello"), vec)
	// Exactly two backoff sleeps: 1s then 2s.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.slept)
}

func TestEmbedQueryExhausts429Budget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	_, err := c.EmbedQuery(context.Background(), "hello")
	require.ErrorIs(t, err, domain.ErrRateLimitExceeded)
}

func TestEmbedQueryRejectsWrongDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float64{1, 2}}},
		})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	_, err := c.EmbedQuery(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 4")
}

func TestEmbedBatchConcurrentPreservesOrder(t *testing.T) {
	svc := newFakeService()
	srv := httptest.NewServer(http.HandlerFunc(svc.handler))
	defer srv.Close()

	c, _ := newTestClient(t, srv)

	texts := make([]string, 23)
	for i := range texts {
		texts[i] = fmt.Sprintf("sentinel text %02d", i)
	}
	vectors, err := c.EmbedBatchConcurrent(context.Background(), texts, 4)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, sentinelVector(text), vectors[i], "misaligned result at index %d", i)
		assert.Equal(t, "passage", svc.inputTypes[text])
	}
}

func TestEmbedBatchConcurrentFailsFast(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		atomic.AddInt32(&calls, 1)
		if len(req.Input) == 1 && req.Input[0] == "poison" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": sentinelVector(req.Input[0])}},
		})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	texts := []string{"ok one", "poison", "ok two", "ok three"}
	_, err := c.EmbedBatchConcurrent(context.Background(), texts, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passage 1")
}

func TestEmbedBatchConcurrentEmptyInput(t *testing.T) {
	svc := newFakeService()
	srv := httptest.NewServer(http.HandlerFunc(svc.handler))
	defer srv.Close()

	c, _ := newTestClient(t, srv)
	vectors, err := c.EmbedBatchConcurrent(context.Background(), nil, 3)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, svc.calls)
}
