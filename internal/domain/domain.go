package domain

import (
	"context"
	"errors"
	"fmt"
)

// Message is a single member message as delivered by the remote source.
// Messages are immutable after fetch; identity is ID.
type Message struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// Passage renders the message as the text used both as embedding input and
// as LLM context.
func (m Message) Passage() string {
	return fmt.Sprintf("User: %s\nDate: %s\nMessage: %s", m.UserName, m.Timestamp, m.Message)
}

// Point is one embedded passage stored in the collection. The ID is the
// message's position in the build sequence, not the message's own ID; it is
// not stable across rebuilds.
type Point struct {
	ID      uint64
	Vector  []float64
	Payload Message
}

// ScoredPoint is a search hit with its cosine similarity score.
type ScoredPoint struct {
	ID      uint64
	Score   float64
	Payload Message
}

// IndexStats describes the state of the vector collection relative to the
// active embedding model.
type IndexStats struct {
	Points           int  `json:"points"`
	Dimension        int  `json:"dimension"`
	DimensionMatches bool `json:"dimension_matches"`
	Initialized      bool `json:"initialized"`
}

// Sentinel conditions. Leaf clients retry per their own policies and surface
// these only after exhausting them; callers match with errors.Is.
var (
	// ErrSourceUnavailable means the fetch exhausted retries with zero
	// messages accumulated.
	ErrSourceUnavailable = errors.New("message source unavailable")

	// ErrRateLimitExceeded means the embedding service kept returning 429
	// past the retry budget.
	ErrRateLimitExceeded = errors.New("embedding rate limit exceeded")

	// ErrCollectionNotReady means search was attempted before a valid,
	// dimension-matching, non-empty collection exists. Recoverable by
	// triggering Build.
	ErrCollectionNotReady = errors.New("vector collection not ready")

	// ErrDimensionDrift means the stored collection's vector length
	// disagrees with the active embedding model. Always resolved by a full
	// recreate, never a partial fix.
	ErrDimensionDrift = errors.New("vector dimension drift")
)

// Embedder converts text into fixed-dimension vectors. Query and passage
// embeddings are asymmetric; implementations must tag intent accordingly.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
	EmbedBatchConcurrent(ctx context.Context, texts []string, concurrency int) ([][]float64, error)
	Dimension() int
}

// CorpusProvider supplies the cached corpus, fetching on first use or when a
// refresh is forced.
type CorpusProvider interface {
	Get(ctx context.Context, forceRefresh bool) ([]Message, error)
}

// Index manages the vector collection lifecycle and serves similarity search.
type Index interface {
	Build(ctx context.Context, messages []Message, forceRecreate bool) error
	Search(ctx context.Context, vector []float64, topK int) ([]ScoredPoint, error)
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (IndexStats, error)
}

// Retriever answers "which messages are relevant to this question".
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) ([]Message, error)
}

// Synthesizer produces a natural-language answer from a question and its
// retrieved passages. It is never called with zero passages; the coordinator
// short-circuits that case.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, passages []Message) (string, error)
}
