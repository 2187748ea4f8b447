// Package service coordinates the ingestion-and-retrieval pipeline behind
// the two operator-facing operations: Refresh and Answer.
package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/bandham-manikanta/qa-system/internal/domain"
)

// NoInformation is the fixed reply when retrieval yields nothing. Calling
// the language model with empty context wastes quota and risks hallucination,
// so the coordinator short-circuits instead.
const NoInformation = "I don't have that information"

// UserCount is one entry of the per-user message aggregate.
type UserCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RefreshResult reports what a refresh produced.
type RefreshResult struct {
	Messages int               `json:"total_messages"`
	Stats    domain.IndexStats `json:"vector_store"`
}

// Stats reports corpus and collection state.
type Stats struct {
	CorpusCount int               `json:"total_messages"`
	UniqueUsers int               `json:"unique_users"`
	TopUsers    []UserCount       `json:"top_users"`
	Collection  domain.IndexStats `json:"vector_store"`
}

// QAService is the pipeline coordinator. All retrying lives in the leaf
// clients; this layer only translates their outcomes into caller-facing
// results.
type QAService struct {
	corpus    domain.CorpusProvider
	index     domain.Index
	retriever domain.Retriever
	synth     domain.Synthesizer
	topK      int
	logger    *zap.Logger
}

// NewQAService wires the pipeline together.
func NewQAService(corpus domain.CorpusProvider, index domain.Index, retriever domain.Retriever, synth domain.Synthesizer, topK int, logger *zap.Logger) *QAService {
	if topK <= 0 {
		topK = 15
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QAService{
		corpus:    corpus,
		index:     index,
		retriever: retriever,
		synth:     synth,
		topK:      topK,
		logger:    logger,
	}
}

// Refresh re-fetches the corpus (bypassing the cache) and rebuilds the
// index. This is the only path that forces re-embedding, and it fails
// loudly so operators notice a broken source or exhausted quota.
func (s *QAService) Refresh(ctx context.Context, forceRecreate bool) (RefreshResult, error) {
	messages, err := s.corpus.Get(ctx, true)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("refresh corpus: %w", err)
	}
	if err := s.index.Build(ctx, messages, forceRecreate); err != nil {
		return RefreshResult{}, fmt.Errorf("rebuild index: %w", err)
	}
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	s.logger.Info("refresh complete",
		zap.Int("messages", len(messages)),
		zap.Int("points", stats.Points))
	return RefreshResult{Messages: len(messages), Stats: stats}, nil
}

// Answer retrieves relevant passages and delegates to the synthesizer.
// Empty retrieval is a successful outcome, not an error.
func (s *QAService) Answer(ctx context.Context, question string) (string, error) {
	passages, err := s.retriever.Retrieve(ctx, question, s.topK)
	if err != nil {
		return "", err
	}
	if len(passages) == 0 {
		s.logger.Info("no passages retrieved", zap.String("question", question))
		return NoInformation, nil
	}
	return s.synth.Synthesize(ctx, question, passages)
}

// Stats reports corpus counts, per-user aggregates and collection state.
func (s *QAService) Stats(ctx context.Context) (Stats, error) {
	messages, err := s.corpus.Get(ctx, false)
	if err != nil {
		return Stats{}, err
	}
	collection, err := s.index.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}

	counts := make(map[string]int)
	for _, m := range messages {
		counts[m.UserName]++
	}
	top := make([]UserCount, 0, len(counts))
	for name, count := range counts {
		top = append(top, UserCount{Name: name, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > 10 {
		top = top[:10]
	}

	return Stats{
		CorpusCount: len(messages),
		UniqueUsers: len(counts),
		TopUsers:    top,
		Collection:  collection,
	}, nil
}
