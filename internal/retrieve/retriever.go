// Package retrieve maps a question to its most relevant corpus messages.
package retrieve

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bandham-manikanta/qa-system/internal/domain"
)

// Retriever embeds a question, searches the index, and hydrates stored
// payloads back into messages. When the index is not ready it triggers one
// lazy build from the cached corpus before retrying the search once.
type Retriever struct {
	embedder domain.Embedder
	index    domain.Index
	corpus   domain.CorpusProvider
	logger   *zap.Logger
}

var _ domain.Retriever = (*Retriever)(nil)

// NewRetriever creates a retriever.
func NewRetriever(embedder domain.Embedder, index domain.Index, corpus domain.CorpusProvider, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, index: index, corpus: corpus, logger: logger}
}

// Retrieve returns up to topK messages relevant to the question.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) ([]domain.Message, error) {
	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := r.index.Search(ctx, vector, topK)
	if errors.Is(err, domain.ErrCollectionNotReady) {
		r.logger.Info("index not ready, building from cached corpus")
		messages, cerr := r.corpus.Get(ctx, false)
		if cerr != nil {
			return nil, cerr
		}
		if berr := r.index.Build(ctx, messages, false); berr != nil {
			return nil, fmt.Errorf("lazy index build: %w", berr)
		}
		hits, err = r.index.Search(ctx, vector, topK)
	}
	if err != nil {
		// A second not-ready surfaces rather than looping.
		return nil, err
	}

	messages := make([]domain.Message, 0, len(hits))
	for _, h := range hits {
		messages = append(messages, h.Payload)
	}
	r.logger.Debug("retrieved passages",
		zap.String("question", question),
		zap.Int("count", len(messages)))
	return messages, nil
}
