package retrieve

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bandham-manikanta/qa-system/internal/domain"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedQuery(context.Context, string) ([]float64, error) {
	return []float64{1, 0}, nil
}

func (stubEmbedder) EmbedBatchConcurrent(_ context.Context, texts []string, _ int) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimension() int { return 2 }

// stubIndex is not ready for a configurable number of searches, then serves
// hits for whatever was built.
type stubIndex struct {
	notReadySearches int
	builds           int
	built            []domain.Message
}

func (s *stubIndex) Build(_ context.Context, msgs []domain.Message, _ bool) error {
	s.builds++
	s.built = msgs
	return nil
}

func (s *stubIndex) Search(_ context.Context, _ []float64, topK int) ([]domain.ScoredPoint, error) {
	if s.notReadySearches > 0 {
		s.notReadySearches--
		return nil, domain.ErrCollectionNotReady
	}
	var hits []domain.ScoredPoint
	for i, m := range s.built {
		if len(hits) == topK {
			break
		}
		hits = append(hits, domain.ScoredPoint{ID: uint64(i), Score: 1 - float64(i)/10, Payload: m})
	}
	return hits, nil
}

func (s *stubIndex) Count(context.Context) (int, error) { return len(s.built), nil }

func (s *stubIndex) Stats(context.Context) (domain.IndexStats, error) {
	return domain.IndexStats{Points: len(s.built)}, nil
}

type stubCorpus struct {
	calls int
	msgs  []domain.Message
}

func (s *stubCorpus) Get(context.Context, bool) ([]domain.Message, error) {
	s.calls++
	return s.msgs, nil
}

func someMessages(n int) []domain.Message {
	msgs := make([]domain.Message, n)
	for i := range msgs {
		msgs[i] = domain.Message{ID: fmt.Sprintf("m-%d", i), Message: fmt.Sprintf("hello %d", i)}
	}
	return msgs
}

func TestRetrieveCapsAtTopK(t *testing.T) {
	idx := &stubIndex{built: someMessages(10)}
	r := NewRetriever(stubEmbedder{}, idx, &stubCorpus{}, nil)

	got, err := r.Retrieve(context.Background(), "anything", 4)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestRetrieveLazyBuildOnNotReady(t *testing.T) {
	corpus := &stubCorpus{msgs: someMessages(3)}
	idx := &stubIndex{notReadySearches: 1}
	r := NewRetriever(stubEmbedder{}, idx, corpus, nil)

	got, err := r.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 1, idx.builds)
	assert.Equal(t, 1, corpus.calls)
}

func TestRetrieveSecondNotReadySurfaces(t *testing.T) {
	corpus := &stubCorpus{msgs: someMessages(3)}
	idx := &stubIndex{notReadySearches: 2}
	r := NewRetriever(stubEmbedder{}, idx, corpus, nil)

	_, err := r.Retrieve(context.Background(), "anything", 5)
	require.ErrorIs(t, err, domain.ErrCollectionNotReady)
	assert.Equal(t, 1, idx.builds, "must not loop on repeated not-ready")
}
