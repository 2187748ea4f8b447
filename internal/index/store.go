// Package index manages the vector collection lifecycle: consistency checks
// against the corpus and the active embedding model, batched population, and
// query-time search.
package index

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bandham-manikanta/qa-system/internal/domain"
	"github.com/bandham-manikanta/qa-system/internal/vectorstore"
)

// Config configures the index store.
type Config struct {
	// UpsertBatchSize bounds upsert request size (default 100).
	UpsertBatchSize int

	// Concurrency is passed to the embedder's bulk path; 0 uses the
	// embedder's default.
	Concurrency int
}

// Store ties an embedder to a collection backend.
type Store struct {
	backend     vectorstore.Backend
	embedder    domain.Embedder
	batchSize   int
	concurrency int
	logger      *zap.Logger
}

var _ domain.Index = (*Store)(nil)

// NewStore creates an index store.
func NewStore(backend vectorstore.Backend, embedder domain.Embedder, cfg Config, logger *zap.Logger) *Store {
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend:     backend,
		embedder:    embedder,
		batchSize:   cfg.UpsertBatchSize,
		concurrency: cfg.Concurrency,
		logger:      logger,
	}
}

// Build brings the collection in sync with the corpus. An existing collection
// whose dimension matches the model and whose point count equals the corpus
// size is left untouched, so an unchanged corpus costs no embedding work.
// Dimension drift or a count mismatch recreates the collection from scratch;
// there is no partial migration.
func (s *Store) Build(ctx context.Context, messages []domain.Message, forceRecreate bool) error {
	info, err := s.backend.Info(ctx)
	if err != nil {
		return fmt.Errorf("inspect collection: %w", err)
	}

	recreate := false
	switch {
	case !info.Exists:
	case forceRecreate:
		recreate = true
	case info.Dimension != s.embedder.Dimension():
		s.logger.Warn("recreating collection",
			zap.Int("stored_dimension", info.Dimension),
			zap.Int("model_dimension", s.embedder.Dimension()),
			zap.Error(domain.ErrDimensionDrift))
		recreate = true
	case info.Points == len(messages):
		s.logger.Info("collection up to date, skipping embedding",
			zap.Int("points", info.Points))
		return nil
	default:
		s.logger.Info("corpus size changed, recreating collection",
			zap.Int("points", info.Points),
			zap.Int("messages", len(messages)))
		recreate = true
	}

	if recreate {
		if err := s.backend.Drop(ctx); err != nil {
			return fmt.Errorf("drop collection: %w", err)
		}
	}
	if err := s.backend.Create(ctx, s.embedder.Dimension()); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	if err := s.populate(ctx, messages); err != nil {
		// Never leave a collection whose count disagrees with the corpus;
		// drop the partial build so the next Search reports not-ready.
		if derr := s.backend.Drop(ctx); derr != nil {
			s.logger.Error("dropping partially built collection failed", zap.Error(derr))
		}
		return err
	}
	s.logger.Info("collection built", zap.Int("points", len(messages)))
	return nil
}

func (s *Store) populate(ctx context.Context, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Passage()
	}
	vectors, err := s.embedder.EmbedBatchConcurrent(ctx, texts, s.concurrency)
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}

	for start := 0; start < len(messages); start += s.batchSize {
		end := min(start+s.batchSize, len(messages))
		batch := make([]domain.Point, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, domain.Point{
				ID:      uint64(i),
				Vector:  vectors[i],
				Payload: messages[i],
			})
		}
		if err := s.backend.Upsert(ctx, batch); err != nil {
			return fmt.Errorf("upsert batch at %d: %w", start, err)
		}
	}
	return nil
}

// Search returns the topK nearest points. When the collection is absent,
// empty, or its dimension disagrees with the model, it reports
// ErrCollectionNotReady so the caller can trigger a Build instead of failing
// opaquely.
func (s *Store) Search(ctx context.Context, vector []float64, topK int) ([]domain.ScoredPoint, error) {
	info, err := s.backend.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect collection: %w", err)
	}
	if !info.Exists || info.Points == 0 {
		return nil, domain.ErrCollectionNotReady
	}
	if info.Dimension != s.embedder.Dimension() {
		return nil, fmt.Errorf("stored dimension %d, model dimension %d: %w (%w)",
			info.Dimension, s.embedder.Dimension(), domain.ErrCollectionNotReady, domain.ErrDimensionDrift)
	}
	return s.backend.Search(ctx, vector, topK)
}

// Count returns the collection's point count, zero when absent.
func (s *Store) Count(ctx context.Context) (int, error) {
	info, err := s.backend.Info(ctx)
	if err != nil {
		return 0, err
	}
	if !info.Exists {
		return 0, nil
	}
	return s.backend.Count(ctx)
}

// Stats reports the collection state relative to the active embedding model.
func (s *Store) Stats(ctx context.Context) (domain.IndexStats, error) {
	info, err := s.backend.Info(ctx)
	if err != nil {
		return domain.IndexStats{}, err
	}
	return domain.IndexStats{
		Points:           info.Points,
		Dimension:        info.Dimension,
		DimensionMatches: info.Exists && info.Dimension == s.embedder.Dimension(),
		Initialized:      info.Exists && info.Points > 0,
	}, nil
}
