// Package vectorstore defines the collection-level operations the index
// lifecycle is built on.
package vectorstore

import (
	"context"

	"github.com/bandham-manikanta/qa-system/internal/domain"
)

// CollectionInfo describes the persisted collection, if any.
type CollectionInfo struct {
	Exists    bool
	Dimension int
	Points    int
}

// Backend is a single named vector collection with cosine distance.
// Implementations own the collection name; callers see exactly one active
// collection at a time.
type Backend interface {
	// Info reports existence, declared dimension and point count.
	Info(ctx context.Context) (CollectionInfo, error)

	// Create makes an empty collection with the given dimension.
	Create(ctx context.Context, dimension int) error

	// Drop deletes the collection. Dropping an absent collection is not an
	// error.
	Drop(ctx context.Context) error

	// Count returns the exact point count.
	Count(ctx context.Context) (int, error)

	// Upsert writes a batch of points. Each batch is atomic from the
	// store's perspective.
	Upsert(ctx context.Context, points []domain.Point) error

	// Search returns up to limit points ranked by cosine similarity,
	// best first, with payloads.
	Search(ctx context.Context, vector []float64, limit int) ([]domain.ScoredPoint, error)
}
