// Package memory is an in-memory vector backend using brute-force cosine
// similarity. It backs local runs and tests where no Qdrant is available.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/bandham-manikanta/qa-system/internal/domain"
	"github.com/bandham-manikanta/qa-system/internal/vectorstore"
)

// Backend implements vectorstore.Backend in process memory.
type Backend struct {
	mu        sync.RWMutex
	created   bool
	dimension int
	points    map[uint64]domain.Point
}

var _ vectorstore.Backend = (*Backend)(nil)

// NewBackend creates an empty in-memory backend with no collection.
func NewBackend() *Backend { return &Backend{} }

func (b *Backend) Info(context.Context) (vectorstore.CollectionInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.created {
		return vectorstore.CollectionInfo{}, nil
	}
	return vectorstore.CollectionInfo{Exists: true, Dimension: b.dimension, Points: len(b.points)}, nil
}

func (b *Backend) Create(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.created {
		return errors.New("collection already exists")
	}
	b.created = true
	b.dimension = dimension
	b.points = make(map[uint64]domain.Point)
	return nil
}

func (b *Backend) Drop(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created = false
	b.dimension = 0
	b.points = nil
	return nil
}

func (b *Backend) Count(context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.created {
		return 0, errors.New("collection does not exist")
	}
	return len(b.points), nil
}

func (b *Backend) Upsert(_ context.Context, points []domain.Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.created {
		return errors.New("collection does not exist")
	}
	for _, p := range points {
		if len(p.Vector) != b.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for _, p := range points {
		b.points[p.ID] = p
	}
	return nil
}

func (b *Backend) Search(_ context.Context, vector []float64, limit int) ([]domain.ScoredPoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.created {
		return nil, errors.New("collection does not exist")
	}
	if limit <= 0 {
		return nil, nil
	}
	hits := make([]domain.ScoredPoint, 0, len(b.points))
	for _, p := range b.points {
		hits = append(hits, domain.ScoredPoint{ID: p.ID, Score: cosine(p.Vector, vector), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > len(hits) {
		limit = len(hits)
	}
	return hits[:limit], nil
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
