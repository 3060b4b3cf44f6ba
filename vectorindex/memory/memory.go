// Package memory is an in-process vector index using brute-force similarity.
// It backs local runs without a database and the pipeline tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sync"

	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/vectorindex"
)

type collection struct {
	dimension int
	metric    vectorindex.Metric
	order     []string
	points    map[string]models.Point
}

// Index holds any number of named collections.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func New() *Index {
	return &Index{collections: make(map[string]*collection)}
}

func (s *Index) EnsureCollection(_ context.Context, name string, dimension int, metric vectorindex.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("collection %s has dimension %d, want %d: %w", name, c.dimension, dimension, models.ErrDimensionMismatch)
		}
		return nil
	}
	s.collections[name] = &collection{
		dimension: dimension,
		metric:    metric,
		points:    make(map[string]models.Point),
	}
	return nil
}

func (s *Index) DeleteByFilter(_ context.Context, name, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, vectorindex.ErrCollectionNotFound)
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if v, ok := c.points[id].Payload[field].(string); ok && v == value {
			delete(c.points, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return nil
}

func (s *Index) Upsert(_ context.Context, name string, points []models.Point, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, vectorindex.ErrCollectionNotFound)
	}
	for _, p := range points {
		if len(p.Vector) != c.dimension {
			return fmt.Errorf("point %s has %d dimensions, collection has %d: %w", p.ID, len(p.Vector), c.dimension, models.ErrDimensionMismatch)
		}
	}
	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = models.Point{
			ID:      p.ID,
			Vector:  append([]float32(nil), p.Vector...),
			Payload: maps.Clone(p.Payload),
		}
	}
	return nil
}

func (s *Index) Search(_ context.Context, name string, vector []float32, topK int, threshold float32) ([]models.ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, vectorindex.ErrCollectionNotFound)
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("query has %d dimensions, collection has %d: %w", len(vector), c.dimension, models.ErrDimensionMismatch)
	}
	hits := make([]models.ScoredPoint, 0, len(c.order))
	for _, id := range c.order {
		p := c.points[id]
		hits = append(hits, models.ScoredPoint{
			ID:      id,
			Score:   score(c.metric, vector, p.Vector),
			Payload: maps.Clone(p.Payload),
		})
	}
	return vectorindex.Clamp(hits, topK, threshold), nil
}

func (s *Index) CollectionInfo(_ context.Context, name string) (*models.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, vectorindex.ErrCollectionNotFound)
	}
	return &models.CollectionInfo{
		Name:        name,
		PointsCount: uint64(len(c.order)),
		Dimension:   c.dimension,
		Metric:      string(c.metric),
	}, nil
}

func (s *Index) DropCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Index) Close() error { return nil }

func score(metric vectorindex.Metric, a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if metric == vectorindex.Dot {
		return float32(dot)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
