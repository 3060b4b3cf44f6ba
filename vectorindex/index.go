// Package vectorindex defines the contract every vector database backend
// implements. Backends live in the subpackages.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/itish2003/docchat/models"
)

// Metric is the similarity metric a collection is created with.
type Metric string

const (
	Cosine Metric = "cosine"
	Dot    Metric = "dot"
)

// ErrCollectionNotFound is returned by operations on a collection that was
// never created.
var ErrCollectionNotFound = errors.New("collection not found")

// ParseMetric accepts the config spelling of a metric.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return Cosine, nil
	case "dot":
		return Dot, nil
	}
	return "", fmt.Errorf("unsupported metric %q", s)
}

// Index is the vector database as seen by the pipelines. Each call is atomic
// on its own; nothing is transactional across calls.
type Index interface {
	// EnsureCollection creates the collection if it is absent. An existing
	// collection is never altered; a different dimension is
	// models.ErrDimensionMismatch.
	EnsureCollection(ctx context.Context, name string, dimension int, metric Metric) error
	// DeleteByFilter removes every point whose payload field equals value.
	// No match is not an error.
	DeleteByFilter(ctx context.Context, name, field, value string) error
	// Upsert inserts or overwrites points by id. With wait set the call
	// returns only once the write is visible to Search.
	Upsert(ctx context.Context, name string, points []models.Point, wait bool) error
	// Search returns at most topK points scoring at least threshold, highest
	// first. No match yields an empty slice.
	Search(ctx context.Context, name string, vector []float32, topK int, threshold float32) ([]models.ScoredPoint, error)
	CollectionInfo(ctx context.Context, name string) (*models.CollectionInfo, error)
	DropCollection(ctx context.Context, name string) error
	Close() error
}

// Clamp enforces the Search contract on a backend's raw results: it drops
// hits below threshold, orders by descending score (stable) and truncates to
// topK.
func Clamp(hits []models.ScoredPoint, topK int, threshold float32) []models.ScoredPoint {
	out := make([]models.ScoredPoint, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK >= 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
