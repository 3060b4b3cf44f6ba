package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/itish2003/docchat/models"
)

// Embedder maps text to a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// EmbedOutcome is the result for one input of EmbedBatch. Exactly one of
// Vector and Err is set.
type EmbedOutcome struct {
	Vector []float32
	Err    error
}

// EmbedBatch embeds texts with at most concurrency requests in flight. The
// outcomes line up with texts by index and a failed item does not stop the
// others. Only cancellation of ctx ends the batch early; unfinished items then
// carry the context error.
func EmbedBatch(ctx context.Context, e Embedder, texts []string, concurrency int) []EmbedOutcome {
	out := make([]EmbedOutcome, len(texts))
	if concurrency <= 0 {
		concurrency = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, text := range texts {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			vec, err := e.Embed(ctx, text)
			if err == nil {
				err = checkDimension(e, vec)
			}
			if err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Vector = vec
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func checkDimension(e Embedder, vec []float32) error {
	if len(vec) != e.Dimension() {
		return fmt.Errorf("%s returned %d values, want %d: %w", e.Name(), len(vec), e.Dimension(), models.ErrDimensionMismatch)
	}
	return nil
}
