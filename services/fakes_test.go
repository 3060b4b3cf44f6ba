package services

import (
	"context"
	"errors"
	"hash/fnv"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/vectorindex"
)

var errEmbedFailed = errors.New("embedding backend failed")

// fakeEmbedder returns fixed vectors for known texts and a deterministic
// hash-derived vector otherwise. Texts containing failOn are rejected.
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float32
	failOn  string
	calls   atomic.Int32

	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, vectors: map[string][]float32{}}
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.inFlight++
	f.maxSeen = max(f.maxSeen, f.inFlight)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errEmbedFailed
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()
	v := make([]float32, f.dim)
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000)/1000 + 0.001
	}
	return v, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	chunks  []string
	err     error
}

func (g *fakeGenerator) record(prompt string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.record(prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *fakeGenerator) GenerateStream(_ context.Context, prompt string) iter.Seq2[string, error] {
	g.record(prompt)
	return func(yield func(string, error) bool) {
		for _, c := range g.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if g.err != nil {
			yield("", g.err)
		}
	}
}

// recordingIndex wraps an index, counts calls by method and injects errors.
type recordingIndex struct {
	vectorindex.Index

	mu        sync.Mutex
	calls     map[string]int
	deleteErr error
	upsertErr error
	searchErr error
	infoErr   error
}

func newRecordingIndex(inner vectorindex.Index) *recordingIndex {
	return &recordingIndex{Index: inner, calls: map[string]int{}}
}

func (r *recordingIndex) count(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[method]++
}

func (r *recordingIndex) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *recordingIndex) EnsureCollection(ctx context.Context, name string, dimension int, metric vectorindex.Metric) error {
	r.count("EnsureCollection")
	return r.Index.EnsureCollection(ctx, name, dimension, metric)
}

func (r *recordingIndex) DeleteByFilter(ctx context.Context, name, field, value string) error {
	r.count("DeleteByFilter")
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.Index.DeleteByFilter(ctx, name, field, value)
}

func (r *recordingIndex) Upsert(ctx context.Context, name string, points []models.Point, wait bool) error {
	r.count("Upsert")
	if r.upsertErr != nil {
		return r.upsertErr
	}
	return r.Index.Upsert(ctx, name, points, wait)
}

func (r *recordingIndex) Search(ctx context.Context, name string, vector []float32, topK int, threshold float32) ([]models.ScoredPoint, error) {
	r.count("Search")
	if r.searchErr != nil {
		return nil, r.searchErr
	}
	return r.Index.Search(ctx, name, vector, topK, threshold)
}

func (r *recordingIndex) CollectionInfo(ctx context.Context, name string) (*models.CollectionInfo, error) {
	r.count("CollectionInfo")
	if r.infoErr != nil {
		return nil, r.infoErr
	}
	return r.Index.CollectionInfo(ctx, name)
}

func staticIndex(idx vectorindex.Index) *Lazy[vectorindex.Index] {
	return NewLazy(func(context.Context) (vectorindex.Index, error) { return idx, nil })
}

func failingIndex(err error) *Lazy[vectorindex.Index] {
	return NewLazy(func(context.Context) (vectorindex.Index, error) { return nil, err })
}
