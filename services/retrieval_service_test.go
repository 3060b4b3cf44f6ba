package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/docchat/logging"
	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/vectorindex"
	"github.com/itish2003/docchat/vectorindex/memory"
)

func seedIndex(t *testing.T, points ...models.Point) *recordingIndex {
	t.Helper()
	idx := newRecordingIndex(memory.New())
	require.NoError(t, idx.EnsureCollection(context.Background(), testCollection, 2, vectorindex.Cosine))
	require.NoError(t, idx.Upsert(context.Background(), testCollection, points, true))
	return idx
}

func point(id string, vec []float32, text string) models.Point {
	return models.Point{ID: id, Vector: vec, Payload: map[string]any{
		models.PayloadText:        text,
		models.PayloadPageContent: text,
		models.PayloadFileName:    "manual.pdf",
	}}
}

func TestRetrieve_OrdersAndJoinsPassages(t *testing.T) {
	idx := seedIndex(t,
		point("far", []float32{0, 1}, "unrelated"),
		point("close", []float32{1, 0.1}, "breaker sizing"),
		point("closest", []float32{1, 0}, "breaker ratings"),
	)
	emb := newFakeEmbedder(2)
	emb.vectors["breakers?"] = []float32{1, 0}
	svc := NewRetrievalService(emb, staticIndex(idx), testCollection, logging.Discard())

	got, err := svc.Retrieve(context.Background(), "breakers?", 5, 0.5)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Passages, 2)
	assert.Equal(t, "breaker ratings", got.Passages[0].Text)
	assert.Equal(t, "breaker sizing", got.Passages[1].Text)
	assert.Equal(t, "manual.pdf", got.Passages[0].FileName)
	assert.Equal(t, "breaker ratings\n\n---\n\nbreaker sizing", got.Text)
}

func TestRetrieve_HonoursTopKAndThreshold(t *testing.T) {
	var pts []models.Point
	for i := range 10 {
		pts = append(pts, point(string(rune('a'+i)), []float32{1, float32(i) * 0.2}, "p"))
	}
	idx := seedIndex(t, pts...)
	emb := newFakeEmbedder(2)
	emb.vectors["q"] = []float32{1, 0}
	svc := NewRetrievalService(emb, staticIndex(idx), testCollection, nil)

	for _, tc := range []struct {
		topK      int
		threshold float32
	}{{1, 0}, {3, 0.5}, {5, 0.9}, {20, 0.99}, {0, 0.1}} {
		got, err := svc.Retrieve(context.Background(), "q", tc.topK, tc.threshold)
		require.NoError(t, err)
		if got == nil {
			continue
		}
		limit := tc.topK
		if limit <= 0 {
			limit = DefaultTopK
		}
		assert.LessOrEqual(t, len(got.Passages), limit)
		for i, p := range got.Passages {
			assert.GreaterOrEqual(t, p.Score, tc.threshold)
			if i > 0 {
				assert.LessOrEqual(t, p.Score, got.Passages[i-1].Score)
			}
		}
	}
}

func TestRetrieve_NoMatchReturnsNil(t *testing.T) {
	idx := seedIndex(t, point("x", []float32{0, 1}, "unrelated"))
	emb := newFakeEmbedder(2)
	emb.vectors["q"] = []float32{1, 0}
	svc := NewRetrievalService(emb, staticIndex(idx), testCollection, nil)

	got, err := svc.Retrieve(context.Background(), "q", DefaultTopK, DefaultScoreThreshold)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRetrieve_Failures(t *testing.T) {
	emb := newFakeEmbedder(2)
	emb.failOn = "boom"
	idx := seedIndex(t)
	svc := NewRetrievalService(emb, staticIndex(idx), testCollection, nil)

	_, err := svc.Retrieve(context.Background(), "boom", 5, 0.5)
	assert.ErrorIs(t, err, errEmbedFailed)
	assert.Zero(t, idx.Calls("Search"))

	idx.searchErr = models.ErrIndexUnavailable
	_, err = svc.Retrieve(context.Background(), "fine", 5, 0.5)
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)

	emb.vectors["short"] = []float32{1}
	_, err = svc.Retrieve(context.Background(), "short", 5, 0.5)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestPayloadText(t *testing.T) {
	for _, tc := range []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"pageContent wins", map[string]any{"pageContent": "a", "text": "b", "content": "c"}, "a"},
		{"text when pageContent empty", map[string]any{"pageContent": "", "text": "b"}, "b"},
		{"content", map[string]any{"content": "c"}, "c"},
		{"nested metadata", map[string]any{"metadata": map[string]any{"pageContent": "d"}}, "d"},
		{"non-string ignored", map[string]any{"pageContent": 42, "text": "b"}, "b"},
		{"nothing", map[string]any{"fileName": "x"}, ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PayloadText(tc.payload))
		})
	}
}
