package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/docchat/logging"
	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/vectorindex"
	"github.com/itish2003/docchat/vectorindex/memory"
)

const testCollection = "docs"

type ingestFixture struct {
	svc      *IngestionService
	index    *recordingIndex
	embedder *fakeEmbedder
}

func newIngestFixture(t *testing.T, size, overlap, batch int) *ingestFixture {
	t.Helper()
	chunker, err := NewChunker(WithChunkSize(size), WithChunkOverlap(overlap))
	require.NoError(t, err)
	idx := newRecordingIndex(memory.New())
	emb := newFakeEmbedder(8)
	svc := NewIngestionService(NewExtractor(), chunker, emb, staticIndex(idx), IngestionOptions{
		Collection:  testCollection,
		Metric:      vectorindex.Cosine,
		BatchSize:   batch,
		Concurrency: 3,
	}, logging.Discard())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return &ingestFixture{svc: svc, index: idx, embedder: emb}
}

// allPoints lists every stored point ordered by chunk index.
func (f *ingestFixture) allPoints(t *testing.T) []models.ScoredPoint {
	t.Helper()
	probe := make([]float32, f.embedder.dim)
	for i := range probe {
		probe[i] = 1
	}
	hits, err := f.index.Index.Search(context.Background(), testCollection, probe, 10_000, -1)
	require.NoError(t, err)
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Payload[models.PayloadChunkIndex].(int) < hits[j].Payload[models.PayloadChunkIndex].(int)
	})
	return hits
}

func TestIngest_WritesChunksWithPayload(t *testing.T) {
	f := newIngestFixture(t, 4, 1, 10)

	res, err := f.svc.Ingest(context.Background(), models.Document{FileName: "manual.txt", Data: []byte("abcdefghij")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunksCreated)
	assert.Equal(t, 3, res.ChunksUpserted)
	assert.Zero(t, res.ChunksFailed)
	assert.False(t, res.Degraded())
	assert.NotEmpty(t, res.RunID)

	points := f.allPoints(t)
	require.Len(t, points, 3)
	for i, want := range []string{"abcd", "defg", "ghij"} {
		p := points[i].Payload
		assert.Equal(t, want, p[models.PayloadText])
		assert.Equal(t, want, p[models.PayloadPageContent])
		assert.Equal(t, "manual.txt", p[models.PayloadFileName])
		assert.Equal(t, i, p[models.PayloadChunkIndex])
		assert.Equal(t, "2026-03-01T12:00:00Z", p[models.PayloadUploadedAt])
		assert.Equal(t, res.RunID, p[models.PayloadRunID])
		assert.Equal(t, PointID("manual.txt", res.RunID, i), points[i].ID)
	}
}

func TestIngest_ReingestReplacesPreviousVersion(t *testing.T) {
	f := newIngestFixture(t, 4, 1, 2)
	doc := models.Document{FileName: "manual.txt", Data: []byte("abcdefghij")}

	first, err := f.svc.Ingest(context.Background(), doc)
	require.NoError(t, err)
	second, err := f.svc.Ingest(context.Background(), doc)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	points := f.allPoints(t)
	require.Len(t, points, 3)
	for _, p := range points {
		assert.Equal(t, second.RunID, p.Payload[models.PayloadRunID])
	}

	_, err = f.svc.Ingest(context.Background(), models.Document{FileName: "other.txt", Data: []byte("zzzz")})
	require.NoError(t, err)
	assert.Len(t, f.allPoints(t), 4)
}

func TestIngest_EmptyDocumentOnlyCreatesCollection(t *testing.T) {
	f := newIngestFixture(t, 4, 1, 10)

	res, err := f.svc.Ingest(context.Background(), models.Document{FileName: "blank.txt", Data: []byte("   \n\n  ")})
	require.NoError(t, err)
	assert.Zero(t, res.ChunksCreated)
	assert.Zero(t, res.ChunksUpserted)

	assert.Equal(t, 1, f.index.Calls("EnsureCollection"))
	assert.Zero(t, f.index.Calls("DeleteByFilter"))
	assert.Zero(t, f.index.Calls("Upsert"))
	assert.Zero(t, f.embedder.calls.Load())
}

func TestIngest_BatchesUpserts(t *testing.T) {
	f := newIngestFixture(t, 2, 0, 2)

	res, err := f.svc.Ingest(context.Background(), models.Document{FileName: "a.txt", Data: []byte("aabbccddee")})
	require.NoError(t, err)
	assert.Equal(t, 5, res.ChunksUpserted)
	assert.Equal(t, 3, f.index.Calls("Upsert"))
	assert.LessOrEqual(t, f.embedder.maxSeen, 2)
}

func TestIngest_PartialEmbeddingFailureIsCounted(t *testing.T) {
	f := newIngestFixture(t, 4, 0, 10)
	f.embedder.failOn = "BAD!"

	res, err := f.svc.Ingest(context.Background(), models.Document{FileName: "a.txt", Data: []byte("goodBAD!good")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunksCreated)
	assert.Equal(t, 2, res.ChunksUpserted)
	assert.Equal(t, 1, res.ChunksFailed)
	assert.True(t, res.Degraded())

	points := f.allPoints(t)
	require.Len(t, points, 2)
	assert.Equal(t, 0, points[0].Payload[models.PayloadChunkIndex])
	assert.Equal(t, 2, points[1].Payload[models.PayloadChunkIndex])
}

func TestIngest_AllChunksFailing(t *testing.T) {
	f := newIngestFixture(t, 4, 0, 10)
	f.embedder.failOn = "x"

	res, err := f.svc.Ingest(context.Background(), models.Document{FileName: "a.txt", Data: []byte("xxxxxxxx")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChunksCreated)
	assert.Zero(t, res.ChunksUpserted)
	assert.Equal(t, 2, res.ChunksFailed)
	assert.True(t, res.Degraded())
	assert.Zero(t, f.index.Calls("DeleteByFilter"))
	assert.Zero(t, f.index.Calls("Upsert"))
}

func TestIngest_FailedReuploadKeepsPreviousVersion(t *testing.T) {
	f := newIngestFixture(t, 4, 1, 10)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, models.Document{FileName: "manual.txt", Data: []byte("abcdefghij")})
	require.NoError(t, err)
	require.Len(t, f.allPoints(t), 3)

	f.embedder.failOn = "g"
	res, err := f.svc.Ingest(ctx, models.Document{FileName: "manual.txt", Data: []byte("gggggggg")})
	require.NoError(t, err)
	assert.Zero(t, res.ChunksUpserted)
	assert.Equal(t, res.ChunksCreated, res.ChunksFailed)

	points := f.allPoints(t)
	require.Len(t, points, 3)
	assert.Equal(t, "abcd", points[0].Payload[models.PayloadText])
}

func TestIngest_PurgeFailureIsTolerated(t *testing.T) {
	f := newIngestFixture(t, 4, 1, 10)
	f.index.deleteErr = errors.New("delete timed out")

	res, err := f.svc.Ingest(context.Background(), models.Document{FileName: "a.txt", Data: []byte("abcdefghij")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunksUpserted)
	assert.Equal(t, 1, f.index.Calls("DeleteByFilter"))
}

func TestIngest_DimensionMismatchIsFatal(t *testing.T) {
	f := newIngestFixture(t, 4, 1, 10)
	f.embedder.vectors["defg"] = []float32{1, 2, 3}

	_, err := f.svc.Ingest(context.Background(), models.Document{FileName: "a.txt", Data: []byte("abcdefghij")})
	var ingestErr *models.IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, models.StageEmbedding, ingestErr.Stage)
	assert.Equal(t, "a.txt", ingestErr.FileName)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	assert.Zero(t, f.index.Calls("Upsert"))
}

func TestIngest_UnsupportedDocument(t *testing.T) {
	f := newIngestFixture(t, 4, 1, 10)

	_, err := f.svc.Ingest(context.Background(), models.Document{FileName: "photo.png", Data: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}})
	var ingestErr *models.IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, models.StageParsed, ingestErr.Stage)
	assert.ErrorIs(t, err, models.ErrUnsupportedDocument)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to process photo.png at stage parsed"))
	assert.Zero(t, f.index.Calls("EnsureCollection"))
}

func TestIngest_UpsertFailureIsFatal(t *testing.T) {
	f := newIngestFixture(t, 4, 1, 10)
	f.index.upsertErr = models.ErrIndexUnavailable

	_, err := f.svc.Ingest(context.Background(), models.Document{FileName: "a.txt", Data: []byte("abcdefghij")})
	var ingestErr *models.IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, models.StageUpserted, ingestErr.Stage)
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)
}

func TestIngest_ExistingCollectionWithOtherDimension(t *testing.T) {
	f := newIngestFixture(t, 4, 1, 10)
	require.NoError(t, f.index.Index.EnsureCollection(context.Background(), testCollection, 3, vectorindex.Cosine))

	_, err := f.svc.Ingest(context.Background(), models.Document{FileName: "a.txt", Data: []byte("abcdefghij")})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestIngest_IndexUnreachable(t *testing.T) {
	chunker, err := NewChunker()
	require.NoError(t, err)
	svc := NewIngestionService(NewExtractor(), chunker, newFakeEmbedder(4), failingIndex(models.ErrIndexUnavailable), IngestionOptions{Collection: testCollection}, nil)

	_, err = svc.Ingest(context.Background(), models.Document{FileName: "a.txt", Data: []byte("hello")})
	assert.ErrorIs(t, err, models.ErrIndexUnavailable)
	var ingestErr *models.IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, models.StageCollection, ingestErr.Stage)
}

func TestIngest_PurgeAndDrop(t *testing.T) {
	f := newIngestFixture(t, 4, 1, 10)
	ctx := context.Background()

	require.NoError(t, f.svc.Purge(ctx, "never-created.txt"))

	_, err := f.svc.Ingest(ctx, models.Document{FileName: "a.txt", Data: []byte("abcdefghij")})
	require.NoError(t, err)
	require.NoError(t, f.svc.Purge(ctx, "a.txt"))
	assert.Empty(t, f.allPoints(t))

	require.NoError(t, f.svc.DropCollection(ctx))
	_, err = f.index.Index.CollectionInfo(ctx, testCollection)
	assert.ErrorIs(t, err, vectorindex.ErrCollectionNotFound)
}

func TestPointID(t *testing.T) {
	a := PointID("a.txt", "run-1", 0)
	assert.Equal(t, a, PointID("a.txt", "run-1", 0))
	assert.NotEqual(t, a, PointID("a.txt", "run-1", 1))
	assert.NotEqual(t, a, PointID("a.txt", "run-2", 0))
	assert.NotEqual(t, a, PointID("b.txt", "run-1", 0))
	assert.Len(t, a, 36)
}
