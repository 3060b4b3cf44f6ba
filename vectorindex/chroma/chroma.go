// Package chroma implements vectorindex.Index on a Chroma server using the
// chroma-go v2 API.
package chroma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/vectorindex"
)

// Collection metadata keys. Chroma does not record a collection's dimension
// until the first insert, so it is kept alongside the HNSW space.
const (
	dimensionKey = "dimension"
	spaceKey     = "hnsw:space"
)

// includeDistances asks the query endpoint for distances; chroma-go only
// declares constants for the other include fields.
const includeDistances chromago.Include = "distances"

var errNoEmbedding = errors.New("chroma: vectors must be supplied with the request")

// precomputed satisfies chroma-go's embedding function requirement. Every
// upsert and query carries its vectors, so it is never asked to embed.
type precomputed struct{}

func (precomputed) EmbedDocuments(context.Context, []string) ([]embeddings.Embedding, error) {
	return nil, errNoEmbedding
}

func (precomputed) EmbedQuery(context.Context, string) (embeddings.Embedding, error) {
	return nil, errNoEmbedding
}

// Index caches collection handles by name.
type Index struct {
	client chromago.Client

	mu          sync.Mutex
	collections map[string]chromago.Collection
}

func New(baseURL string) (*Index, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}
	return &Index{client: client, collections: make(map[string]chromago.Collection)}, nil
}

func (c *Index) EnsureCollection(ctx context.Context, name string, dimension int, metric vectorindex.Metric) error {
	col, err := c.client.GetOrCreateCollection(ctx, name,
		chromago.WithEmbeddingFunctionCreate(precomputed{}),
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewIntAttribute(dimensionKey, int64(dimension)),
				chromago.NewStringAttribute(spaceKey, space(metric)),
			),
		),
	)
	if err != nil {
		return fmt.Errorf("%w: get or create collection %s: %w", models.ErrIndexUnavailable, name, err)
	}
	if got := collectionDimension(col); got != 0 && got != dimension {
		return fmt.Errorf("collection %s has dimension %d, want %d: %w", name, got, dimension, models.ErrDimensionMismatch)
	}
	c.mu.Lock()
	c.collections[name] = col
	c.mu.Unlock()
	return nil
}

func (c *Index) collection(ctx context.Context, name string) (chromago.Collection, error) {
	c.mu.Lock()
	col, ok := c.collections[name]
	c.mu.Unlock()
	if ok {
		return col, nil
	}
	col, err := c.client.GetCollection(ctx, name, chromago.WithEmbeddingFunctionGet(precomputed{}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", name, vectorindex.ErrCollectionNotFound, err)
	}
	c.mu.Lock()
	c.collections[name] = col
	c.mu.Unlock()
	return col, nil
}

func (c *Index) DeleteByFilter(ctx context.Context, name, field, value string) error {
	col, err := c.collection(ctx, name)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, chromago.WithWhereDelete(chromago.EqString(field, value))); err != nil {
		return fmt.Errorf("failed to delete %s=%s from chromadb: %w", field, value, err)
	}
	return nil
}

// Upsert writes synchronously; Chroma has no deferred-persistence mode, so
// wait is implied.
func (c *Index) Upsert(ctx context.Context, name string, points []models.Point, _ bool) error {
	if len(points) == 0 {
		return nil
	}
	col, err := c.collection(ctx, name)
	if err != nil {
		return err
	}
	ids := make([]chromago.DocumentID, len(points))
	texts := make([]string, len(points))
	embs := make([]embeddings.Embedding, len(points))
	metas := make([]chromago.DocumentMetadata, len(points))
	for i, p := range points {
		ids[i] = chromago.DocumentID(p.ID)
		texts[i], _ = p.Payload[models.PayloadText].(string)
		embs[i] = embeddings.NewEmbeddingFromFloat32(p.Vector)
		metas[i] = documentMetadata(p.Payload)
	}
	err = col.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert %d points to chromadb: %w", len(points), err)
	}
	return nil
}

func (c *Index) Search(ctx context.Context, name string, vector []float32, topK int, threshold float32) ([]models.ScoredPoint, error) {
	col, err := c.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	results, err := col.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(topK),
		chromago.WithIncludeQuery(chromago.IncludeDocuments, chromago.IncludeMetadatas, includeDistances),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query chromadb: %w", models.ErrIndexUnavailable, err)
	}

	idGroups := results.GetIDGroups()
	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	distGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 {
		return []models.ScoredPoint{}, nil
	}

	hits := make([]models.ScoredPoint, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		payload := map[string]any{}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) && metaGroups[0][i] != nil {
			payload = toMap(metaGroups[0][i])
		}
		if len(docGroups) > 0 && i < len(docGroups[0]) {
			if text := docGroups[0][i].ContentString(); text != "" {
				payload[models.PayloadText] = text
			}
		}
		var dist float32 = math.MaxFloat32
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			dist = float32(distGroups[0][i])
		}
		hits = append(hits, models.ScoredPoint{
			ID:      string(id),
			Score:   similarity(dist),
			Payload: payload,
		})
	}
	return vectorindex.Clamp(hits, topK, threshold), nil
}

func (c *Index) CollectionInfo(ctx context.Context, name string) (*models.CollectionInfo, error) {
	col, err := c.collection(ctx, name)
	if err != nil {
		return nil, err
	}
	count, err := col.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count items in collection: %w", models.ErrIndexUnavailable, err)
	}
	var metric string
	if meta := col.Metadata(); meta != nil {
		metric, _ = meta.GetString(spaceKey)
	}
	return &models.CollectionInfo{
		Name:        name,
		PointsCount: uint64(count),
		Dimension:   collectionDimension(col),
		Metric:      metric,
	}, nil
}

func (c *Index) DropCollection(ctx context.Context, name string) error {
	if err := c.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	c.mu.Lock()
	delete(c.collections, name)
	c.mu.Unlock()
	return nil
}

func (c *Index) Close() error {
	return c.client.Close()
}

// similarity converts a Chroma distance (1 - cosine, or 1 - dot for "ip")
// into the score space the pipelines threshold on.
func similarity(distance float32) float32 {
	return 1 - distance
}

func space(m vectorindex.Metric) string {
	if m == vectorindex.Dot {
		return "ip"
	}
	return "cosine"
}

func collectionDimension(col chromago.Collection) int {
	meta := col.Metadata()
	if meta == nil {
		return 0
	}
	if d, ok := meta.GetInt(dimensionKey); ok {
		return int(d)
	}
	return 0
}

func documentMetadata(payload map[string]any) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(payload))
	for k, v := range payload {
		if k == models.PayloadText || k == models.PayloadPageContent {
			continue
		}
		switch val := v.(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(k, val))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(k, int64(val)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(k, val))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(k, val))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(k, val))
		}
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// toMap converts document metadata into a plain map. DocumentMetadata has no
// key listing, so the JSON form is used.
func toMap(meta any) map[string]any {
	out := map[string]any{}
	if meta == nil {
		return out
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}
