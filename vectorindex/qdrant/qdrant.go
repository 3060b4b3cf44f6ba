// Package qdrant implements vectorindex.Index on the Qdrant gRPC API.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/vectorindex"
)

// Config contains connection details for a Qdrant instance.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Index is a thin wrapper over a Qdrant client.
type Index struct {
	client *qdrant.Client
}

// New connects to Qdrant. The connection is established lazily by gRPC, so an
// unreachable server surfaces on the first call rather than here.
func New(cfg Config) (*Index, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Index{client: client}, nil
}

func (q *Index) EnsureCollection(ctx context.Context, name string, dimension int, metric vectorindex.Metric) error {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		return wrap("list collections", err)
	}
	if slices.Contains(names, name) {
		return q.checkDimension(ctx, name, dimension)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: distance(metric),
		}),
	})
	if err != nil {
		// Another ingestion may have created it between list and create.
		if exists, existsErr := q.client.CollectionExists(ctx, name); existsErr == nil && exists {
			return q.checkDimension(ctx, name, dimension)
		}
		return wrap("create collection "+name, err)
	}
	return nil
}

func (q *Index) checkDimension(ctx context.Context, name string, dimension int) error {
	info, err := q.CollectionInfo(ctx, name)
	if err != nil {
		return err
	}
	if info.Dimension != 0 && info.Dimension != dimension {
		return fmt.Errorf("collection %s has dimension %d, want %d: %w", name, info.Dimension, dimension, models.ErrDimensionMismatch)
	}
	return nil
}

func (q *Index) DeleteByFilter(ctx context.Context, name, field, value string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(field, value)},
		}),
	})
	if err != nil {
		return wrap("delete from "+name, err)
	}
	return nil
}

func (q *Index) Upsert(ctx context.Context, name string, points []models.Point, wait bool) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := qdrant.TryValueMap(p.Payload)
		if err != nil {
			return fmt.Errorf("point %s payload: %w", p.ID, err)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(wait),
		Points:         structs,
	})
	if err != nil {
		return wrap("upsert into "+name, err)
	}
	return nil
}

func (q *Index) Search(ctx context.Context, name string, vector []float32, topK int, threshold float32) ([]models.ScoredPoint, error) {
	res, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		ScoreThreshold: qdrant.PtrOf(threshold),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, wrap("search "+name, err)
	}
	hits := make([]models.ScoredPoint, 0, len(res))
	for _, sp := range res {
		hits = append(hits, models.ScoredPoint{
			ID:      pointID(sp.GetId()),
			Score:   sp.GetScore(),
			Payload: payloadMap(sp.GetPayload()),
		})
	}
	return vectorindex.Clamp(hits, topK, threshold), nil
}

func (q *Index) CollectionInfo(ctx context.Context, name string) (*models.CollectionInfo, error) {
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, wrap("collection info "+name, err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	return &models.CollectionInfo{
		Name:        name,
		PointsCount: info.GetPointsCount(),
		Dimension:   int(params.GetSize()),
		Metric:      params.GetDistance().String(),
	}, nil
}

func (q *Index) DropCollection(ctx context.Context, name string) error {
	if err := q.client.DeleteCollection(ctx, name); err != nil {
		return wrap("drop collection "+name, err)
	}
	return nil
}

func (q *Index) Close() error {
	return q.client.Close()
}

func distance(m vectorindex.Metric) qdrant.Distance {
	if m == vectorindex.Dot {
		return qdrant.Distance_Dot
	}
	return qdrant.Distance_Cosine
}

// wrap tags transport failures with models.ErrIndexUnavailable so callers can
// tell an unreachable index from a rejected request. A missing collection maps
// to vectorindex.ErrCollectionNotFound for every operation.
func wrap(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("qdrant %s: %w: %w", op, vectorindex.ErrCollectionNotFound, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Unauthenticated:
		return fmt.Errorf("qdrant %s: %w: %w", op, models.ErrIndexUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("qdrant %s: %w: %w", op, models.ErrIndexUnavailable, err)
	}
	return fmt.Errorf("qdrant %s: %w", op, err)
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return payloadMap(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = valueToAny(item)
		}
		return list
	default:
		return nil
	}
}
