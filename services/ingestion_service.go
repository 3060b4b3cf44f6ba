package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/docchat/logging"
	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/vectorindex"
)

// pointNamespace scopes the name-based point ids to this application.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("docchat/points"))

// PointID derives the id of a chunk's point. The run id keeps ids of a new
// ingestion distinct from the version it replaces.
func PointID(fileName, runID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, fmt.Appendf(nil, "%s|%s|%d", fileName, runID, chunkIndex)).String()
}

// IngestionOptions configures where and how chunks are written.
type IngestionOptions struct {
	Collection  string
	Metric      vectorindex.Metric
	BatchSize   int
	Concurrency int
}

// IngestionService turns documents into points in the vector index.
type IngestionService struct {
	extractor TextExtractor
	chunker   TextChunker
	embedder  Embedder
	index     *Lazy[vectorindex.Index]
	opts      IngestionOptions
	log       *logrus.Entry
	now       func() time.Time
}

func NewIngestionService(extractor TextExtractor, chunker TextChunker, embedder Embedder, index *Lazy[vectorindex.Index], opts IngestionOptions, log logrus.FieldLogger) *IngestionService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Metric == "" {
		opts.Metric = vectorindex.Cosine
	}
	return &IngestionService{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		opts:      opts,
		log:       logging.Component(log, "ingestion"),
		now:       time.Now,
	}
}

// Ingest replaces whatever the index holds for doc.FileName with the chunks of
// doc. Chunks that fail to embed are skipped and counted; any other failure
// aborts with an *models.IngestError naming the stage. Batches written before
// an abort stay in the index. The previous version is purged only once the
// first batch has points to write, so a document none of whose chunks embed
// leaves the old version in place.
func (s *IngestionService) Ingest(ctx context.Context, doc models.Document) (*models.IngestResult, error) {
	log := s.log.WithField("file", doc.FileName)

	text, err := s.extractor.Extract(doc.FileName, doc.Data)
	if err != nil {
		return nil, s.fail(doc.FileName, models.StageParsed, err)
	}

	idx, err := s.index.Get(ctx)
	if err != nil {
		return nil, s.fail(doc.FileName, models.StageCollection, err)
	}
	if err := idx.EnsureCollection(ctx, s.opts.Collection, s.embedder.Dimension(), s.opts.Metric); err != nil {
		return nil, s.fail(doc.FileName, models.StageCollection, err)
	}

	texts, err := s.chunker.Chunks(text)
	if err != nil {
		return nil, s.fail(doc.FileName, models.StageChunked, err)
	}
	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{Text: t, Index: i, SourceFileName: doc.FileName}
	}

	result := &models.IngestResult{
		FileName:      doc.FileName,
		RunID:         uuid.NewString(),
		ChunksCreated: len(chunks),
	}
	log = log.WithField("run", result.RunID)
	log.Infof("Split %s into %d chunks.", doc.FileName, len(chunks))
	if len(chunks) == 0 {
		result.FinishedAt = s.now()
		return result, nil
	}

	purged := false
	uploadedAt := s.now().UTC().Format(time.RFC3339)
	for start := 0; start < len(chunks); start += s.opts.BatchSize {
		batch := chunks[start:min(start+s.opts.BatchSize, len(chunks))]
		points, err := s.embedBatch(ctx, batch, result, uploadedAt, log)
		if err != nil {
			return nil, s.fail(doc.FileName, models.StageEmbedding, err)
		}
		if len(points) == 0 {
			continue
		}
		if !purged {
			if err := idx.DeleteByFilter(ctx, s.opts.Collection, models.PayloadFileName, doc.FileName); err != nil {
				log.WithError(err).Warn("could not purge previous version, continuing")
			}
			purged = true
		}
		if err := idx.Upsert(ctx, s.opts.Collection, points, true); err != nil {
			return nil, s.fail(doc.FileName, models.StageUpserted, err)
		}
		result.ChunksUpserted += len(points)
		log.Debugf("Upserted batch %d-%d.", batch[0].Index, batch[len(batch)-1].Index)
	}

	result.FinishedAt = s.now()
	if result.ChunksUpserted == 0 {
		log.WithField("failed", result.ChunksFailed).Warn("no chunk could be embedded, previous version kept")
		return result, nil
	}
	log.WithFields(logrus.Fields{
		"chunks":   result.ChunksCreated,
		"upserted": result.ChunksUpserted,
		"failed":   result.ChunksFailed,
	}).Info("document ingested")
	return result, nil
}

func (s *IngestionService) embedBatch(ctx context.Context, batch []models.Chunk, result *models.IngestResult, uploadedAt string, log *logrus.Entry) ([]models.Point, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	outcomes := EmbedBatch(ctx, s.embedder, texts, s.opts.Concurrency)

	points := make([]models.Point, 0, len(batch))
	for i, o := range outcomes {
		c := batch[i]
		if o.Err != nil {
			if errors.Is(o.Err, models.ErrDimensionMismatch) {
				return nil, o.Err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			result.ChunksFailed++
			log.WithError(o.Err).WithField("chunk", c.Index).Warn("skipping chunk that failed to embed")
			continue
		}
		points = append(points, models.Point{
			ID:     PointID(c.SourceFileName, result.RunID, c.Index),
			Vector: o.Vector,
			Payload: map[string]any{
				models.PayloadText:        c.Text,
				models.PayloadPageContent: c.Text,
				models.PayloadFileName:    c.SourceFileName,
				models.PayloadChunkIndex:  c.Index,
				models.PayloadUploadedAt:  uploadedAt,
				models.PayloadRunID:       result.RunID,
			},
		})
	}
	return points, nil
}

// Purge removes every point of fileName.
func (s *IngestionService) Purge(ctx context.Context, fileName string) error {
	idx, err := s.index.Get(ctx)
	if err != nil {
		return err
	}
	err = idx.DeleteByFilter(ctx, s.opts.Collection, models.PayloadFileName, fileName)
	if errors.Is(err, vectorindex.ErrCollectionNotFound) {
		return nil
	}
	return err
}

// DropCollection deletes the whole collection. The next ingestion recreates it.
func (s *IngestionService) DropCollection(ctx context.Context) error {
	idx, err := s.index.Get(ctx)
	if err != nil {
		return err
	}
	if err := idx.DropCollection(ctx, s.opts.Collection); err != nil {
		return fmt.Errorf("drop collection %s: %w", s.opts.Collection, err)
	}
	s.log.WithField("collection", s.opts.Collection).Info("collection dropped")
	return nil
}

func (s *IngestionService) fail(fileName string, stage models.IngestStage, err error) error {
	s.log.WithError(err).WithFields(logrus.Fields{"file": fileName, "stage": stage}).Error("ingestion failed")
	return &models.IngestError{FileName: fileName, Stage: stage, Err: err}
}
