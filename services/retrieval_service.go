package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/itish2003/docchat/logging"
	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/vectorindex"
)

const (
	DefaultTopK           = 5
	DefaultScoreThreshold = 0.5

	passageSeparator = "\n\n---\n\n"
)

// textFields lists the payload keys that may hold a chunk's text, in order of
// preference. Points written by older ingesters only carry some of them.
var textFields = []string{models.PayloadPageContent, models.PayloadText, "content"}

// Retriever finds the passages relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, threshold float32) (*models.RetrievedContext, error)
}

// RetrievalService embeds a query and searches the collection with it.
type RetrievalService struct {
	embedder   Embedder
	index      *Lazy[vectorindex.Index]
	collection string
	log        *logrus.Entry
}

func NewRetrievalService(embedder Embedder, index *Lazy[vectorindex.Index], collection string, log logrus.FieldLogger) *RetrievalService {
	return &RetrievalService{
		embedder:   embedder,
		index:      index,
		collection: collection,
		log:        logging.Component(log, "retrieval"),
	}
}

// Retrieve returns the passages scoring at least threshold, best first, at
// most topK of them. It returns nil when nothing qualifies. A non-positive
// topK selects the default.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, topK int, threshold float32) (*models.RetrievedContext, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query text: %w", err)
	}
	if err := checkDimension(s.embedder, vector); err != nil {
		return nil, err
	}

	idx, err := s.index.Get(ctx)
	if err != nil {
		return nil, err
	}
	hits, err := idx.Search(ctx, s.collection, vector, topK, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", s.collection, err)
	}
	hits = vectorindex.Clamp(hits, topK, threshold)

	passages := make([]models.Passage, 0, len(hits))
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		text := PayloadText(h.Payload)
		if text == "" {
			s.log.WithField("point", h.ID).Warn("search hit has no text, skipping")
			continue
		}
		fileName, _ := h.Payload[models.PayloadFileName].(string)
		passages = append(passages, models.Passage{Text: text, Score: h.Score, FileName: fileName})
		texts = append(texts, text)
	}
	s.log.Debugf("Retrieved %d passages", len(passages))
	if len(passages) == 0 {
		return nil, nil
	}
	return &models.RetrievedContext{
		Text:     strings.Join(texts, passageSeparator),
		Passages: passages,
	}, nil
}

// PayloadText returns the first non-empty text field of a point payload,
// falling back to metadata.pageContent.
func PayloadText(payload map[string]any) string {
	for _, key := range textFields {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	if meta, ok := payload["metadata"].(map[string]any); ok {
		if s, ok := meta[models.PayloadPageContent].(string); ok {
			return s
		}
	}
	return ""
}
