package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itish2003/docchat/logging"
	"github.com/itish2003/docchat/models"
)

// RAGService answers chat messages using retrieved document context.
type RAGService interface {
	Answer(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
	Stream(ctx context.Context, req models.ChatRequest, emit func(text string) error) (hasContext bool, err error)
}

// ragServiceImpl holds the dependencies it needs to do its job
type ragServiceImpl struct {
	retriever Retriever
	generator Generator
	topK      int
	threshold float32
	log       *logrus.Entry
	now       func() time.Time
}

// NewRAGService creates a new RAG service instance
func NewRAGService(retriever Retriever, generator Generator, topK int, threshold float32, log logrus.FieldLogger) RAGService {
	return &ragServiceImpl{
		retriever: retriever,
		generator: generator,
		topK:      topK,
		threshold: threshold,
		log:       logging.Component(log, "chat"),
		now:       time.Now,
	}
}

func (r *ragServiceImpl) Answer(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, models.ErrEmptyMessage
	}

	contextText := r.lookupContext(ctx, message)
	answer, err := r.generator.Generate(ctx, BuildPrompt(message, contextText))
	if err != nil {
		return nil, fmt.Errorf("could not generate response: %w", err)
	}

	return &models.ChatResponse{
		Response:   answer,
		ChatID:     req.ChatID,
		Timestamp:  r.now().UTC(),
		HasContext: contextText != "",
	}, nil
}

// Stream calls emit for each generated fragment in order. An error from emit
// stops generation and is returned.
func (r *ragServiceImpl) Stream(ctx context.Context, req models.ChatRequest, emit func(text string) error) (bool, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return false, models.ErrEmptyMessage
	}

	contextText := r.lookupContext(ctx, message)
	hasContext := contextText != ""
	for text, err := range r.generator.GenerateStream(ctx, BuildStreamPrompt(message, contextText)) {
		if err != nil {
			return hasContext, fmt.Errorf("could not stream response: %w", err)
		}
		if err := emit(text); err != nil {
			return hasContext, err
		}
	}
	return hasContext, nil
}

// lookupContext returns the retrieved text for message. Retrieval failures only
// cost the answer its context.
func (r *ragServiceImpl) lookupContext(ctx context.Context, message string) string {
	retrieved, err := r.retriever.Retrieve(ctx, message, r.topK, r.threshold)
	if err != nil {
		r.log.WithError(err).Warn("retrieval failed, answering without context")
		return ""
	}
	if retrieved == nil {
		r.log.Debug("no relevant passages")
		return ""
	}
	r.log.Debugf("Using %d passages as context", len(retrieved.Passages))
	return retrieved.Text
}
