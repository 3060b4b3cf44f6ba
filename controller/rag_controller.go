package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/itish2003/docchat/logging"
	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/services"
)

// Ingester accepts an uploaded document.
type Ingester interface {
	Ingest(ctx context.Context, doc models.Document) (*models.IngestResult, error)
}

// StatsReporter describes the collection.
type StatsReporter interface {
	Stats(ctx context.Context) models.Stats
}

// RAGController handles the HTTP requests for the chat API. It depends on the
// services to perform the actual business logic.
type RAGController struct {
	ingester       Ingester
	stats          StatsReporter
	ragService     services.RAGService
	maxUploadBytes int64
	log            *logrus.Entry
}

// NewRAGController is called from the serve command to inject the service
// dependencies.
func NewRAGController(ingester Ingester, stats StatsReporter, ragService services.RAGService, maxUploadMB int64, log logrus.FieldLogger) *RAGController {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &RAGController{
		ingester:       ingester,
		stats:          stats,
		ragService:     ragService,
		maxUploadBytes: maxUploadMB << 20,
		log:            logging.Component(log, "server"),
	}
}

// Health is the handler for GET /api/health.
func (c *RAGController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Message:   "BGE ELECTRIQUE Chatbot API is running",
		Timestamp: time.Now().UTC(),
	})
}

// UploadPDF is the handler for POST /api/pdf/upload. The document comes in
// the multipart field "pdf" and may be a PDF or plain text.
func (c *RAGController) UploadPDF(ctx *gin.Context) {
	limit := c.maxUploadBytes + 1<<20
	if ctx.Request.ContentLength > limit {
		ctx.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "File too large"})
		return
	}
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit)

	fh, err := ctx.FormFile("pdf")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			ctx.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "File too large"})
			return
		}
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "No PDF file uploaded"})
		return
	}
	if fh.Size > c.maxUploadBytes {
		ctx.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "File too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Could not read upload", Message: err.Error()})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Could not read upload", Message: err.Error()})
		return
	}

	mt := mimetype.Detect(data)
	if !mt.Is("application/pdf") && !mt.Is("text/plain") {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Only PDF files are allowed", Message: "detected " + mt.String()})
		return
	}

	fileName := filepath.Base(fh.Filename)
	c.log.WithField("file", fileName).Info("Processing upload")
	result, err := c.ingester.Ingest(ctx.Request.Context(), models.Document{FileName: fileName, Data: data})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrUnsupportedDocument) {
			status = http.StatusBadRequest
		}
		_ = ctx.Error(err)
		ctx.JSON(status, models.ErrorResponse{Error: "Failed to process PDF", Message: err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, models.UploadResponse{
		Message:  "PDF processed successfully",
		FileName: fileName,
		Chunks:   result.ChunksUpserted,
		Success:  true,
	})
}

// Stats is the handler for GET /api/pdf/stats.
func (c *RAGController) Stats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.stats.Stats(ctx.Request.Context()))
}

// ChatMessage is the handler for POST /api/chat/message.
func (c *RAGController) ChatMessage(ctx *gin.Context) {
	var req models.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	response, err := c.ragService.Answer(ctx.Request.Context(), req)
	switch {
	case errors.Is(err, models.ErrEmptyMessage):
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Message is required"})
		return
	case err != nil:
		_ = ctx.Error(err)
		ctx.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to generate response", Message: err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, response)
}

// ChatStream is the handler for POST /api/chat/stream. Fragments are sent as
// server-sent events carrying {"text": ...} and the stream ends with [DONE].
func (c *RAGController) ChatStream(ctx *gin.Context) {
	var req models.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		ctx.Header("Content-Type", "text/event-stream")
		ctx.Header("Cache-Control", "no-cache")
		ctx.Header("Connection", "keep-alive")
		ctx.Status(http.StatusOK)
	}
	emit := func(text string) error {
		start()
		frame, err := json.Marshal(gin.H{"text": text})
		if err != nil {
			return err
		}
		return writeEvent(ctx, string(frame))
	}

	_, err := c.ragService.Stream(ctx.Request.Context(), req, emit)
	switch {
	case errors.Is(err, models.ErrEmptyMessage):
		ctx.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Message is required"})
		return
	case err != nil && !started:
		_ = ctx.Error(err)
		ctx.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to stream response"})
		return
	case err != nil:
		_ = ctx.Error(err)
		_ = writeEvent(ctx, `{"error":"Failed to stream response"}`)
		return
	}
	start()
	_ = writeEvent(ctx, "[DONE]")
}

func writeEvent(ctx *gin.Context, data string) error {
	if _, err := fmt.Fprintf(ctx.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	ctx.Writer.Flush()
	return nil
}
