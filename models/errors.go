package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChunking is returned when chunk size and overlap would not
	// make progress through the text.
	ErrInvalidChunking = errors.New("invalid chunk size or overlap")

	// ErrDimensionMismatch is returned when a vector or an existing collection
	// does not have the configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	ErrMissingAPIKey = errors.New("missing API key")

	// ErrUnsupportedDocument is returned for file types the extractor cannot read.
	ErrUnsupportedDocument = errors.New("unsupported document type")

	ErrEmptyMessage = errors.New("message is required")

	// ErrIndexUnavailable wraps transport failures from the vector index.
	ErrIndexUnavailable = errors.New("vector index unavailable")
)

// IngestStage names the step of the ingestion pipeline.
type IngestStage string

const (
	StageParsed      IngestStage = "parsed"
	StageCollection  IngestStage = "collection"
	StageChunked     IngestStage = "chunked"
	StageStalePurged IngestStage = "stale_purged"
	StageEmbedding   IngestStage = "embedding"
	StageUpserted    IngestStage = "upserted"
	StageDone        IngestStage = "done"
)

// IngestError is the single aggregated failure of an ingestion call. Stage is
// the step that failed.
type IngestError struct {
	FileName string
	Stage    IngestStage
	Err      error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("failed to process %s at stage %s: %v", e.FileName, e.Stage, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }
