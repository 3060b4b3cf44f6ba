package models

import "time"

// Payload keys written by the ingestion pipeline.
const (
	PayloadText        = "text"
	PayloadPageContent = "pageContent"
	PayloadFileName    = "fileName"
	PayloadChunkIndex  = "chunkIndex"
	PayloadUploadedAt  = "uploadedAt"
	PayloadRunID       = "runId"
)

// Document is a named blob submitted for ingestion. FileName is the key used
// to purge a previous version of the same file.
type Document struct {
	FileName string
	Data     []byte
}

// Chunk is a contiguous, trimmed substring of a document's text.
type Chunk struct {
	Text           string
	Index          int
	SourceFileName string
}

// Point is the persisted unit in the vector index.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit. Score is the similarity under the
// collection's metric, higher is closer.
type ScoredPoint struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Passage is the text of a retrieved chunk together with its score.
type Passage struct {
	Text     string  `json:"text"`
	Score    float32 `json:"score"`
	FileName string  `json:"fileName,omitempty"`
}

// RetrievedContext holds the passages that survived the threshold, in
// descending score order, and their concatenation.
type RetrievedContext struct {
	Text     string
	Passages []Passage
}

// CollectionInfo is the index metadata read by the stats reporter.
type CollectionInfo struct {
	Name        string
	PointsCount uint64
	Dimension   int
	Metric      string
}

// IngestResult summarises one ingestion call. ChunksUpserted lower than
// ChunksCreated means some chunks failed to embed.
type IngestResult struct {
	FileName       string    `json:"fileName"`
	RunID          string    `json:"runId"`
	ChunksCreated  int       `json:"chunksCreated"`
	ChunksUpserted int       `json:"chunksUpserted"`
	ChunksFailed   int       `json:"chunksFailed"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// Degraded reports whether any chunk was dropped.
func (r *IngestResult) Degraded() bool {
	return r.ChunksUpserted < r.ChunksCreated
}

// Stats is the observability view of the collection. Error is set when the
// index could not be reached and the other fields are defaults.
type Stats struct {
	TotalPoints     uint64 `json:"totalChunks"`
	VectorDimension int    `json:"vectorSize"`
	HasData         bool   `json:"hasData"`
	CollectionName  string `json:"collectionName"`
	Error           string `json:"error,omitempty"`
}
