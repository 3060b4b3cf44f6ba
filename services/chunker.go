package services

import (
	"fmt"
	"iter"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/itish2003/docchat/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// TextChunker turns extracted document text into ordered, non-empty chunks.
type TextChunker interface {
	Chunks(text string) ([]string, error)
}

// Chunker splits text into fixed-size overlapping windows measured in runes.
type Chunker struct {
	size    int
	overlap int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the window size in runes.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) { c.size = size }
}

// WithChunkOverlap sets how many runes consecutive windows share.
func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) { c.overlap = overlap }
}

// NewChunker validates the window parameters up front: an overlap that is not
// strictly smaller than the size would never advance.
func NewChunker(opts ...ChunkerOption) (*Chunker, error) {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if err := validateWindow(c.size, c.overlap); err != nil {
		return nil, err
	}
	return c, nil
}

func validateWindow(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("chunk size %d, overlap %d: %w", size, overlap, models.ErrInvalidChunking)
	}
	return nil
}

// Windows yields the trimmed, non-empty windows of text. Each window starts
// size-overlap runes after the previous one; iteration stops after the window
// that reaches the end of the text.
func (c *Chunker) Windows(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		n := len(runes)
		step := c.size - c.overlap
		for start := 0; start < n; start += step {
			end := min(start+c.size, n)
			if w := strings.TrimSpace(string(runes[start:end])); w != "" {
				if !yield(w) {
					return
				}
			}
			if end == n {
				return
			}
		}
	}
}

// Split collects Windows.
func (c *Chunker) Split(text string) []string {
	var out []string
	for w := range c.Windows(text) {
		out = append(out, w)
	}
	return out
}

func (c *Chunker) Chunks(text string) ([]string, error) {
	return c.Split(text), nil
}

// RecursiveChunker splits on paragraph, line and word boundaries before
// falling back to characters, keeping chunks under the configured size.
type RecursiveChunker struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &RecursiveChunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

func (r *RecursiveChunker) Chunks(text string) ([]string, error) {
	parts, err := r.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("recursive split: %w", err)
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// NewTextChunker builds the chunker named by kind ("fixed" or "recursive").
func NewTextChunker(kind string, size, overlap int) (TextChunker, error) {
	switch kind {
	case "", "fixed":
		return NewChunker(WithChunkSize(size), WithChunkOverlap(overlap))
	case "recursive":
		return NewRecursiveChunker(size, overlap)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", kind)
	}
}
