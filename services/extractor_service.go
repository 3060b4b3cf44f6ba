package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/itish2003/docchat/models"
)

// ConfigurePDFLicense registers the UniPDF metered key. Without it PDF
// extraction fails at parse time.
func ConfigurePDFLicense(key string) error {
	if key == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("failed to set unidoc license key: %w", err)
	}
	return nil
}

// TextExtractor turns an uploaded document into plain text.
type TextExtractor interface {
	Extract(fileName string, data []byte) (string, error)
}

// Extractor reads PDF, plain text and markdown documents.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// Extract picks the reader by file extension and falls back to sniffing the
// content when the extension is unknown.
func (e *Extractor) Extract(fileName string, data []byte) (string, error) {
	switch kind := documentKind(fileName, data); kind {
	case "text":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s is not valid UTF-8: %w", fileName, models.ErrUnsupportedDocument)
		}
		return string(data), nil
	case "pdf":
		return extractTextFromPDF(data)
	default:
		return "", fmt.Errorf("%s: %w", fileName, models.ErrUnsupportedDocument)
	}
}

// ExtractFile reads path from disk and extracts it.
func (e *Extractor) ExtractFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return e.Extract(path, data)
}

func documentKind(fileName string, data []byte) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".md":
		return "text"
	case ".pdf":
		return "pdf"
	}
	if len(data) == 0 {
		return ""
	}
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return "pdf"
	case mt.Is("text/plain"):
		return "text"
	}
	return ""
}

// IsSupportedFile reports whether the directory indexer should pick up path.
func IsSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	default:
		return false
	}
}

// extractTextFromPDF uses UniPDF to get all text from a PDF, one blank line
// between pages.
func extractTextFromPDF(data []byte) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}

		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}

		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}
