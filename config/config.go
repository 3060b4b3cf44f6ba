// Package config loads docchat settings from an optional YAML file and
// overlays the environment variables the deployment is configured with.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/itish2003/docchat/models"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadMB    int64    `yaml:"max_upload_mb"`
}

// LogConfig selects the log level and output format (text or json).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChunkerConfig configures how extracted text is split.
type ChunkerConfig struct {
	Type    string `yaml:"type"`
	Size    int    `yaml:"size"`
	Overlap int    `yaml:"overlap"`
}

// OllamaConfig contains connection details for a local Ollama server.
type OllamaConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Type              string       `yaml:"type"`
	Model             string       `yaml:"model"`
	Dimension         int          `yaml:"dimension"`
	BatchSize         int          `yaml:"batch_size"`
	Concurrency       int          `yaml:"concurrency"`
	RequestsPerSecond float64      `yaml:"requests_per_second"`
	Ollama            OllamaConfig `yaml:"ollama"`
	OpenAI            OpenAIConfig `yaml:"openai"`
}

// GeminiConfig holds the Google Gemini credentials and chat model.
type GeminiConfig struct {
	APIKey    string `yaml:"api_key"`
	ChatModel string `yaml:"chat_model"`
}

// QdrantConfig contains connection details for the Qdrant gRPC API.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// ChromaConfig contains connection details for a Chroma server.
type ChromaConfig struct {
	URL string `yaml:"url"`
}

// IndexConfig selects the vector database and names the collection.
type IndexConfig struct {
	Type       string       `yaml:"type"`
	Collection string       `yaml:"collection"`
	Metric     string       `yaml:"metric"`
	Qdrant     QdrantConfig `yaml:"qdrant"`
	Chroma     ChromaConfig `yaml:"chroma"`
}

// RetrievalConfig holds the similarity search defaults.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float32 `yaml:"score_threshold"`
}

// PDFConfig holds the UniPDF metered license key.
type PDFConfig struct {
	LicenseKey string `yaml:"license_key"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	PDF       PDFConfig       `yaml:"pdf"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "3000",
			AllowedOrigins: []string{"http://localhost:5500", "http://localhost:8000", "http://127.0.0.1:5500"},
			MaxUploadMB:    50,
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Chunker: ChunkerConfig{Type: "fixed", Size: 1000, Overlap: 200},
		Embedding: EmbeddingConfig{
			Type:              "gemini",
			Model:             "text-embedding-004",
			Dimension:         768,
			BatchSize:         10,
			Concurrency:       4,
			RequestsPerSecond: 10,
			Ollama:            OllamaConfig{BaseURL: "http://localhost:11434", TimeoutSecs: 30, MaxRetries: 3},
			OpenAI:            OpenAIConfig{BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
		},
		Gemini: GeminiConfig{ChatModel: "gemini-1.5-flash"},
		Index: IndexConfig{
			Type:       "qdrant",
			Collection: "bge_electrique_docs",
			Metric:     "cosine",
			Qdrant:     QdrantConfig{Host: "localhost", Port: 6334},
			Chroma:     ChromaConfig{URL: "http://localhost:8000"},
		},
		Retrieval: RetrievalConfig{TopK: 5, ScoreThreshold: 0.5},
	}
}

// Load reads the config at path, overlays the environment and validates the
// result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", filepath.Base(path), err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("GEMINI_API_KEY"); ok && v != "" {
		c.Gemini.APIKey = v
	} else if v, ok := lookup("GOOGLE_API_KEY"); ok && v != "" {
		c.Gemini.APIKey = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Port = v
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("QDRANT_URL"); ok && v != "" {
		host, port, tls, err := ParseQdrantURL(v)
		if err != nil {
			return err
		}
		c.Index.Qdrant.Host, c.Index.Qdrant.Port, c.Index.Qdrant.UseTLS = host, port, tls
	}
	if v, ok := lookup("QDRANT_API_KEY"); ok && v != "" {
		c.Index.Qdrant.APIKey = v
	}
	if v, ok := lookup("QDRANT_COLLECTION_NAME"); ok && v != "" {
		c.Index.Collection = v
	}
	if v, ok := lookup("CHROMA_URL"); ok && v != "" {
		c.Index.Chroma.URL = v
	}
	if v, ok := lookup("UNIDOC_LICENSE_KEY"); ok && v != "" {
		c.PDF.LicenseKey = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// ParseQdrantURL turns a Qdrant URL such as https://xyz.cloud.qdrant.io:6333
// into gRPC connection parameters. The REST port 6333 maps to the gRPC port
// 6334; a URL without a port uses 6334.
func ParseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("invalid QDRANT_URL %q", raw)
	}
	host = u.Hostname()
	useTLS = u.Scheme == "https"
	port = 6334
	if p := u.Port(); p != "" && p != "6333" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid QDRANT_URL port %q: %w", p, err)
		}
	}
	if host == "" {
		return "", 0, false, fmt.Errorf("invalid QDRANT_URL %q", raw)
	}
	return host, port, useTLS, nil
}

// Validate rejects configurations that would fail later, before any I/O.
func (c *Config) Validate() error {
	if c.Chunker.Size <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunker size %d overlap %d: %w", c.Chunker.Size, c.Chunker.Overlap, models.ErrInvalidChunking)
	}
	switch c.Chunker.Type {
	case "fixed", "recursive":
	default:
		return fmt.Errorf("unknown chunker: %s", c.Chunker.Type)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Embedding.Concurrency <= 0 {
		return fmt.Errorf("embedding concurrency must be positive, got %d", c.Embedding.Concurrency)
	}
	switch c.Embedding.Type {
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY: %w", models.ErrMissingAPIKey)
		}
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedding.Type)
	}
	switch c.Index.Type {
	case "qdrant", "chroma", "memory":
	default:
		return fmt.Errorf("unknown vector index: %s", c.Index.Type)
	}
	if c.Index.Collection == "" {
		return errors.New("collection name is required")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.ScoreThreshold < -1 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("retrieval score_threshold %v outside [-1, 1]", c.Retrieval.ScoreThreshold)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
