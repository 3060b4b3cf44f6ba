package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/itish2003/docchat/config"
	"github.com/itish2003/docchat/logging"
	"github.com/itish2003/docchat/models"
	"github.com/itish2003/docchat/services"
	"github.com/itish2003/docchat/vectorindex"
	"github.com/itish2003/docchat/vectorindex/chroma"
	"github.com/itish2003/docchat/vectorindex/memory"
	"github.com/itish2003/docchat/vectorindex/qdrant"
)

// app holds the services shared by every command. It is built once the
// flags are parsed.
type app struct {
	cfg *config.Config
	log *logrus.Logger

	index  *services.Lazy[vectorindex.Index]
	gemini *services.Lazy[*genai.Client]

	ingestion *services.IngestionService
	retrieval *services.RetrievalService
	stats     *services.StatsService
	rag       services.RAGService
	indexer   *services.FileIndexingService
}

// load reads .env, the config file and the flags, then wires the services.
func (a *app) load(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	log.SetOutput(cmd.ErrOrStderr())

	if err := services.ConfigurePDFLicense(cfg.PDF.LicenseKey); err != nil {
		log.WithError(err).Warn("PDF processing will fail")
	}
	return a.wire(cfg, log)
}

func (a *app) wire(cfg *config.Config, log *logrus.Logger) error {
	a.cfg, a.log = cfg, log
	a.gemini = services.NewGeminiClient(cfg.Gemini.APIKey)
	a.index = newIndex(cfg)

	embedder, err := newEmbedder(cfg, a.gemini)
	if err != nil {
		return err
	}
	chunker, err := services.NewTextChunker(cfg.Chunker.Type, cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return err
	}
	metric, err := vectorindex.ParseMetric(cfg.Index.Metric)
	if err != nil {
		return err
	}

	a.ingestion = services.NewIngestionService(services.NewExtractor(), chunker, embedder, a.index, services.IngestionOptions{
		Collection:  cfg.Index.Collection,
		Metric:      metric,
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
	}, log)
	a.retrieval = services.NewRetrievalService(embedder, a.index, cfg.Index.Collection, log)
	a.stats = services.NewStatsService(a.index, cfg.Index.Collection, cfg.Embedding.Dimension, log)
	a.rag = services.NewRAGService(a.retrieval, services.NewGeminiGenerator(a.gemini, cfg.Gemini.ChatModel),
		cfg.Retrieval.TopK, cfg.Retrieval.ScoreThreshold, log)
	a.indexer = services.NewFileIndexingService(a.ingestion, log)
	return nil
}

// close releases the index connection if one was opened.
func (a *app) close() {
	if a.index == nil {
		return
	}
	if idx, ok := a.index.Peek(); ok {
		if err := idx.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close vector index")
		}
	}
}

func newIndex(cfg *config.Config) *services.Lazy[vectorindex.Index] {
	return services.NewLazy(func(ctx context.Context) (vectorindex.Index, error) {
		switch cfg.Index.Type {
		case "qdrant":
			return qdrant.New(qdrant.Config{
				Host:   cfg.Index.Qdrant.Host,
				Port:   cfg.Index.Qdrant.Port,
				APIKey: cfg.Index.Qdrant.APIKey,
				UseTLS: cfg.Index.Qdrant.UseTLS,
			})
		case "chroma":
			return chroma.New(cfg.Index.Chroma.URL)
		case "memory":
			return memory.New(), nil
		default:
			return nil, fmt.Errorf("unknown vector index: %s", cfg.Index.Type)
		}
	})
}

func newEmbedder(cfg *config.Config, gemini *services.Lazy[*genai.Client]) (services.Embedder, error) {
	e := cfg.Embedding
	switch e.Type {
	case "gemini":
		return services.NewGeminiEmbedder(gemini, e.Model, e.Dimension, e.RequestsPerSecond), nil
	case "ollama":
		client := &http.Client{Timeout: time.Duration(e.Ollama.TimeoutSecs) * time.Second}
		return services.NewOllamaEmbedder(client, e.Ollama.BaseURL, e.Model, e.Dimension, e.Ollama.MaxRetries), nil
	case "openai":
		key := os.Getenv(e.OpenAI.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%s: %w", e.OpenAI.APIKeyEnv, models.ErrMissingAPIKey)
		}
		return services.NewOpenAIEmbedder(key, e.OpenAI.BaseURL, e.Model, e.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", e.Type)
	}
}
