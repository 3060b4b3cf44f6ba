package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/docchat/models"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValidWithKey(t *testing.T) {
	cfg := Default()
	cfg.Gemini.APIKey = "k"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.Chunker.Size)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 10, cfg.Embedding.BatchSize)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.5, cfg.Retrieval.ScoreThreshold, 1e-9)
}

func TestValidate_MissingGeminiKey(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMissingAPIKey)
}

func TestValidate_OllamaNeedsNoKey(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Type = "ollama"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ChunkOverlap(t *testing.T) {
	for _, tc := range []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Embedding.Type = "ollama"
			cfg.Chunker.Size, cfg.Chunker.Overlap = tc.size, tc.overlap
			assert.ErrorIs(t, cfg.Validate(), models.ErrInvalidChunking)
		})
	}
}

func TestValidate_UnknownBackends(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Type = "ollama"
	cfg.Index.Type = "pinecone"
	assert.EqualError(t, cfg.Validate(), "unknown vector index: pinecone")

	cfg = Default()
	cfg.Embedding.Type = "word2vec"
	assert.EqualError(t, cfg.Validate(), "unknown embedder: word2vec")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"GOOGLE_API_KEY":         "google",
		"PORT":                   "9090",
		"ALLOWED_ORIGINS":        "https://a.example, https://b.example,",
		"QDRANT_URL":             "https://xyz.cloud.qdrant.io:6333",
		"QDRANT_API_KEY":         "qk",
		"QDRANT_COLLECTION_NAME": "docs",
	}))
	require.NoError(t, err)

	assert.Equal(t, "google", cfg.Gemini.APIKey)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "xyz.cloud.qdrant.io", cfg.Index.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Index.Qdrant.Port)
	assert.True(t, cfg.Index.Qdrant.UseTLS)
	assert.Equal(t, "qk", cfg.Index.Qdrant.APIKey)
	assert.Equal(t, "docs", cfg.Index.Collection)
}

func TestApplyEnv_GeminiKeyWins(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.applyEnv(envMap(map[string]string{
		"GEMINI_API_KEY": "gemini",
		"GOOGLE_API_KEY": "google",
	})))
	assert.Equal(t, "gemini", cfg.Gemini.APIKey)
}

func TestParseQdrantURL(t *testing.T) {
	host, port, tls, err := ParseQdrantURL("http://localhost:6333")
	require.NoError(t, err)
	assert.Equal(t, "localhost", host)
	assert.Equal(t, 6334, port)
	assert.False(t, tls)

	_, port, _, err = ParseQdrantURL("http://qdrant:7000")
	require.NoError(t, err)
	assert.Equal(t, 7000, port)

	_, _, _, err = ParseQdrantURL("not a url")
	assert.Error(t, err)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("QDRANT_URL", "")
	t.Setenv("QDRANT_COLLECTION_NAME", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunker:
  size: 400
  overlap: 50
embedding:
  type: ollama
  model: nomic-embed-text:v1.5
index:
  type: memory
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Chunker.Size)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	assert.Equal(t, "fixed", cfg.Chunker.Type)
	assert.Equal(t, "ollama", cfg.Embedding.Type)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, "memory", cfg.Index.Type)
	assert.Equal(t, "bge_electrique_docs", cfg.Index.Collection)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "qdrant", cfg.Index.Type)
}
