package models

// OllamaEmbedRequest is the body of POST /api/embeddings on an Ollama server.
// KeepAlive controls how long the model stays loaded, e.g. "5m".
type OllamaEmbedRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

// OllamaEmbedResponse carries either the embedding or, on failure, the
// server's error message.
type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}
