package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/itish2003/docchat/models"
)

// OllamaEmbedder calls the /api/embeddings endpoint of a local Ollama server.
type OllamaEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dimension  int
	maxRetries int
	backoff    func(attempt int) time.Duration
}

func NewOllamaEmbedder(httpClient *http.Client, baseURL, model string, dimension, maxRetries int) *OllamaEmbedder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OllamaEmbedder{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimension:  dimension,
		maxRetries: maxRetries,
		backoff:    retryDelay,
	}
}

func (o *OllamaEmbedder) Name() string   { return "ollama" }
func (o *OllamaEmbedder) Dimension() int { return o.dimension }

// Embed retries transport errors, 429 and 5xx responses with exponential
// backoff. A Retry-After header in seconds overrides the backoff.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(models.OllamaEmbedRequest{
		Model:  o.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, o.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		vec, retryAfter, retry, err := o.embedOnce(ctx, reqBody)
		if err == nil {
			if len(vec) != o.dimension {
				return nil, fmt.Errorf("ollama returned %d values, want %d: %w", len(vec), o.dimension, models.ErrDimensionMismatch)
			}
			return vec, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			return nil, err
		}
		if retryAfter > 0 && attempt < o.maxRetries {
			if err := sleepCtx(ctx, retryAfter); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (o *OllamaEmbedder) embedOnce(ctx context.Context, body []byte) (vec []float32, retryAfter time.Duration, retry bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, true, fmt.Errorf("failed to call ollama embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		retry = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
		msg := strings.TrimSpace(string(bodyBytes))
		var errResp models.OllamaEmbedResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return nil, retryAfter, retry, fmt.Errorf("ollama api returned non-200 status: %d: %s", resp.StatusCode, msg)
	}

	var ollamaResp models.OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, 0, true, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if ollamaResp.Error != "" {
		return nil, 0, false, fmt.Errorf("ollama: %s", ollamaResp.Error)
	}
	return ollamaResp.Embedding, 0, false, nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
