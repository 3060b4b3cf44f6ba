package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/itish2003/docchat/models"
)

// NewGeminiClient returns a shared Gemini client handle that connects on
// first use.
func NewGeminiClient(apiKey string) *Lazy[*genai.Client] {
	return NewLazy(func(ctx context.Context) (*genai.Client, error) {
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY: %w", models.ErrMissingAPIKey)
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		return client, nil
	})
}

// GeminiEmbedder embeds text with a Gemini embedding model. Requests are
// throttled to the configured rate.
type GeminiEmbedder struct {
	client    *Lazy[*genai.Client]
	model     string
	dimension int
	limiter   *rate.Limiter
}

func NewGeminiEmbedder(client *Lazy[*genai.Client], model string, dimension int, requestsPerSecond float64) *GeminiEmbedder {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &GeminiEmbedder{
		client:    client,
		model:     model,
		dimension: dimension,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func (g *GeminiEmbedder) Name() string   { return "gemini" }
func (g *GeminiEmbedder) Dimension() int { return g.dimension }

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	client, err := g.client.Get(ctx)
	if err != nil {
		return nil, err
	}
	dim := int32(g.dimension)
	resp, err := client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini returned no embedding")
	}
	vec := resp.Embeddings[0].Values
	if err := checkDimension(g, vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// Generator produces a model answer for a fully assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error]
}

// GeminiGenerator answers prompts with a Gemini chat model.
type GeminiGenerator struct {
	client *Lazy[*genai.Client]
	model  string
}

func NewGeminiGenerator(client *Lazy[*genai.Client], model string) *GeminiGenerator {
	return &GeminiGenerator{client: client, model: model}
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := g.client.Get(ctx)
	if err != nil {
		return "", err
	}
	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "I'm sorry, I couldn't generate a response.", nil
	}
	var responseText strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" {
			responseText.WriteString(p.Text)
		}
	}
	return responseText.String(), nil
}

func (g *GeminiGenerator) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		client, err := g.client.Get(ctx)
		if err != nil {
			yield("", err)
			return
		}
		for resp, err := range client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), nil) {
			if err != nil {
				yield("", fmt.Errorf("gemini stream failed: %w", err))
				return
			}
			if text := resp.Text(); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}
