package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*OllamaEmbedding)(nil)
var _ driven.GenerationService = (*OllamaGeneration)(nil)

// OllamaEmbedding implements EmbeddingService against a local Ollama
// server via langchaingo
type OllamaEmbedding struct {
	model      string
	dimensions int
	embedder   *embeddings.EmbedderImpl
}

// Known dimensions for common Ollama embedding models
var ollamaModelDimensions = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

// NewOllamaEmbedding creates an embedding service backed by Ollama
func NewOllamaEmbedding(serverURL, model string) (driven.EmbeddingService, error) {
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}

	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	dimensions, ok := ollamaModelDimensions[model]
	if !ok {
		dimensions = 768
	}

	return &OllamaEmbedding{
		model:      model,
		dimensions: dimensions,
		embedder:   embedder,
	}, nil
}

// Embed generates embeddings for multiple texts
func (e *OllamaEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a search query
func (e *OllamaEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	return vector, nil
}

// Dimensions returns the embedding dimension size
func (e *OllamaEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OllamaEmbedding) Model() string {
	return e.model
}

// HealthCheck verifies the embedding service is available
func (e *OllamaEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases resources held by the embedding service
func (e *OllamaEmbedding) Close() error {
	return nil
}

// OllamaGeneration implements GenerationService against a local Ollama
// server via langchaingo
type OllamaGeneration struct {
	model string
	llm   *ollama.LLM
}

// NewOllamaGeneration creates a generation service backed by Ollama
func NewOllamaGeneration(serverURL, model string) (driven.GenerationService, error) {
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}

	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaGeneration{
		model: model,
		llm:   llm,
	}, nil
}

// Generate returns the model's completion for the prompt
func (g *OllamaGeneration) Generate(ctx context.Context, prompt string) (string, error) {
	res, err := g.llm.GenerateContent(ctx, []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}, llms.WithTemperature(0.1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion returned", domain.ErrGeneration)
	}
	return res.Choices[0].Content, nil
}

// Model returns the model name being used
func (g *OllamaGeneration) Model() string {
	return g.model
}

// Ping verifies the generation service is available
func (g *OllamaGeneration) Ping(ctx context.Context) error {
	_, err := llms.GenerateFromSinglePrompt(ctx, g.llm, "ping")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	return nil
}

// Close releases resources held by the generation service
func (g *OllamaGeneration) Close() error {
	return nil
}
