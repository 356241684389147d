package ai

import (
	"fmt"

	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// EmbeddingConfig holds configuration for creating an embedding service
type EmbeddingConfig struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerSecond float64
}

// GenerationConfig holds configuration for creating a generation service
type GenerationConfig struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerSecond float64
}

// NewEmbeddingService creates an embedding service for the configured provider
func NewEmbeddingService(cfg EmbeddingConfig) (driven.EmbeddingService, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedding(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.RequestsPerSecond)
	case "ollama":
		return NewOllamaEmbedding(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// NewGenerationService creates a generation service for the configured provider
func NewGenerationService(cfg GenerationConfig) (driven.GenerationService, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIGeneration(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.RequestsPerSecond)
	case "ollama":
		return NewOllamaGeneration(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
}
