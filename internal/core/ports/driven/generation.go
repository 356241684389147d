package driven

import (
	"context"
)

// GenerationService produces answer text from a prompt. Treated as a
// black box: potentially slow, rate-limited, retryable on transient
// failure, fatal on auth failure.
type GenerationService interface {
	// Generate returns the model's completion for the prompt
	Generate(ctx context.Context, prompt string) (string, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the generation service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the generation service
	Close() error
}
