package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Ensure OpenAIGeneration implements GenerationService
var _ driven.GenerationService = (*OpenAIGeneration)(nil)

// OpenAIGeneration implements GenerationService using OpenAI's chat
// completions API
type OpenAIGeneration struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	client      *http.Client
	limiter     *rate.Limiter
}

// NewOpenAIGeneration creates a new OpenAI generation service
func NewOpenAIGeneration(apiKey, model, baseURL string, requestsPerSecond float64) (driven.GenerationService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &OpenAIGeneration{
		apiKey:      apiKey,
		model:       model,
		baseURL:     baseURL,
		temperature: 0.1,
		limiter:     limiter,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Generate returns the model's completion for the prompt
func (g *OpenAIGeneration) Generate(ctx context.Context, prompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
		}
	}

	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: g.temperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %v", domain.ErrGeneration, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", domain.ErrGeneration, err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", domain.ErrGeneration, err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: OpenAI API error: %s (type: %s, code: %s)",
			domain.ErrGeneration, chatResp.Error.Message, chatResp.Error.Type, chatResp.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: OpenAI API returned status %d", domain.ErrGeneration, resp.StatusCode)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion returned", domain.ErrGeneration)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Model returns the model name being used
func (g *OpenAIGeneration) Model() string {
	return g.model
}

// Ping verifies the generation service is available
func (g *OpenAIGeneration) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", g.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: models endpoint returned status %d", domain.ErrGeneration, resp.StatusCode)
	}
	return nil
}

// Close releases resources held by the generation service
func (g *OpenAIGeneration) Close() error {
	g.client.CloseIdleConnections()
	return nil
}
