package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

// MockGeneration is a canned GenerationService for testing
type MockGeneration struct {
	mu sync.Mutex

	// Response is returned from Generate when no error is pending.
	Response string

	// Prompts records every prompt passed to Generate.
	Prompts []string

	// FailCalls makes the next N Generate calls fail with ErrGeneration.
	FailCalls int
}

// NewMockGeneration creates a new MockGeneration
func NewMockGeneration(response string) *MockGeneration {
	return &MockGeneration{Response: response}
}

func (m *MockGeneration) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	if m.FailCalls > 0 {
		m.FailCalls--
		return "", domain.ErrGeneration
	}
	return m.Response, nil
}

func (m *MockGeneration) Model() string { return "mock-gen" }

func (m *MockGeneration) Ping(ctx context.Context) error { return nil }

func (m *MockGeneration) Close() error { return nil }
