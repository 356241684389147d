package mocks

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/custodia-labs/docvault-core/internal/core/domain"
)

const mockDimensions = 64

// MockEmbedding is a deterministic EmbeddingService for testing. It
// embeds text as a normalized bag-of-words histogram, so texts sharing
// words score closer in cosine similarity - enough to make retrieval
// tests meaningful without a live model.
type MockEmbedding struct {
	mu sync.Mutex

	// Calls counts Embed/EmbedQuery invocations.
	Calls int

	// FailCalls makes the next N embedding calls fail with ErrEmbedding.
	FailCalls int
}

// NewMockEmbedding creates a new MockEmbedding
func NewMockEmbedding() *MockEmbedding {
	return &MockEmbedding{}
}

func (m *MockEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.Calls++
	if m.FailCalls > 0 {
		m.FailCalls--
		m.mu.Unlock()
		return nil, domain.ErrEmbedding
	}
	m.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedText(t)
	}
	return out, nil
}

func (m *MockEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := m.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *MockEmbedding) Dimensions() int { return mockDimensions }

func (m *MockEmbedding) Model() string { return "mock-bow" }

func (m *MockEmbedding) HealthCheck(ctx context.Context) error { return nil }

func (m *MockEmbedding) Close() error { return nil }

func embedText(text string) []float32 {
	vec := make([]float32, mockDimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%mockDimensions]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec
}
