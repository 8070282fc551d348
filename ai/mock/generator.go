package mock

import (
	"context"
	"sync"

	"github.com/poiesic/opsmind/ai"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, returns a fixed answer.
	GenerateFunc func(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error)

	// ModelName is reported by Model. Default: "mock-generation".
	ModelName string

	mu       sync.Mutex
	requests []ai.GenerateRequest
}

// NewMockGenerator creates a mock generator with default behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{ModelName: "mock-generation"}
}

// Generate records the request and returns GenerateFunc's result or a fixed answer.
func (m *MockGenerator) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &ai.GenerateResponse{Text: "This is a mock answer.", Model: m.Model()}, nil
}

// Model reports the configured model identifier.
func (m *MockGenerator) Model() string {
	if m.ModelName == "" {
		return "mock-generation"
	}
	return m.ModelName
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or the zero value.
func (m *MockGenerator) LastRequest() ai.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ai.GenerateRequest{}
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears recorded requests and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.GenerateFunc = nil
}
