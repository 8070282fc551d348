package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Quota and rate-limit failures are returned as *QuotaError.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the length of the vectors this embedder produces.
	// Returns 0 until it is known.
	Dimensions() int

	// Model returns the embedding model identifier.
	Model() string
}

// GenerateRequest is a single-turn generation call.
type GenerateRequest struct {
	// System carries standing instructions. May be empty.
	System string
	// Prompt is the user-role message.
	Prompt string
	// Temperature overrides the configured temperature when non-nil.
	Temperature *float64
}

// GenerateResponse is the text produced by a Generator.
type GenerateResponse struct {
	Text  string
	Model string
}

// Generator produces text from a prompt.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate runs one completion.
	// Quota and rate-limit failures are returned as *QuotaError,
	// rejected credentials as ErrUnauthorized.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// Model returns the generation model identifier.
	Model() string
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the answer generation service.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	Close() error
}
