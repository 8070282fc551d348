// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Generator,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	provider := mock.NewMockProvider()
//	provider.GetMockGenerator().GenerateFunc = func(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
//	    return nil, &ai.QuotaError{RetryAfter: time.Minute}
//	}
//
//	count := provider.GetMockEmbedder().CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: hashes words into a unit vector, so texts sharing words score higher
//   - MockGenerator: returns a fixed answer
//   - MockProvider: aggregates both
package mock
