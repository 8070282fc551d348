package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/opsmind/ai"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/storage"
)

const (
	// DefaultK is the number of chunks returned when the caller asks for k <= 0.
	DefaultK = 3

	// DefaultCandidates is the candidate pool an approximate index may re-rank from.
	DefaultCandidates = 100
)

// Retriever finds the chunks closest to a question.
type Retriever struct {
	chunks     storage.ChunkRepository
	embedder   ai.Embedder
	candidates int
	logger     *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithCandidates sets the candidate pool size passed to the store.
func WithCandidates(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("candidates must be positive: %d", n)
		}
		r.candidates = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		chunks:     chunks,
		embedder:   embedder,
		candidates: DefaultCandidates,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")
	return r, nil
}

// EmbeddingModel returns the model used to embed queries.
func (r *Retriever) EmbeddingModel() string {
	return r.embedder.Model()
}

// Retrieve returns up to k chunks ranked by similarity to query.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]*core.SearchResult, error) {
	return r.RetrieveWithMonitor(ctx, query, k, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each stage.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, query string, k int, monitor RetrievalMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = DefaultK
	}
	monitor.Start(query, k)

	space, err := r.chunks.EmbeddingSpace(ctx)
	if err != nil {
		return nil, err
	}
	if space == nil {
		r.logger.Debug("chunk store is empty")
		results := []*core.SearchResult{}
		monitor.Finish(results)
		return results, nil
	}
	if model := r.embedder.Model(); model != space.Model {
		return nil, fmt.Errorf("%w: store was embedded with %s, queries use %s",
			storage.ErrEmbeddingSpaceMismatch, space.Model, model)
	}

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	monitor.AfterEmbedding(r.embedder.Model(), len(vector))

	results, err := r.chunks.VectorSearch(ctx, core.VectorQuery{
		Vector:     vector,
		Model:      r.embedder.Model(),
		K:          k,
		Candidates: max(r.candidates, k),
	})
	if err != nil {
		r.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(results)

	r.logger.Debug("retrieved chunks", "k", k, "found", len(results))
	monitor.Finish(results)
	return results, nil
}
