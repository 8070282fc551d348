package ingestion

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidChunking indicates a window size and overlap that cannot make progress.
	ErrInvalidChunking = errors.New("chunk size must be positive and greater than overlap")

	// ErrLoad indicates the document could not be read or held no text.
	ErrLoad = errors.New("failed to load document")

	// ErrEmbedding indicates the embedding capability failed for a chunk.
	ErrEmbedding = errors.New("failed to embed chunk")

	// ErrPersistence indicates the bulk chunk write failed.
	ErrPersistence = errors.New("failed to persist chunks")
)
