package storage

import (
	"context"
	"time"

	"github.com/poiesic/opsmind/core"
)

// ChunkRepository persists document chunks and answers nearest-neighbor queries.
// Any store satisfying this contract is acceptable, whether it is a dedicated
// vector index or a brute-force scan.
type ChunkRepository interface {
	// InsertMany writes chunks in one bulk operation.
	// Assigns IDs and CreatedAt. Every chunk must belong to the store's
	// embedding space; the first insert into an empty store records it.
	// Atomicity across the whole batch is not guaranteed.
	InsertMany(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// DeleteMany removes chunks selected by filter and returns how many were removed.
	// An empty filter removes every chunk and forgets the embedding space.
	DeleteMany(ctx context.Context, filter core.ChunkFilter) (int, error)

	// VectorSearch returns up to query.K chunks ordered by similarity, highest first.
	// query.Candidates bounds the pool an approximate index may re-rank from.
	// Returns an empty slice, not an error, when the store is empty.
	// Returns ErrEmbeddingSpaceMismatch when query.Model or the vector length
	// differs from the recorded space.
	VectorSearch(ctx context.Context, query core.VectorQuery) ([]*core.SearchResult, error)

	// EmbeddingSpace returns the recorded space, or nil when the store is empty.
	EmbeddingSpace(ctx context.Context) (*core.EmbeddingSpace, error)

	// Close releases resources held by the repository.
	Close() error
}

// JobRepository persists ingestion jobs and their ready schedule.
type JobRepository interface {
	// Create stores a new waiting job and schedules it at job.RunAt.
	// Assigns Seq.
	Create(ctx context.Context, job *core.Job) (*core.Job, error)

	// ClaimNext atomically moves the earliest job whose RunAt <= now from
	// waiting to active and increments its Attempts.
	// Returns nil, nil when no job is ready. Returns ErrConflict when another
	// claimer won the race; callers may retry.
	ClaimNext(ctx context.Context, now time.Time) (*core.Job, error)

	// Reschedule returns an active job to waiting at job.RunAt.
	Reschedule(ctx context.Context, job *core.Job) error

	// MarkFailed moves an active job to failed and retains it.
	MarkFailed(ctx context.Context, job *core.Job) error

	// Complete removes a finished job.
	Complete(ctx context.Context, id string) error

	// Get returns a job by ID or ErrNotFound.
	Get(ctx context.Context, id string) (*core.Job, error)

	// List returns jobs in the given state ordered by Seq. An empty state lists all.
	List(ctx context.Context, state core.JobState) ([]*core.Job, error)

	// NextRunAt returns the earliest scheduled RunAt, or false when nothing is waiting.
	NextRunAt(ctx context.Context) (time.Time, bool, error)

	// Close releases resources held by the repository.
	Close() error
}
