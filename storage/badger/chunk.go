package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
// Vectors are stored unit-normalized and searched by exhaustive dot product.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

// InsertMany writes chunks through a single write batch.
func (r *ChunkRepository) InsertMany(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	space := core.EmbeddingSpace{Model: chunks[0].EmbeddingModel, Dimensions: len(chunks[0].Vector)}
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
		got := core.EmbeddingSpace{Model: chunk.EmbeddingModel, Dimensions: len(chunk.Vector)}
		if !got.Matches(space) {
			return nil, fmt.Errorf("%w: batch mixes %s/%d and %s/%d", storage.ErrEmbeddingSpaceMismatch,
				space.Model, space.Dimensions, got.Model, got.Dimensions)
		}
	}

	if err := r.claimSpace(space); err != nil {
		return nil, err
	}

	wb := r.backend.NewWriteBatch()
	defer wb.Cancel()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nextID, err := nextID(r.idSeq)
		if err != nil {
			return nil, err
		}
		chunk.Id = core.ID(nextID)
		chunk.CreatedAt = now
		chunk.Vector = core.NormalizeVector(chunk.Vector)
		if chunk.ContentHash == 0 {
			chunk.ContentHash = core.IDFromContent(chunk.Content)
		}

		value, err := storage.MarshalChunk(chunk)
		if err != nil {
			return nil, err
		}
		if err := wb.Set(makeChunkKey(chunk.Id), value); err != nil {
			return nil, err
		}
		if err := wb.Set(makeChunkSourceKey(chunk.Metadata.SourceFile, chunk.Id), nil); err != nil {
			return nil, err
		}
	}

	if err := wb.Flush(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// claimSpace records space when the store has none, or verifies it matches.
func (r *ChunkRepository) claimSpace(space core.EmbeddingSpace) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		current, err := readSpace(tx)
		if err != nil {
			return err
		}
		if current != nil {
			if !current.Matches(space) {
				return fmt.Errorf("%w: store holds %s/%d, got %s/%d", storage.ErrEmbeddingSpaceMismatch,
					current.Model, current.Dimensions, space.Model, space.Dimensions)
			}
			return nil
		}
		value, err := storage.MarshalEmbeddingSpace(&space)
		if err != nil {
			return err
		}
		if err := tx.Set([]byte(chunkSpaceKey), value); err != nil {
			return err
		}
		return commit(tx)
	}, true)
}

// Count returns the number of stored chunks.
func (r *ChunkRepository) Count(ctx context.Context) (int, error) {
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// DeleteMany removes chunks for one source file, or everything when filter is empty.
func (r *ChunkRepository) DeleteMany(ctx context.Context, filter core.ChunkFilter) (int, error) {
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	if filter.IsEmpty() {
		count, err := r.Count(ctx)
		if err != nil {
			return 0, err
		}
		if err := r.backend.DropPrefix(chunkPrefix, chunkSourcePrefix, chunkSpaceKey); err != nil {
			return 0, err
		}
		return count, nil
	}

	var ids []core.ID
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePartialChunkSourceKey(filter.SourceFile)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			ids = append(ids, chunkIDFromSourceKey(iter.Item().KeyCopy(nil)))
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}

	wb := r.backend.NewWriteBatch()
	defer wb.Cancel()
	for _, id := range ids {
		if err := wb.Delete(makeChunkKey(id)); err != nil {
			return 0, err
		}
		if err := wb.Delete(makeChunkSourceKey(filter.SourceFile, id)); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// EmbeddingSpace returns the recorded space, or nil when nothing was inserted.
func (r *ChunkRepository) EmbeddingSpace(ctx context.Context) (*core.EmbeddingSpace, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var space *core.EmbeddingSpace
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		space, err = readSpace(tx)
		return err
	}, false)
	return space, err
}

// VectorSearch scores every stored chunk against the query.
// The scan is exact, so query.Candidates only caps the working set.
func (r *ChunkRepository) VectorSearch(ctx context.Context, query core.VectorQuery) ([]*core.SearchResult, error) {
	if query.K <= 0 || len(query.Vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	vector := core.NormalizeVector(query.Vector)
	results := []*core.SearchResult{}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		space, err := readSpace(tx)
		if err != nil {
			return err
		}
		if space == nil {
			return nil
		}
		if (query.Model != "" && query.Model != space.Model) || len(vector) != space.Dimensions {
			return fmt.Errorf("%w: store holds %s/%d, query is %s/%d", storage.ErrEmbeddingSpaceMismatch,
				space.Model, space.Dimensions, query.Model, len(vector))
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(chunk.Vector) == 0 {
				continue
			}
			results = append(results, &core.SearchResult{
				Chunk: chunk,
				Score: core.DotProduct(vector, chunk.Vector),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Highest score first; ties resolve to insertion order.
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.Id, b.Chunk.Id)
	})

	limit := query.K
	if query.Candidates > 0 && query.Candidates < limit {
		limit = query.Candidates
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// readSpace reads the recorded embedding space, returning nil when absent.
func readSpace(tx *badger.Txn) (*core.EmbeddingSpace, error) {
	item, err := tx.Get([]byte(chunkSpaceKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var space *core.EmbeddingSpace
	err = item.Value(func(val []byte) error {
		var err error
		space, err = storage.UnmarshalEmbeddingSpace(val)
		return err
	})
	return space, err
}
