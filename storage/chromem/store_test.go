package chromem

import (
	"context"
	"testing"

	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunk(content, source string, page int, vector ...float32) *core.Chunk {
	return &core.Chunk{
		Content:        content,
		Metadata:       core.ChunkMetadata{SourceFile: source, PageNumber: page},
		Vector:         vector,
		EmbeddingModel: "test-model",
	}
}

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreInsertAndSearch(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.InsertMany(ctx,
		newChunk("east", "map.pdf", 1, 1, 0, 0),
		newChunk("north", "map.pdf", 2, 0, 1, 0),
		newChunk("up", "other.pdf", 1, 0, 0, 1),
	)
	require.NoError(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	results, err := s.VectorSearch(ctx, core.VectorQuery{
		Vector: []float32{0.9, 0.1, 0}, Model: "test-model", K: 2, Candidates: 100,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "east", results[0].Chunk.Content)
	assert.Equal(t, "map.pdf", results[0].Chunk.Metadata.SourceFile)
	assert.Equal(t, 1, results[0].Chunk.Metadata.PageNumber)
	assert.Equal(t, "north", results[1].Chunk.Content)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestStoreEmptySearch(t *testing.T) {
	s := openStore(t)

	results, err := s.VectorSearch(context.Background(), core.VectorQuery{Vector: []float32{1}, K: 3})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStoreKLargerThanCollection(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.InsertMany(ctx, newChunk("only", "a.pdf", 1, 1, 0))
	require.NoError(t, err)

	results, err := s.VectorSearch(ctx, core.VectorQuery{Vector: []float32{1, 0}, K: 3, Candidates: 100})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestStoreSpaceMismatch(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.InsertMany(ctx, newChunk("first", "a.pdf", 1, 1, 0, 0))
	require.NoError(t, err)

	space, err := s.EmbeddingSpace(ctx)
	require.NoError(t, err)
	require.NotNil(t, space)
	assert.Equal(t, 3, space.Dimensions)

	_, err = s.InsertMany(ctx, newChunk("second", "a.pdf", 1, 1, 0))
	assert.ErrorIs(t, err, storage.ErrEmbeddingSpaceMismatch)

	_, err = s.VectorSearch(ctx, core.VectorQuery{Vector: []float32{1, 0}, K: 1})
	assert.ErrorIs(t, err, storage.ErrEmbeddingSpaceMismatch)
}

func TestStoreDeleteMany(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.InsertMany(ctx,
		newChunk("a1", "a.pdf", 1, 1, 0),
		newChunk("a2", "a.pdf", 2, 1, 0),
		newChunk("b1", "b.pdf", 1, 0, 1),
	)
	require.NoError(t, err)

	removed, err := s.DeleteMany(ctx, core.ChunkFilter{SourceFile: "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	removed, err = s.DeleteMany(ctx, core.ChunkFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	space, err := s.EmbeddingSpace(ctx)
	require.NoError(t, err)
	assert.Nil(t, space)
}

func TestStorePersistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewStore(WithPersistence(dir, false))
	require.NoError(t, err)
	_, err = s.InsertMany(ctx, newChunk("kept", "a.pdf", 3, 0, 1))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openStore(t, WithPersistence(dir, false))
	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	space, err := reopened.EmbeddingSpace(ctx)
	require.NoError(t, err)
	require.NotNil(t, space)
	assert.Equal(t, "test-model", space.Model)
}

func TestStoreClosed(t *testing.T) {
	s, err := NewStore()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Count(context.Background())
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
