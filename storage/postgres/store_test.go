package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowConversion(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	chunk := &core.Chunk{
		Content:        "Vacation: 15 days",
		Metadata:       core.ChunkMetadata{SourceFile: "policy.pdf", PageNumber: 2},
		Vector:         []float32{0.6, 0.8},
		EmbeddingModel: "m",
		ContentHash:    core.ID(^uint64(0)),
		CreatedAt:      created,
	}

	row := toRow(chunk)
	row.ID = 7
	back := fromRow(&row)

	assert.Equal(t, core.ID(7), back.Id)
	assert.Equal(t, chunk.Content, back.Content)
	assert.Equal(t, chunk.Metadata, back.Metadata)
	assert.Equal(t, chunk.Vector, back.Vector)
	assert.Equal(t, chunk.ContentHash, back.ContentHash)
	assert.True(t, created.Equal(back.CreatedAt))
}

func TestWithDriver(t *testing.T) {
	s := &Store{}
	require.NoError(t, WithDriver(DriverPQ)(s))
	assert.Equal(t, DriverPQ, s.driver)
	require.NoError(t, WithDriver("")(s))
	assert.Equal(t, DriverPG, s.driver)
	assert.Error(t, WithDriver("mysql")(s))
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.ErrorIs(t, err, ErrDSNRequired)
}

// TestStoreIntegration runs against a live pgvector database when
// OPSMIND_TEST_POSTGRES_DSN is set.
func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("OPSMIND_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("OPSMIND_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.DeleteMany(ctx, core.ChunkFilter{})
	require.NoError(t, err)

	results, err := s.VectorSearch(ctx, core.VectorQuery{Vector: []float32{1, 0, 0}, K: 3, Candidates: 100})
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = s.InsertMany(ctx,
		&core.Chunk{Content: "east", Metadata: core.ChunkMetadata{SourceFile: "a.pdf", PageNumber: 1}, Vector: []float32{1, 0, 0}, EmbeddingModel: "m"},
		&core.Chunk{Content: "north", Metadata: core.ChunkMetadata{SourceFile: "b.pdf", PageNumber: 1}, Vector: []float32{0, 1, 0}, EmbeddingModel: "m"},
	)
	require.NoError(t, err)

	results, err = s.VectorSearch(ctx, core.VectorQuery{Vector: []float32{1, 0.1, 0}, Model: "m", K: 3, Candidates: 100})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "east", results[0].Chunk.Content)

	_, err = s.VectorSearch(ctx, core.VectorQuery{Vector: []float32{1, 0}, Model: "m", K: 3})
	assert.ErrorIs(t, err, storage.ErrEmbeddingSpaceMismatch)

	removed, err := s.DeleteMany(ctx, core.ChunkFilter{SourceFile: "a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
