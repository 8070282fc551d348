package storage

import (
	"testing"
	"time"

	"github.com/poiesic/opsmind/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.Len(t, data, 8)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestMarshalID_SortsNumerically(t *testing.T) {
	assert.Less(t, string(MarshalID(255)), string(MarshalID(256)))
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestChunkSerialization(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	chunk := &core.Chunk{
		Id:             7,
		Content:        "Sick leave: 10 days",
		Metadata:       core.ChunkMetadata{SourceFile: "handbook.pdf", PageNumber: 2},
		Vector:         []float32{0.25, -0.5, 1},
		EmbeddingModel: "text-embedding-004",
		ContentHash:    core.IDFromContent("Sick leave: 10 days"),
		CreatedAt:      created,
	}

	data, err := MarshalChunk(chunk)
	require.NoError(t, err)

	decoded, err := UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Equal(t, chunk.Id, decoded.Id)
	assert.Equal(t, chunk.Content, decoded.Content)
	assert.Equal(t, chunk.Metadata, decoded.Metadata)
	assert.Equal(t, chunk.Vector, decoded.Vector)
	assert.Equal(t, chunk.EmbeddingModel, decoded.EmbeddingModel)
	assert.Equal(t, chunk.ContentHash, decoded.ContentHash)
	assert.True(t, created.Equal(decoded.CreatedAt))
}

func TestJobSerialization(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	job := &core.Job{
		ID:          "0b6a4f1e-6f55-4d1c-9c1e-3f1b8e7a2d90",
		Payload:     core.JobPayload{FilePath: "/uploads/handbook.pdf"},
		State:       core.JobStateFailed,
		Attempts:    3,
		MaxAttempts: 3,
		LastError:   "document load failed",
		Seq:         12,
		EnqueuedAt:  now,
		RunAt:       now.Add(4 * time.Second),
		UpdatedAt:   now,
	}

	data, err := MarshalJob(job)
	require.NoError(t, err)

	decoded, err := UnmarshalJob(data)
	require.NoError(t, err)
	assert.Equal(t, job.ID, decoded.ID)
	assert.Equal(t, job.Payload, decoded.Payload)
	assert.Equal(t, job.State, decoded.State)
	assert.Equal(t, job.Attempts, decoded.Attempts)
	assert.Equal(t, job.LastError, decoded.LastError)
	assert.Equal(t, job.Seq, decoded.Seq)
	assert.True(t, job.RunAt.Equal(decoded.RunAt))
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := UnmarshalChunk(nil)
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalJob([]byte{0xc1}) // never-used msgpack code
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
