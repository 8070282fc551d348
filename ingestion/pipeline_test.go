package ingestion

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/opsmind/ai"
	"github.com/poiesic/opsmind/ai/mock"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/loader"
	"github.com/poiesic/opsmind/storage"
	"github.com/poiesic/opsmind/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPipeline(t *testing.T, opts ...Option) (*Pipeline, storage.ChunkRepository, *mock.MockEmbedder) {
	t.Helper()
	chunkRepo, jobRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		jobRepo.Close()
		chunkRepo.Close()
		backend.Close()
	})

	embedder := mock.NewMockEmbedder()
	opts = append([]Option{WithEmbedInterval(0)}, opts...)
	p, err := NewPipeline(chunkRepo, embedder, opts...)
	require.NoError(t, err)
	return p, chunkRepo, embedder
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewPipelineRequiresDependencies(t *testing.T) {
	_, err := NewPipeline(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	chunkRepo, jobRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer func() { jobRepo.Close(); chunkRepo.Close(); backend.Close() }()

	_, err = NewPipeline(chunkRepo, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(chunkRepo, mock.NewMockEmbedder(), WithChunking(10, 10))
	assert.ErrorIs(t, err, ErrInvalidChunking)

	_, err = NewPipeline(chunkRepo, mock.NewMockEmbedder(), WithEmbedInterval(-time.Second))
	assert.Error(t, err)
}

func TestIngestTwoPageDocument(t *testing.T) {
	p, chunks, embedder := setupPipeline(t)
	ctx := context.Background()

	path := writeDoc(t, "handbook.txt", "Sick leave: 10 days\fVacation: 15 days")

	n, err := p.Ingest(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"Sick leave: 10 days", "Vacation: 15 days"}, embedder.Texts())

	count, err := chunks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	query, err := embedder.EmbedText(ctx, "How many sick days do I get?")
	require.NoError(t, err)
	results, err := chunks.VectorSearch(ctx, core.VectorQuery{Vector: query, Model: embedder.Model(), K: 3, Candidates: 100})
	require.NoError(t, err)
	require.Len(t, results, 2)

	top := results[0].Chunk
	assert.Contains(t, top.Content, "Sick leave: 10 days")
	assert.Equal(t, "handbook.txt", top.Metadata.SourceFile)
	assert.Equal(t, 1, top.Metadata.PageNumber)
	assert.Equal(t, 2, results[1].Chunk.Metadata.PageNumber)
	assert.Equal(t, "mock-embedding", top.EmbeddingModel)
}

func TestIngestAsUsesSourceName(t *testing.T) {
	p, chunks, _ := setupPipeline(t)
	ctx := context.Background()
	path := writeDoc(t, "1748768400000-upload.txt", "Remote work is allowed on Fridays.")

	n, err := p.IngestAs(ctx, path, "Remote Work.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	removed, err := chunks.DeleteMany(ctx, core.ChunkFilter{SourceFile: "1748768400000-upload.txt"})
	require.NoError(t, err)
	assert.Zero(t, removed)
	removed, err = chunks.DeleteMany(ctx, core.ChunkFilter{SourceFile: "Remote Work.txt"})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestIngestSplitsLongPages(t *testing.T) {
	p, chunks, embedder := setupPipeline(t, WithChunking(100, 20))
	ctx := context.Background()

	text := strings.Repeat("Employees accrue leave monthly. ", 20) // 640 runes
	path := writeDoc(t, "long.txt", text)

	n, err := p.Ingest(ctx, path)
	require.NoError(t, err)

	s, err := NewSplitter(100, 20)
	require.NoError(t, err)
	assert.Equal(t, s.WindowCount(len(text)), n)
	assert.Equal(t, n, embedder.CallCount())

	count, err := chunks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, n, count)
}

func TestIngestUnsupportedFormat(t *testing.T) {
	p, _, embedder := setupPipeline(t)

	_, err := p.Ingest(context.Background(), writeDoc(t, "image.png", "png"))
	assert.ErrorIs(t, err, ErrLoad)
	assert.ErrorIs(t, err, loader.ErrUnsupportedFormat)
	assert.Zero(t, embedder.CallCount())
}

func TestIngestEmptyDocument(t *testing.T) {
	p, _, _ := setupPipeline(t)

	_, err := p.Ingest(context.Background(), writeDoc(t, "blank.txt", "   \n  "))
	assert.ErrorIs(t, err, ErrLoad)
	assert.ErrorIs(t, err, loader.ErrNoText)
}

func TestIngestEmbeddingFailureWritesNothing(t *testing.T) {
	p, chunks, embedder := setupPipeline(t)
	ctx := context.Background()

	calls := 0
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		calls++
		if calls == 2 {
			return nil, &ai.QuotaError{RetryAfter: 30 * time.Second, Err: errors.New("429")}
		}
		return []float32{1, 0}, nil
	}

	_, err := p.Ingest(ctx, writeDoc(t, "two.txt", "page one\fpage two\fpage three"))
	assert.ErrorIs(t, err, ErrEmbedding)
	retryAfter, ok := ai.IsQuota(err)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, retryAfter)
	assert.Equal(t, 2, calls, "embedding stops at the first failure")

	count, err := chunks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestPersistenceFailure(t *testing.T) {
	p, chunks, embedder := setupPipeline(t)
	ctx := context.Background()

	// Claim a different embedding space first.
	_, err := chunks.InsertMany(ctx, &core.Chunk{
		Content:        "existing",
		Metadata:       core.ChunkMetadata{SourceFile: "old.txt", PageNumber: 1},
		Vector:         []float32{1, 0, 0},
		EmbeddingModel: "other-model",
	})
	require.NoError(t, err)

	_, err = p.Ingest(ctx, writeDoc(t, "new.txt", "fresh content"))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, storage.ErrEmbeddingSpaceMismatch)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestIngestRespectsEmbedInterval(t *testing.T) {
	p, _, _ := setupPipeline(t, WithEmbedInterval(30*time.Millisecond))

	start := time.Now()
	n, err := p.Ingest(context.Background(), writeDoc(t, "three.txt", "one\ftwo\fthree"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	// The first call is immediate, the next two wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestIngestCancelledWhileWaiting(t *testing.T) {
	p, _, embedder := setupPipeline(t, WithEmbedInterval(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Ingest(ctx, writeDoc(t, "slow.txt", "one\ftwo"))
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestIngestReportsProgress(t *testing.T) {
	var buf bytes.Buffer
	p, _, _ := setupPipeline(t, WithProgress(&buf))

	_, err := p.Ingest(context.Background(), writeDoc(t, "doc.txt", "one\ftwo"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Embedding doc.txt: 2/2")
}
