package search

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/opsmind/ai/mock"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/storage"
	"github.com/poiesic/opsmind/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) storage.ChunkRepository {
	t.Helper()
	chunks, jobs, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		jobs.Close()
		chunks.Close()
		backend.Close()
	})
	return chunks
}

func seed(t *testing.T, chunks storage.ChunkRepository, embedder *mock.MockEmbedder, texts ...string) {
	t.Helper()
	ctx := context.Background()
	batch := make([]*core.Chunk, 0, len(texts))
	for i, text := range texts {
		vector, err := embedder.EmbedText(ctx, text)
		require.NoError(t, err)
		batch = append(batch, &core.Chunk{
			Content:        text,
			Metadata:       core.ChunkMetadata{SourceFile: "handbook.txt", PageNumber: i + 1},
			Vector:         vector,
			EmbeddingModel: embedder.Model(),
		})
	}
	_, err := chunks.InsertMany(ctx, batch...)
	require.NoError(t, err)
	embedder.Reset()
}

func TestNewRetrieverRequiresDependencies(t *testing.T) {
	_, err := NewRetriever(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewRetriever(setupStore(t), nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewRetriever(setupStore(t), mock.NewMockEmbedder(), WithCandidates(0))
	assert.Error(t, err)
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	r, err := NewRetriever(setupStore(t), embedder)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "anything at all", 3)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, embedder.CallCount())
}

func TestRetrieveRanksBySimilarity(t *testing.T) {
	chunks := setupStore(t)
	embedder := mock.NewMockEmbedder()
	seed(t, chunks, embedder,
		"Sick leave: 10 days per year",
		"Vacation: 15 days per year",
		"Parking is available in the north garage",
		"Expense reports are due monthly",
	)

	r, err := NewRetriever(chunks, embedder)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "How many sick days do I get?", 0)
	require.NoError(t, err)
	require.Len(t, results, DefaultK)
	assert.Equal(t, "Sick leave: 10 days per year", results[0].Chunk.Content)
	assert.Equal(t, 1, embedder.CallCount())
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRetrieveIsIdempotent(t *testing.T) {
	chunks := setupStore(t)
	embedder := mock.NewMockEmbedder()
	seed(t, chunks, embedder,
		"alpha beta gamma",
		"beta gamma delta",
		"gamma delta epsilon",
		"delta epsilon zeta",
	)

	r, err := NewRetriever(chunks, embedder)
	require.NoError(t, err)

	first, err := r.Retrieve(context.Background(), "gamma delta", 2)
	require.NoError(t, err)
	second, err := r.Retrieve(context.Background(), "gamma delta", 2)
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	for i := range first {
		assert.Equal(t, first[i].Chunk.Id, second[i].Chunk.Id)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestRetrieveFewerThanK(t *testing.T) {
	chunks := setupStore(t)
	embedder := mock.NewMockEmbedder()
	seed(t, chunks, embedder, "only one chunk")

	r, err := NewRetriever(chunks, embedder)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "chunk", 3)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestRetrieveModelMismatch(t *testing.T) {
	chunks := setupStore(t)
	seed(t, chunks, mock.NewMockEmbedder(), "some content")

	other := mock.NewMockEmbedder()
	other.ModelName = "other-embedding"
	r, err := NewRetriever(chunks, other)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "content", 3)
	assert.ErrorIs(t, err, storage.ErrEmbeddingSpaceMismatch)
	assert.Zero(t, other.CallCount())
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	chunks := setupStore(t)
	embedder := mock.NewMockEmbedder()
	seed(t, chunks, embedder, "some content")

	boom := errors.New("boom")
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, boom
	}
	r, err := NewRetriever(chunks, embedder)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "content", 3)
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.ErrorIs(t, err, boom)
}

func TestRetrieveRejectsBlankQuery(t *testing.T) {
	r, err := NewRetriever(setupStore(t), mock.NewMockEmbedder())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "   ", 3)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

type recordingMonitor struct {
	calls []string
}

func (m *recordingMonitor) Start(_ string, _ int) {
	m.calls = append(m.calls, "start")
}

func (m *recordingMonitor) AfterEmbedding(_ string, _ int) {
	m.calls = append(m.calls, "embed")
}

func (m *recordingMonitor) AfterVectorSearch(_ []*core.SearchResult) {
	m.calls = append(m.calls, "search")
}

func (m *recordingMonitor) Finish(_ []*core.SearchResult) {
	m.calls = append(m.calls, "finish")
}

func TestRetrieveWithMonitor(t *testing.T) {
	chunks := setupStore(t)
	embedder := mock.NewMockEmbedder()
	seed(t, chunks, embedder, "monitored content")

	r, err := NewRetriever(chunks, embedder)
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	_, err = r.RetrieveWithMonitor(context.Background(), "content", 1, monitor)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "embed", "search", "finish"}, monitor.calls)
}

func TestMonitoredRetriever(t *testing.T) {
	chunks := setupStore(t)
	embedder := mock.NewMockEmbedder()
	seed(t, chunks, embedder, "monitored content")

	r, err := NewRetriever(chunks, embedder)
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	mr := MonitoredRetriever{Retriever: r, Monitor: monitor}
	results, err := mr.Retrieve(context.Background(), "content", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, []string{"start", "embed", "search", "finish"}, monitor.calls)
	assert.Equal(t, "mock-embedding", mr.EmbeddingModel())
}
