package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/storage"
)

const (
	// DefaultCollection is the collection chunks are written to.
	DefaultCollection = "chunks"

	metaCollectionSuffix = "_space"
	spaceDocumentID      = "space"

	metaSourceFile  = "source_file"
	metaPageNumber  = "page_number"
	metaModel       = "embedding_model"
	metaContentHash = "content_hash"
	metaCreatedAt   = "created_at"
	metaDimensions  = "dimensions"
)

// Option configures a Store.
type Option func(*Store) error

// WithPersistence stores collections on disk under path.
func WithPersistence(path string, compress bool) Option {
	return func(s *Store) error {
		if path == "" {
			return fmt.Errorf("%w: persistence path is empty", storage.ErrInvalidQuery)
		}
		s.path = path
		s.compress = compress
		return nil
	}
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(s *Store) error {
		if name == "" {
			return fmt.Errorf("%w: collection name is empty", storage.ErrInvalidQuery)
		}
		s.collectionName = name
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// Store implements storage.ChunkRepository on a chromem-go collection.
// The embedding space lives in a one-document side collection so it
// survives restarts of a persistent database.
type Store struct {
	mu             sync.Mutex
	db             *chromem.DB
	collection     *chromem.Collection
	meta           *chromem.Collection
	collectionName string
	path           string
	compress       bool
	lastID         uint64
	closed         bool
	logger         *slog.Logger
}

var _ storage.ChunkRepository = (*Store)(nil)

// NewStore opens an in-memory store, or a persistent one with WithPersistence.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		collectionName: DefaultCollection,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "chromem-store")

	if s.path == "" {
		s.db = chromem.NewDB()
	} else {
		db, err := chromem.NewPersistentDB(s.path, s.compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
		s.db = db
	}

	if err := s.openCollections(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) openCollections() error {
	c, err := s.db.GetOrCreateCollection(s.collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	meta, err := s.db.GetOrCreateCollection(s.collectionName+metaCollectionSuffix, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %w", err)
	}
	s.collection = c
	s.meta = meta
	return nil
}

// Close marks the store closed. Persistent collections are already on disk.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// InsertMany adds chunks as chromem documents in one AddDocuments call.
func (s *Store) InsertMany(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
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
	if err := s.claimSpace(ctx, space); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	docs := make([]chromem.Document, 0, len(chunks))
	for _, chunk := range chunks {
		chunk.Id = s.nextID(chunk, now)
		chunk.CreatedAt = now
		chunk.Vector = core.NormalizeVector(chunk.Vector)
		if chunk.ContentHash == 0 {
			chunk.ContentHash = core.IDFromContent(chunk.Content)
		}
		docs = append(docs, toDocument(chunk))
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	s.logger.Debug("inserted chunks", "count", len(docs))
	return chunks, nil
}

// nextID derives a document ID from the chunk and a strictly increasing clock.
func (s *Store) nextID(chunk *core.Chunk, now time.Time) core.ID {
	tick := max(uint64(now.UnixNano()), s.lastID+1)
	s.lastID = tick
	return core.IDFromContent(fmt.Sprintf("%s\x00%d\x00%d\x00%s",
		chunk.Metadata.SourceFile, chunk.Metadata.PageNumber, tick, chunk.Content))
}

// claimSpace records space when none is stored, or verifies it matches.
// Caller holds s.mu.
func (s *Store) claimSpace(ctx context.Context, space core.EmbeddingSpace) error {
	current, err := s.readSpace(ctx)
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
	doc := chromem.Document{
		ID:      spaceDocumentID,
		Content: space.Model,
		Metadata: map[string]string{
			metaModel:      space.Model,
			metaDimensions: strconv.Itoa(space.Dimensions),
		},
		Embedding: []float32{1},
	}
	return s.meta.AddDocuments(ctx, []chromem.Document{doc}, 1)
}

// readSpace returns the stored space or nil. Caller holds s.mu.
func (s *Store) readSpace(ctx context.Context) (*core.EmbeddingSpace, error) {
	if s.meta.Count() == 0 {
		return nil, nil
	}
	results, err := s.meta.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: []float32{1},
		NResults:       1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding space: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	dims, err := strconv.Atoi(results[0].Metadata[metaDimensions])
	if err != nil {
		return nil, fmt.Errorf("%w: bad dimensions %q", storage.ErrSerializationFailed, results[0].Metadata[metaDimensions])
	}
	return &core.EmbeddingSpace{Model: results[0].Metadata[metaModel], Dimensions: dims}, nil
}

// Count returns the number of documents in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, storage.ErrStorageClosed
	}
	return s.collection.Count(), nil
}

// DeleteMany removes documents by source file, or drops both collections
// when the filter is empty.
func (s *Store) DeleteMany(ctx context.Context, filter core.ChunkFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, storage.ErrStorageClosed
	}

	before := s.collection.Count()
	if filter.IsEmpty() {
		if err := s.db.DeleteCollection(s.collection.Name); err != nil {
			return 0, fmt.Errorf("failed to drop collection: %w", err)
		}
		if err := s.db.DeleteCollection(s.meta.Name); err != nil {
			return 0, fmt.Errorf("failed to drop collection: %w", err)
		}
		if err := s.openCollections(); err != nil {
			return 0, err
		}
		return before, nil
	}

	where := map[string]string{metaSourceFile: filter.SourceFile}
	if err := s.collection.Delete(ctx, where, nil); err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return before - s.collection.Count(), nil
}

// EmbeddingSpace returns the recorded space, or nil for an empty store.
func (s *Store) EmbeddingSpace(ctx context.Context) (*core.EmbeddingSpace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}
	return s.readSpace(ctx)
}

// VectorSearch runs an exhaustive cosine query over the collection.
func (s *Store) VectorSearch(ctx context.Context, query core.VectorQuery) ([]*core.SearchResult, error) {
	if query.K <= 0 || len(query.Vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}

	results := []*core.SearchResult{}
	count := s.collection.Count()
	if count == 0 {
		return results, nil
	}
	space, err := s.readSpace(ctx)
	if err != nil {
		return nil, err
	}
	if space != nil && ((query.Model != "" && query.Model != space.Model) || len(query.Vector) != space.Dimensions) {
		return nil, fmt.Errorf("%w: store holds %s/%d, query is %s/%d", storage.ErrEmbeddingSpaceMismatch,
			space.Model, space.Dimensions, query.Model, len(query.Vector))
	}

	// chromem rejects NResults larger than the collection.
	n := min(query.K, count)
	if query.Candidates > 0 {
		n = min(n, query.Candidates)
	}
	found, err := s.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: core.NormalizeVector(query.Vector),
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	for _, r := range found {
		chunk, err := fromResult(r)
		if err != nil {
			return nil, err
		}
		results = append(results, &core.SearchResult{Chunk: chunk, Score: r.Similarity})
	}
	return results, nil
}

func toDocument(chunk *core.Chunk) chromem.Document {
	return chromem.Document{
		ID:      strconv.FormatUint(uint64(chunk.Id), 10),
		Content: chunk.Content,
		Metadata: map[string]string{
			metaSourceFile:  chunk.Metadata.SourceFile,
			metaPageNumber:  strconv.Itoa(chunk.Metadata.PageNumber),
			metaModel:       chunk.EmbeddingModel,
			metaContentHash: strconv.FormatUint(uint64(chunk.ContentHash), 10),
			metaCreatedAt:   chunk.CreatedAt.Format(time.RFC3339Nano),
		},
		Embedding: chunk.Vector,
	}
}

func fromResult(r chromem.Result) (*core.Chunk, error) {
	id, err := strconv.ParseUint(r.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad document id %q", storage.ErrSerializationFailed, r.ID)
	}
	page, err := strconv.Atoi(r.Metadata[metaPageNumber])
	if err != nil {
		page = core.DefaultPageNumber
	}
	hash, _ := strconv.ParseUint(r.Metadata[metaContentHash], 10, 64)
	created, _ := time.Parse(time.RFC3339Nano, r.Metadata[metaCreatedAt])

	return &core.Chunk{
		Id:      core.ID(id),
		Content: r.Content,
		Metadata: core.ChunkMetadata{
			SourceFile: r.Metadata[metaSourceFile],
			PageNumber: page,
		},
		Vector:         r.Embedding,
		EmbeddingModel: r.Metadata[metaModel],
		ContentHash:    core.ID(hash),
		CreatedAt:      created,
	}, nil
}
