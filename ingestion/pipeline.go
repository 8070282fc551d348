package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/opsmind/ai"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/loader"
	"github.com/poiesic/opsmind/storage"
	"golang.org/x/time/rate"
)

// DefaultEmbedInterval spaces embedding calls to stay under free-tier rate limits.
const DefaultEmbedInterval = time.Second

// Pipeline turns a document on disk into stored, embedded chunks.
// Chunks are embedded one at a time, in order, then written in a single bulk insert.
type Pipeline struct {
	chunks        storage.ChunkRepository
	embedder      ai.Embedder
	loaders       *loader.Registry
	splitter      *Splitter
	embedInterval time.Duration
	limiter       *rate.Limiter
	progress      io.Writer
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithEmbedInterval sets the minimum time between embedding calls.
// Zero disables spacing.
func WithEmbedInterval(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return fmt.Errorf("embed interval must not be negative: %s", d)
		}
		p.embedInterval = d
		return nil
	}
}

// WithChunking sets the window size and overlap in runes.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		s, err := NewSplitter(size, overlap)
		if err != nil {
			return err
		}
		p.splitter = s
		return nil
	}
}

// WithLoaders replaces the document loader registry.
func WithLoaders(r *loader.Registry) Option {
	return func(p *Pipeline) error {
		if r != nil {
			p.loaders = r
		}
		return nil
	}
}

// WithProgress reports per-chunk embedding progress to w.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	splitter, err := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		chunks:        chunks,
		embedder:      embedder,
		loaders:       loader.NewRegistry(),
		splitter:      splitter,
		embedInterval: DefaultEmbedInterval,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.embedInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(p.embedInterval), 1)
	}
	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// Loaders returns the registry used to read documents.
func (p *Pipeline) Loaders() *loader.Registry {
	return p.loaders
}

// pendingChunk is a window waiting for its embedding.
type pendingChunk struct {
	text string
	page int
}

// Ingest loads, splits, embeds and stores one document and returns the
// number of chunks written. Nothing is written unless every chunk embeds.
func (p *Pipeline) Ingest(ctx context.Context, filePath string) (int, error) {
	return p.IngestAs(ctx, filePath, "")
}

// IngestAs is Ingest with chunks attributed to sourceName rather than the
// base name of filePath. An empty sourceName behaves like Ingest.
func (p *Pipeline) IngestAs(ctx context.Context, filePath, sourceName string) (int, error) {
	start := time.Now()
	source := filepath.Base(filePath)
	if name := strings.TrimSpace(sourceName); name != "" {
		source = filepath.Base(name)
	}
	logger := p.logger.With("file", source)

	pages, err := p.loaders.Load(ctx, filePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrLoad, source, err)
	}

	pending := p.split(pages)
	if len(pending) == 0 {
		return 0, fmt.Errorf("%w: %s: %w", ErrLoad, source, loader.ErrNoText)
	}
	logger.Info("document loaded", "pages", len(pages), "chunks", len(pending))

	var tracker *ProgressTracker
	if p.progress != nil {
		tracker = NewProgressTracker(p.progress, "Embedding "+source, len(pending), 1)
		tracker.Start()
	}

	model := p.embedder.Model()
	chunks := make([]*core.Chunk, 0, len(pending))
	for i, pc := range pending {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return 0, fmt.Errorf("%w: chunk %d/%d of %s: %w", ErrEmbedding, i+1, len(pending), source, err)
			}
		}
		vector, err := p.embedder.EmbedText(ctx, pc.text)
		if err != nil {
			logger.Warn("embedding failed", "chunk", i+1, "of", len(pending), "err", err)
			return 0, fmt.Errorf("%w: chunk %d/%d of %s: %w", ErrEmbedding, i+1, len(pending), source, err)
		}
		chunks = append(chunks, &core.Chunk{
			Content:        pc.text,
			Metadata:       core.ChunkMetadata{SourceFile: source, PageNumber: pc.page},
			Vector:         vector,
			EmbeddingModel: model,
		})
		if tracker != nil {
			tracker.Increment(1)
		}
	}
	if tracker != nil {
		tracker.Finish()
	}

	if _, err := p.chunks.InsertMany(ctx, chunks...); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrPersistence, source, err)
	}

	logger.Info("document ingested", "chunks", len(chunks), "elapsed", time.Since(start))
	return len(chunks), nil
}

// split windows every page and drops windows that are only whitespace.
func (p *Pipeline) split(pages []loader.Page) []pendingChunk {
	var pending []pendingChunk
	for _, page := range pages {
		number := page.Number
		if number < 1 {
			number = core.DefaultPageNumber
		}
		for _, window := range p.splitter.Split(page.Text) {
			text := strings.TrimSpace(window)
			if text == "" {
				continue
			}
			pending = append(pending, pendingChunk{text: text, page: number})
		}
	}
	return pending
}
