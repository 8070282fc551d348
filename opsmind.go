// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package opsmind assembles the document question-answering system from its
// parts: the chunk store, the job queue, the ingestion pipeline, retrieval
// and the answering orchestrator.
package opsmind

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"

	"github.com/poiesic/opsmind/agent"
	"github.com/poiesic/opsmind/ai"
	"github.com/poiesic/opsmind/ai/mock"
	"github.com/poiesic/opsmind/ai/openai"
	"github.com/poiesic/opsmind/config"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/ingestion"
	"github.com/poiesic/opsmind/loader"
	"github.com/poiesic/opsmind/queue"
	"github.com/poiesic/opsmind/retry"
	"github.com/poiesic/opsmind/search"
	"github.com/poiesic/opsmind/server"
	"github.com/poiesic/opsmind/storage"
	"github.com/poiesic/opsmind/storage/badger"
	"github.com/poiesic/opsmind/storage/chromem"
	"github.com/poiesic/opsmind/storage/postgres"
	"github.com/poiesic/opsmind/watcher"
)

// ErrConfigRequired is returned when Open is called without a configuration.
var ErrConfigRequired = errors.New("configuration required")

// System owns every long-lived component and closes them in order.
type System struct {
	cfg          *config.Config
	backend      *badger.Backend
	chunks       storage.ChunkRepository
	jobs         storage.JobRepository
	provider     ai.AIProvider
	loaders      *loader.Registry
	pipeline     *ingestion.Pipeline
	queue        *queue.Queue
	retriever    *search.Retriever
	orchestrator *agent.Orchestrator
	logger       *slog.Logger
}

// Option configures Open.
type Option func(*systemOptions)

type systemOptions struct {
	provider ai.AIProvider
	progress io.Writer
	monitor  search.RetrievalMonitor
	logger   *slog.Logger
}

// WithProvider uses provider instead of building one from the configuration.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *systemOptions) {
		o.provider = provider
	}
}

// WithProgress reports ingestion progress to w.
func WithProgress(w io.Writer) Option {
	return func(o *systemOptions) {
		o.progress = w
	}
}

// WithRetrievalMonitor reports every retrieval made while answering to m.
func WithRetrievalMonitor(m search.RetrievalMonitor) Option {
	return func(o *systemOptions) {
		o.monitor = m
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *systemOptions) {
		o.logger = logger
	}
}

// Open builds a System from cfg. Jobs are always kept in Badger at
// cfg.Storage.Path; chunks go to the configured backend.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &systemOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	s := &System{
		cfg:     cfg,
		loaders: loader.NewRegistry(),
		logger:  options.logger.With("component", "system"),
	}
	if err := s.open(ctx, options); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *System) open(ctx context.Context, options *systemOptions) error {
	var err error
	cfg := s.cfg
	logger := options.logger

	s.backend, err = badger.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return err
	}
	s.jobs, err = badger.NewJobRepository(s.backend)
	if err != nil {
		return err
	}
	s.chunks, err = openChunkStore(ctx, cfg, s.backend, logger)
	if err != nil {
		return err
	}

	s.provider = options.provider
	if s.provider == nil {
		s.provider, err = newProvider(cfg)
		if err != nil {
			return err
		}
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithChunking(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap),
		ingestion.WithEmbedInterval(cfg.Ingestion.EmbedInterval),
		ingestion.WithLoaders(s.loaders),
		ingestion.WithLogger(logger),
	}
	if options.progress != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithProgress(options.progress))
	}
	s.pipeline, err = ingestion.NewPipeline(s.chunks, s.provider.Embedder(), pipelineOpts...)
	if err != nil {
		return err
	}

	policy := retry.Policy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelay:   cfg.Queue.BaseDelay,
		Multiplier:  cfg.Queue.Multiplier,
		ShouldRetry: Retryable,
	}
	s.queue, err = queue.New(s.jobs, s.handleJob,
		queue.WithPolicy(policy),
		queue.WithPollInterval(cfg.Queue.PollInterval),
		queue.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	s.retriever, err = search.NewRetriever(s.chunks, s.provider.Embedder(),
		search.WithCandidates(cfg.Retrieval.Candidates),
		search.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	agentOpts := []agent.Option{
		agent.WithTopK(cfg.Retrieval.TopK),
		agent.WithHistoryTurns(cfg.Agent.HistoryTurns),
		agent.WithLogger(logger),
	}
	if len(cfg.Agent.LeaveBalances) > 0 {
		dir := agent.StaticLeaveDirectory(cfg.Agent.LeaveBalances)
		agentOpts = append(agentOpts, agent.WithRegistry(agent.DefaultRegistry(dir)))
	}
	var retriever agent.Retriever = s.retriever
	if options.monitor != nil {
		retriever = search.MonitoredRetriever{Retriever: s.retriever, Monitor: options.monitor}
	}
	s.orchestrator, err = agent.NewOrchestrator(retriever, s.provider.Generator(), agentOpts...)
	return err
}

func openChunkStore(ctx context.Context, cfg *config.Config, backend *badger.Backend, logger *slog.Logger) (storage.ChunkRepository, error) {
	switch cfg.Storage.Backend {
	case config.BackendChromem:
		opts := []chromem.Option{
			chromem.WithCollection(cfg.Storage.Collection),
			chromem.WithLogger(logger),
		}
		if !cfg.Storage.InMemory {
			opts = append(opts, chromem.WithPersistence(cfg.Storage.ChromemDir, cfg.Storage.Compress))
		}
		return chromem.NewStore(opts...)
	case config.BackendPostgres:
		opts := []postgres.Option{
			postgres.WithDriver(cfg.Storage.Driver),
			postgres.WithLogger(logger),
		}
		if cfg.Storage.Debug {
			opts = append(opts, postgres.WithDebug(false))
		}
		return postgres.Open(ctx, cfg.Storage.DSN, opts...)
	default:
		return badger.NewChunkRepository(backend)
	}
}

func newProvider(cfg *config.Config) (ai.AIProvider, error) {
	if cfg.AI.Provider == config.ProviderMock {
		return mock.NewMockProvider(), nil
	}
	return openai.NewProvider(cfg.AIConfig())
}

// Retryable reports whether a failed ingestion attempt may succeed later.
// Unsupported, missing and empty files fail permanently, as do rejected
// credentials and vectors from the wrong embedding space.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, loader.ErrUnsupportedFormat),
		errors.Is(err, loader.ErrNoText),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, ai.ErrUnauthorized),
		errors.Is(err, storage.ErrEmbeddingSpaceMismatch):
		return false
	}
	return true
}

func (s *System) handleJob(ctx context.Context, job *core.Job) (int, error) {
	return s.pipeline.IngestAs(ctx, job.Payload.FilePath, job.Payload.OriginalName)
}

// Close releases every component. It is safe on a partially opened System.
func (s *System) Close() error {
	var errs []error
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Error("error closing queue", "err", err)
			errs = append(errs, err)
		}
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if s.chunks != nil {
		if err := s.chunks.Close(); err != nil {
			s.logger.Error("error closing chunk store", "err", err)
			errs = append(errs, err)
		}
	}
	if s.jobs != nil {
		if err := s.jobs.Close(); err != nil {
			s.logger.Error("error closing job repository", "err", err)
			errs = append(errs, err)
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the system was opened with.
func (s *System) Config() *config.Config {
	return s.cfg
}

// Chunks returns the chunk store.
func (s *System) Chunks() storage.ChunkRepository {
	return s.chunks
}

// Queue returns the ingestion job queue.
func (s *System) Queue() *queue.Queue {
	return s.queue
}

// Pipeline returns the ingestion pipeline.
func (s *System) Pipeline() *ingestion.Pipeline {
	return s.pipeline
}

// Retriever returns the retrieval engine.
func (s *System) Retriever() *search.Retriever {
	return s.retriever
}

// Orchestrator returns the answering orchestrator.
func (s *System) Orchestrator() *agent.Orchestrator {
	return s.orchestrator
}

// Answer answers one question.
func (s *System) Answer(ctx context.Context, req agent.Request) (*core.AgentAnswer, error) {
	return s.orchestrator.Answer(ctx, req)
}

// Purge deletes the chunks of source, or every chunk when source is empty.
func (s *System) Purge(ctx context.Context, source string) (int, error) {
	return s.chunks.DeleteMany(ctx, core.ChunkFilter{SourceFile: source})
}

// NewServer builds the HTTP server from the configuration.
func (s *System) NewServer(opts ...server.Option) (*server.Server, error) {
	sc := s.cfg.Server
	base := []server.Option{
		server.WithUploadDir(sc.UploadDir),
		server.WithMaxUploadSize(sc.MaxUploadBytes),
		server.WithRequestTimeout(sc.RequestTimeout),
		server.WithRetryAfter(sc.RetryAfter),
		server.WithSegmentSize(sc.SegmentSize),
		server.WithAllowedOrigin(sc.AllowedOrigin),
		server.WithLoaders(s.loaders),
		server.WithLogger(s.logger),
	}
	return server.New(s.orchestrator, s.queue, s.chunks, append(base, opts...)...)
}

// NewWatcher builds the inbox watcher from the configuration.
func (s *System) NewWatcher(opts ...watcher.Option) (*watcher.Watcher, error) {
	base := []watcher.Option{
		watcher.WithSettle(s.cfg.Watcher.Settle),
		watcher.WithLoaders(s.loaders),
		watcher.WithLogger(s.logger),
	}
	return watcher.New(s.cfg.Watcher.Dir, s.queue, append(base, opts...)...)
}
