// Package server exposes the question-answering and upload endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/poiesic/opsmind/agent"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/loader"
	"github.com/poiesic/opsmind/stream"
)

const (
	// DefaultMaxUploadSize caps accepted upload files.
	DefaultMaxUploadSize int64 = 50 << 20

	// DefaultRequestTimeout bounds the work done for a single chat request.
	DefaultRequestTimeout = 2 * time.Minute

	// DefaultRetryAfter is advertised when a quota error carries no hint.
	DefaultRetryAfter = 60 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Answerer answers one question.
type Answerer interface {
	Answer(ctx context.Context, req agent.Request) (*core.AgentAnswer, error)
}

// JobQueue accepts ingestion work and reports on it.
type JobQueue interface {
	Enqueue(ctx context.Context, payload core.JobPayload) (string, error)
	Get(ctx context.Context, id string) (*core.Job, error)
	List(ctx context.Context, state core.JobState) ([]*core.Job, error)
}

// ChunkCounter reports the size of the corpus.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

// Server routes HTTP requests to the answering and ingestion components.
type Server struct {
	answerer       Answerer
	jobs           JobQueue
	chunks         ChunkCounter
	loaders        *loader.Registry
	uploadDir      string
	maxUploadSize  int64
	requestTimeout time.Duration
	retryAfter     time.Duration
	segmentSize    int
	allowedOrigin  string
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithUploadDir sets where uploaded files are stored. Default is "uploads".
func WithUploadDir(dir string) Option {
	return func(s *Server) error {
		if dir == "" {
			return ErrUploadDirRequired
		}
		s.uploadDir = dir
		return nil
	}
}

// WithMaxUploadSize sets the largest accepted upload in bytes.
func WithMaxUploadSize(n int64) Option {
	return func(s *Server) error {
		if n < 1 {
			return fmt.Errorf("max upload size must be positive: %d", n)
		}
		s.maxUploadSize = n
		return nil
	}
}

// WithRequestTimeout bounds each chat request. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d < 0 {
			return fmt.Errorf("request timeout must not be negative: %s", d)
		}
		s.requestTimeout = d
		return nil
	}
}

// WithRetryAfter sets the Retry-After used when a quota error has no hint.
func WithRetryAfter(d time.Duration) Option {
	return func(s *Server) error {
		if d < time.Second {
			return fmt.Errorf("retry after must be at least one second: %s", d)
		}
		s.retryAfter = d
		return nil
	}
}

// WithSegmentSize sets the target runes per streamed content frame.
func WithSegmentSize(n int) Option {
	return func(s *Server) error {
		if n < 1 {
			return fmt.Errorf("segment size must be positive: %d", n)
		}
		s.segmentSize = n
		return nil
	}
}

// WithLoaders sets the registry deciding which uploads are accepted.
// Default is loader.NewRegistry().
func WithLoaders(r *loader.Registry) Option {
	return func(s *Server) error {
		if r == nil {
			return errors.New("loader registry is nil")
		}
		s.loaders = r
		return nil
	}
}

// WithAllowedOrigin sets the Access-Control-Allow-Origin value. Default is "*".
func WithAllowedOrigin(origin string) Option {
	return func(s *Server) error {
		s.allowedOrigin = origin
		return nil
	}
}

// WithClock overrides the time source used for upload names and health.
func WithClock(now func() time.Time) Option {
	return func(s *Server) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		s.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a server. The upload directory is created if missing.
func New(answerer Answerer, jobs JobQueue, chunks ChunkCounter, opts ...Option) (*Server, error) {
	if answerer == nil {
		return nil, ErrAnswererRequired
	}
	if jobs == nil {
		return nil, ErrJobQueueRequired
	}
	if chunks == nil {
		return nil, ErrChunkCounterRequired
	}

	s := &Server{
		answerer:       answerer,
		jobs:           jobs,
		chunks:         chunks,
		loaders:        loader.NewRegistry(),
		uploadDir:      "uploads",
		maxUploadSize:  DefaultMaxUploadSize,
		requestTimeout: DefaultRequestTimeout,
		retryAfter:     DefaultRetryAfter,
		segmentSize:    stream.DefaultSegmentSize,
		allowedOrigin:  "*",
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	s.logger = s.logger.With("component", "server")
	return s, nil
}

// Handler returns the routed handler with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	return s.cors(s.logRequests(mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "elapsed", time.Since(start))
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status and keeps streaming working.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if fl, ok := r.ResponseWriter.(http.Flusher); ok {
		fl.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
