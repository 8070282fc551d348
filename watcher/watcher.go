// Package watcher turns files dropped into an inbox directory into
// ingestion jobs.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/loader"
)

// DefaultSettle is how long a new file must go without writes before it is
// enqueued.
const DefaultSettle = 500 * time.Millisecond

// Enqueuer accepts ingestion work.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload core.JobPayload) (string, error)
}

// Watcher enqueues supported files created in a directory.
type Watcher struct {
	dir      string
	enqueuer Enqueuer
	loaders  *loader.Registry
	settle   time.Duration
	logger   *slog.Logger
}

// Option configures a Watcher.
type Option func(*Watcher) error

// WithLoaders sets the registry deciding which files are enqueued.
// Default is loader.NewRegistry().
func WithLoaders(r *loader.Registry) Option {
	return func(w *Watcher) error {
		if r == nil {
			return errors.New("loader registry is nil")
		}
		w.loaders = r
		return nil
	}
}

// WithSettle sets the quiet period required after the last write.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) error {
		if d <= 0 {
			return fmt.Errorf("settle must be positive: %s", d)
		}
		w.settle = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// New creates a watcher for dir. The directory is created if missing.
func New(dir string, enqueuer Enqueuer, opts ...Option) (*Watcher, error) {
	if dir == "" {
		return nil, ErrDirRequired
	}
	if enqueuer == nil {
		return nil, ErrEnqueuerRequired
	}
	w := &Watcher{
		dir:      dir,
		enqueuer: enqueuer,
		loaders:  loader.NewRegistry(),
		settle:   DefaultSettle,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating watch directory: %w", err)
	}
	w.logger = w.logger.With("component", "watcher", "dir", dir)
	return w, nil
}

// Run watches until ctx is cancelled. Files already present are ignored.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching for new documents", "extensions", w.loaders.Extensions())

	// path -> time of the most recent create or write
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.observe(pending, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				w.enqueue(ctx, path)
			}
		}
	}
}

func (w *Watcher) observe(pending map[string]time.Time, event fsnotify.Event) {
	if !w.loaders.Supports(event.Name) {
		return
	}
	switch {
	case event.Has(fsnotify.Create):
		pending[event.Name] = time.Now()
	case event.Has(fsnotify.Write):
		if _, ok := pending[event.Name]; ok {
			pending[event.Name] = time.Now()
		}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(pending, event.Name)
	}
}

func (w *Watcher) enqueue(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	id, err := w.enqueuer.Enqueue(ctx, core.JobPayload{FilePath: abs})
	if err != nil {
		w.logger.Error("failed to enqueue document", "file", abs, "err", err)
		return
	}
	w.logger.Info("document enqueued", "file", abs, "job", id)
}
