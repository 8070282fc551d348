package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Page is the text of one page (or sheet) of a document.
// Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Loader extracts ordered page text from a file.
type Loader interface {
	Load(ctx context.Context, path string) ([]Page, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, path string) ([]Page, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, path string) ([]Page, error) {
	return f(ctx, path)
}

// Registry selects a Loader by file extension.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns a registry with every built-in loader registered.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	r.Register(".pdf", LoaderFunc(LoadPDF))
	r.Register(".docx", LoaderFunc(LoadDOCX))
	r.Register(".xlsx", LoaderFunc(LoadXLSX))
	r.Register(".md", LoaderFunc(LoadMarkdown))
	r.Register(".markdown", LoaderFunc(LoadMarkdown))
	r.Register(".txt", LoaderFunc(LoadText))
	return r
}

// Register binds ext (with leading dot, any case) to l, replacing any previous binding.
func (r *Registry) Register(ext string, l Loader) {
	r.loaders[normalizeExt(ext)] = l
}

// For returns the loader for path's extension.
func (r *Registry) For(path string) (Loader, error) {
	ext := normalizeExt(filepath.Ext(path))
	l, ok := r.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return l, nil
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, err := r.For(path)
	return err == nil
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Load extracts pages from path using the matching loader.
// Pages whose text is blank are dropped; ErrNoText is returned when none remain.
func (r *Registry) Load(ctx context.Context, path string) ([]Page, error) {
	l, err := r.For(path)
	if err != nil {
		return nil, err
	}
	pages, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	kept := pages[:0]
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoText, filepath.Base(path))
	}
	return kept, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
