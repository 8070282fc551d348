package main

import (
	"fmt"
	"io"
	"time"

	"github.com/poiesic/opsmind/core"
	"github.com/poiesic/opsmind/search"
)

// writerMonitor prints retrieval stages for ask --verbose.
type writerMonitor struct {
	w     io.Writer
	start time.Time
}

var _ search.RetrievalMonitor = (*writerMonitor)(nil)

func newWriterMonitor(w io.Writer) *writerMonitor {
	return &writerMonitor{w: w}
}

func (m *writerMonitor) Start(query string, k int) {
	m.start = time.Now()
	fmt.Fprintf(m.w, "query: %q (k=%d)\n", query, k)
}

func (m *writerMonitor) AfterEmbedding(model string, dimensions int) {
	fmt.Fprintf(m.w, "embedded with %s (%d dims) in %s\n", model, dimensions, time.Since(m.start).Round(time.Millisecond))
}

func (m *writerMonitor) AfterVectorSearch(results []*core.SearchResult) {
	for i, r := range results {
		fmt.Fprintf(m.w, "  %d. [%.3f] %s p%d: %s\n", i+1, r.Score,
			r.Chunk.Metadata.SourceFile, r.Chunk.Metadata.PageNumber, preview(r.Chunk.Content, 60))
	}
}

func (m *writerMonitor) Finish(results []*core.SearchResult) {
	fmt.Fprintf(m.w, "retrieved %d chunks in %s\n\n", len(results), time.Since(m.start).Round(time.Millisecond))
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
