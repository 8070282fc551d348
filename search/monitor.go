package search

import (
	"context"

	"github.com/poiesic/opsmind/core"
)

// RetrievalMonitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results.
type RetrievalMonitor interface {
	Start(query string, k int)
	AfterEmbedding(model string, dimensions int)
	AfterVectorSearch(results []*core.SearchResult)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)                   {}
func (n *noopMonitor) AfterEmbedding(_ string, _ int)          {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.SearchResult) {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)            {}

// MonitoredRetriever reports every retrieval to Monitor.
type MonitoredRetriever struct {
	*Retriever
	Monitor RetrievalMonitor
}

// Retrieve runs RetrieveWithMonitor with the attached monitor.
func (m MonitoredRetriever) Retrieve(ctx context.Context, query string, k int) ([]*core.SearchResult, error) {
	return m.RetrieveWithMonitor(ctx, query, k, m.Monitor)
}
