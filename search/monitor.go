package search

import (
	"log/slog"

	"github.com/poiesic/ragline/core"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query, ownerID string, k int)
	AfterQueryEmbedding(vector []float32)
	AfterVectorSearch(results []*core.SearchResult, err error)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ string, _ int)                   {}
func (n *noopMonitor) AfterQueryEmbedding(_ []float32)                   {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.SearchResult, _ error) {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)                     {}

// LogMonitor writes every search stage to a logger at debug level.
type LogMonitor struct {
	Logger *slog.Logger
}

var _ SearchMonitor = (*LogMonitor)(nil)

func (m *LogMonitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *LogMonitor) Start(query, ownerID string, k int) {
	m.logger().Debug("search started", "query", query, "owner", ownerID, "k", k)
}

func (m *LogMonitor) AfterQueryEmbedding(vector []float32) {
	m.logger().Debug("query embedded", "dimensions", len(vector))
}

func (m *LogMonitor) AfterVectorSearch(results []*core.SearchResult, err error) {
	if err != nil {
		m.logger().Debug("vector search failed", "err", err)
		return
	}
	m.logger().Debug("vector search complete", "hits", len(results))
}

func (m *LogMonitor) Finish(results []*core.SearchResult) {
	for i, r := range results {
		m.logger().Debug("search hit",
			"rank", i+1,
			"document", r.DocumentName,
			"chunk", r.Chunk.ID,
			"distance", r.Distance)
	}
}
