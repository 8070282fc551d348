package stream

import (
	"fmt"
	"math"

	"github.com/poiesic/opsmind/core"
)

// FrameType discriminates frames.
type FrameType string

const (
	FrameContent FrameType = "content"
	FrameSources FrameType = "sources"
	FrameDone    FrameType = "done"
)

// Citation is a client-facing reference to a retrieved chunk.
type Citation struct {
	Title     string `json:"title"`
	Reference string `json:"reference"`
}

// Frame is one unit of a delivery.
type Frame struct {
	Type    FrameType  `json:"type"`
	Data    string     `json:"data,omitempty"`
	Sources []Citation `json:"sources,omitzero"`
}

// UntitledSource titles citations whose chunk has no source file.
const UntitledSource = "Uploaded document"

// Cite converts retrieved sources to citations, preserving order.
func Cite(sources []core.Source) []Citation {
	citations := make([]Citation, 0, len(sources))
	for _, s := range sources {
		title := s.SourceFile
		if title == "" {
			title = UntitledSource
		}
		page := s.PageNumber
		if page < 1 {
			page = core.DefaultPageNumber
		}
		citations = append(citations, Citation{
			Title:     title,
			Reference: fmt.Sprintf("Page %d · %d%% relevance", page, relevance(s.Score)),
		})
	}
	return citations
}

func relevance(score float32) int {
	p := int(math.Round(float64(score) * 100))
	return max(0, min(100, p))
}
