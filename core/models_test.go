package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "short content", content: "Sick leave: 10 days"},
		{name: "empty string", content: ""},
		{name: "long content", content: "Employees accrue vacation leave monthly and may carry over up to five unused days."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("page one")
	id2 := IDFromContent("page two")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestEmbeddingSpace_Matches(t *testing.T) {
	a := EmbeddingSpace{Model: "text-embedding-004", Dimensions: 768}

	if !a.Matches(EmbeddingSpace{Model: "text-embedding-004", Dimensions: 768}) {
		t.Error("identical spaces should match")
	}
	if a.Matches(EmbeddingSpace{Model: "text-embedding-004", Dimensions: 384}) {
		t.Error("different dimensions should not match")
	}
	if a.Matches(EmbeddingSpace{Model: "embeddinggemma", Dimensions: 768}) {
		t.Error("different models should not match")
	}
}

func TestChunkFilter_IsEmpty(t *testing.T) {
	if !(ChunkFilter{}).IsEmpty() {
		t.Error("zero filter should select everything")
	}
	if (ChunkFilter{SourceFile: "handbook.pdf"}).IsEmpty() {
		t.Error("filter with a source file is not empty")
	}
}
