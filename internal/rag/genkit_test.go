package rag

import (
	"testing"

	"github.com/firebase/genkit/go/ai"
)

func TestRequestTopK(t *testing.T) {
	tests := []struct {
		name    string
		options any
		want    int
	}{
		{"no options", nil, DefaultTopK},
		{"not a map", "k=3", DefaultTopK},
		{"int", map[string]any{"k": 3}, 3},
		{"int64", map[string]any{"k": int64(7)}, 7},
		{"float64 from JSON decoding", map[string]any{"k": float64(4)}, 4},
		{"wrong type", map[string]any{"k": "three"}, DefaultTopK},
		{"below range", map[string]any{"k": 0}, DefaultTopK},
		{"above range", map[string]any{"k": 51}, DefaultTopK},
		{"upper bound", map[string]any{"k": 50}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &ai.RetrieverRequest{Options: tt.options}
			if got := requestTopK(req, DefaultTopK); got != tt.want {
				t.Errorf("requestTopK() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRequestDocumentFilter(t *testing.T) {
	req := &ai.RetrieverRequest{Options: map[string]any{"document": "doc-9"}}
	if got := requestDocumentFilter(req); got != "doc-9" {
		t.Errorf("requestDocumentFilter() = %q, want %q", got, "doc-9")
	}

	req = &ai.RetrieverRequest{Options: map[string]any{"document": 42}}
	if got := requestDocumentFilter(req); got != "" {
		t.Errorf("requestDocumentFilter() with mistyped option = %q, want empty", got)
	}
}

func TestRequestQueryText(t *testing.T) {
	req := &ai.RetrieverRequest{Query: ai.DocumentFromText("what is quarry?", nil)}
	if got := requestQueryText(req); got != "what is quarry?" {
		t.Errorf("requestQueryText() = %q", got)
	}

	if got := requestQueryText(&ai.RetrieverRequest{}); got != "" {
		t.Errorf("requestQueryText() of empty request = %q, want empty", got)
	}
}

func TestToGenkitDocuments(t *testing.T) {
	results := []Result{
		{
			Chunk: Chunk{
				ID:         "doc-1#00002",
				DocumentID: "doc-1",
				Text:       "chunk text",
				Metadata:   map[string]string{MetaSource: "a.txt"},
			},
			Score: 0.875,
		},
	}

	docs := toGenkitDocuments(results)
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}

	doc := docs[0]
	if len(doc.Content) == 0 || doc.Content[0].Text != "chunk text" {
		t.Errorf("document content = %+v, want chunk text", doc.Content)
	}
	if doc.Metadata["chunk_id"] != "doc-1#00002" {
		t.Errorf("chunk_id metadata = %v", doc.Metadata["chunk_id"])
	}
	if doc.Metadata["document_id"] != "doc-1" {
		t.Errorf("document_id metadata = %v", doc.Metadata["document_id"])
	}
	if doc.Metadata["similarity"] != float32(0.875) {
		t.Errorf("similarity metadata = %v", doc.Metadata["similarity"])
	}
	if doc.Metadata[MetaSource] != "a.txt" {
		t.Errorf("source metadata = %v", doc.Metadata[MetaSource])
	}
}
