package rag

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// DefineGenkitRetriever exposes a Retriever as a Genkit ai.Retriever so
// it can be plugged into generation flows unchanged.
//
// Request options understood (via req.Options as map[string]any):
//
//	"k"        int     top-K override, validated to [1, 50]
//	"document" string  restrict results to one document ID
//
// Usage:
//
//	r := rag.NewRetriever(embedder, index, logger)
//	docRetriever := rag.DefineGenkitRetriever(g, "corpus-retriever", r)
func DefineGenkitRetriever(g *genkit.Genkit, name string, r *Retriever) ai.Retriever {
	return genkit.DefineRetriever(
		g, name, nil,
		func(ctx context.Context, req *ai.RetrieverRequest) (*ai.RetrieverResponse, error) {
			opts := []RetrieveOption{WithTopK(requestTopK(req, DefaultTopK))}
			if docID := requestDocumentFilter(req); docID != "" {
				opts = append(opts, WithFilter(MetaDocumentID, docID))
			}

			results, err := r.Retrieve(ctx, requestQueryText(req), opts...)
			if err != nil {
				return nil, err
			}

			return &ai.RetrieverResponse{
				Documents: toGenkitDocuments(results),
			}, nil
		},
	)
}

// requestQueryText extracts the query text from a RetrieverRequest.
func requestQueryText(req *ai.RetrieverRequest) string {
	if req.Query != nil && len(req.Query.Content) > 0 {
		return req.Query.Content[0].Text
	}
	return ""
}

// requestTopK extracts the "k" option, falling back to defaultK when
// absent, mistyped or out of the accepted [1, 50] range.
func requestTopK(req *ai.RetrieverRequest, defaultK int) int {
	opts, ok := req.Options.(map[string]any)
	if !ok {
		return defaultK
	}
	var k int
	switch v := opts["k"].(type) {
	case int:
		k = v
	case int64:
		k = int(v)
	case float64:
		k = int(v)
	default:
		return defaultK
	}
	if k < 1 || k > 50 {
		return defaultK
	}
	return k
}

// requestDocumentFilter extracts the optional "document" option.
func requestDocumentFilter(req *ai.RetrieverRequest) string {
	if opts, ok := req.Options.(map[string]any); ok {
		if id, ok := opts["document"].(string); ok {
			return id
		}
	}
	return ""
}

// toGenkitDocuments converts retrieval results to Genkit documents,
// carrying the similarity score and chunk identity in metadata.
func toGenkitDocuments(results []Result) []*ai.Document {
	docs := make([]*ai.Document, len(results))
	for i, res := range results {
		metadata := make(map[string]any, len(res.Chunk.Metadata)+3)
		for k, v := range res.Chunk.Metadata {
			metadata[k] = v
		}
		metadata["chunk_id"] = res.Chunk.ID
		metadata["document_id"] = res.Chunk.DocumentID
		metadata["similarity"] = res.Score

		docs[i] = ai.DocumentFromText(res.Chunk.Text, metadata)
	}
	return docs
}
